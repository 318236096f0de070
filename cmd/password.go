package cmd

import (
	"bufio"
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

var passwordCmd = &cobra.Command{
	Use:   "password <repo-id>",
	Short: "Unlock an encrypted library",
	Long: `Sends the password of an encrypted library to the server, which then
allows access to it for a while. The password is read from standard input
unless --password is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := cmd.Flags().GetString("password")
		if err != nil {
			return err
		}
		if password == "" {
			if isTerminal(cmd.InOrStdin()) {
				cmd.PrintErr("Password: ")
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no password given")
			}
			password = strings.TrimRight(line, "\r\n")
		}

		return withSession(cmd, func(s *session) error {
			return s.coord.SetPassword(cmd.Context(), args[0], password)
		})
	},
}

func init() {
	rootCmd.AddCommand(passwordCmd)

	passwordCmd.Flags().String("password", "", "Library password")
	markSecret(passwordCmd.Flags(), "password")
}
