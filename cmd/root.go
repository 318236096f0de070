package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/storacha/mirror/pkg/config"
)

var (
	log    = logging.Logger("mirror/cmd")
	tracer = otel.Tracer("mirror/cmd")
)

var rootCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Browse and cache libraries of a file sync server",
	Long: wordwrap.WrapString(
		"Lists libraries and directories of a file sync server and keeps local "+
			"copies of the files you open. Listings and files are served from the "+
			"local cache when the server reports them unchanged, so repeated access "+
			"costs one small request instead of a transfer.",
		80),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		span := trace.SpanFromContext(cmd.Context())
		setSpanAttributes(cmd, span)
		if lvl := viper.GetString("log_level"); lvl != "" {
			return logging.SetLogLevelRegex("mirror/.*", lvl)
		}
		return nil
	},
	// We handle errors ourselves when they're returned from ExecuteContext.
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	cobra.EnableTraverseRunHooks = true
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	initRootFlags()
	cobra.OnInitialize(initConfig)
}

var cfgFilePath string

func initRootFlags() {
	dataDir := ".mirror"
	if homedir, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(homedir, ".mirror")
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFilePath, "config", "", "Path to the config file")

	flags.String("data-dir", dataDir, "Directory holding the index, cached files and thumbnails")
	cobra.CheckErr(viper.BindPFlag("repo.data_dir", flags.Lookup("data-dir")))

	flags.String("server", "", "URL of the server")
	cobra.CheckErr(viper.BindPFlag("account.server", flags.Lookup("server")))

	flags.String("email", "", "Account email on the server")
	cobra.CheckErr(viper.BindPFlag("account.email", flags.Lookup("email")))

	flags.String("token", "", "API token of the account")
	markSecret(flags, "token")
	cobra.CheckErr(viper.BindPFlag("account.token", flags.Lookup("token")))

	flags.String("log-level", "", "Log level for mirror loggers (debug, info, warn, error)")
	cobra.CheckErr(viper.BindPFlag("log_level", flags.Lookup("log-level")))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	// check if environment variables match any of the existing keys
	// as an example a key is 'repo.data_dir'
	viper.AutomaticEnv()
	// when checking for env vars, rename keys searched for from 'repo.data_dir' to 'repo_data_dir'
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// when checking for env vars, search for keys prefixed with MIRROR
	viper.SetEnvPrefix("MIRROR")

	viper.SetConfigName("mirror-config")
	viper.SetConfigType("yaml")

	// if no config file was provided, first look in the current directory _then_ look in
	// $XDG_CONFIG_HOME/mirror/
	if cfgFilePath == "" {
		viper.AddConfigPath(".")
		if configDir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(configDir, "mirror"))
		}
	} else {
		viper.SetConfigFile(cfgFilePath)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFilePath != "" || !errors.As(err, &notFound) {
			cobra.CheckErr(fmt.Errorf("reading config: %w", err))
		}
	}
}

// ExecuteContext adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func ExecuteContext(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "cli")
	defer span.End()

	return rootCmd.ExecuteContext(ctx)
}
