package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/storacha/mirror/internal/cmdutil"
	"github.com/storacha/mirror/internal/output"
)

// commandPath returns the command path for a `cobra.Command`. Where
// `cmd.CommandPath()` returns a concatenated string, this returns a slice of
// the individual commands in the path.
func commandPath(c *cobra.Command) []string {
	var path []string
	if c.HasParent() {
		path = commandPath(c.Parent())
	}
	return append(path, c.Name())
}

// secretAnnotation marks flags whose values must never leave the process.
const secretAnnotation = "mirror_secret"

func markSecret(flags *pflag.FlagSet, name string) {
	cobra.CheckErr(flags.SetAnnotation(name, secretAnnotation, []string{"true"}))
}

func isSecret(f *pflag.Flag) bool {
	_, ok := f.Annotations[secretAnnotation]
	return ok
}

// setSpanAttributes records the command path and every flag set on the
// command line as span attributes. Secret flags are recorded as set but
// without their value.
func setSpanAttributes(cmd *cobra.Command, span trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.StringSlice("command.path", commandPath(cmd)),
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		k := "command.flag." + f.Name
		if isSecret(f) {
			attrs = append(attrs, attribute.String(k, "[redacted]"))
			return
		}

		var (
			attr attribute.KeyValue
			err  error
		)
		switch f.Value.Type() {
		case "bool":
			var v bool
			v, err = cmd.Flags().GetBool(f.Name)
			attr = attribute.Bool(k, v)
		case "int":
			var v int
			v, err = cmd.Flags().GetInt(f.Name)
			attr = attribute.Int(k, v)
		case "uint":
			var v uint
			v, err = cmd.Flags().GetUint(f.Name)
			attr = attribute.Int(k, int(v))
		case "duration":
			attr = attribute.String(k, f.Value.String())
		case "string":
			var v string
			v, err = cmd.Flags().GetString(f.Name)
			attr = attribute.String(k, v)
		default:
			attr = attribute.String(k, f.Value.String())
		}
		if err != nil {
			log.Warnf("getting flag %q value %v for telemetry: %v", f.Name, f.Value, err)
			return
		}
		attrs = append(attrs, attr)
	})

	span.SetAttributes(attrs...)
}

// jsonFailure reports err as a JSON document on stdout so scripted callers
// get one in every case, and marks it handled.
func jsonFailure(cmd *cobra.Command, err error) error {
	if werr := output.JSONError(cmd.OutOrStdout(), cmdutil.TranslateError(err)); werr != nil {
		return err
	}
	return cmdutil.NewHandledCliError(err)
}
