package cmd

import (
	"github.com/spf13/viper"

	"github.com/storacha/mirror/internal/build"
	"github.com/storacha/mirror/internal/telemetry"
)

// TelemetryConfig reads the telemetry settings from MIRROR_TELEMETRY_*
// environment variables, the only source available before the command line
// is parsed.
func TelemetryConfig() telemetry.Config {
	v := viper.New()
	v.SetEnvPrefix("MIRROR")
	v.AutomaticEnv()
	return telemetry.Config{
		Enabled:     v.GetBool("telemetry_enabled"),
		Endpoint:    v.GetString("telemetry_endpoint"),
		Insecure:    v.GetBool("telemetry_insecure"),
		ServiceName: "mirror",
		Version:     build.Version,
	}
}
