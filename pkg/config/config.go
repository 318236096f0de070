// Package config decodes and validates the mirror configuration held by
// viper: config file, MIRROR_* environment variables and bound flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/storacha/mirror/pkg/thumbnail"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validatable is a config section that can check itself after decoding.
type Validatable interface {
	Validate() error
}

type Config struct {
	Repo      RepoConfig      `mapstructure:"repo"`
	Account   AccountConfig   `mapstructure:"account"`
	Network   NetworkConfig   `mapstructure:"network"`
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

func (c Config) Validate() error {
	if err := validateConfig(c); err != nil {
		return err
	}
	return errors.Join(c.Repo.Validate(), c.Thumbnail.Validate())
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("repo.backend", BackendSQLite)
	v.SetDefault("network.timeout", 30*time.Second)
	v.SetDefault("network.probe_interval", 10*time.Second)
	v.SetDefault("thumbnail.max_generate_bytes", fmt.Sprint(thumbnail.DefaultMaxGenerateBytes))
	v.SetDefault("thumbnail.max_direct_bytes", fmt.Sprint(thumbnail.DefaultMaxDirectBytes))
	v.SetDefault("telemetry.enabled", false)
}

// Load decodes the global viper instance into T and validates it.
func Load[T Validatable]() (T, error) {
	return LoadFrom[T](viper.GetViper())
}

func LoadFrom[T Validatable](v *viper.Viper) (T, error) {
	var out T
	if err := v.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("unable to decode config, %w", err)
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("invalid config, %w", err)
	}
	return out, nil
}

// validateConfig runs the struct tag rules and reports the first failure
// by its config key.
func validateConfig(c any) error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: failed on '%s' (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
