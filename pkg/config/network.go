package config

import (
	"time"

	"github.com/storacha/mirror/pkg/model"
)

// AccountConfig identifies the server and the user signed in to it.
type AccountConfig struct {
	Server string `mapstructure:"server" validate:"required,http_url"`
	Email  string `mapstructure:"email" validate:"required"`
	Token  string `mapstructure:"token"`
}

func (a AccountConfig) Account() model.Account {
	return model.NewAccount(a.Server, a.Email, a.Token)
}

type NetworkConfig struct {
	// Timeout bounds connecting and waiting for response headers. Transfers
	// themselves are not limited.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	// ProbeInterval is how long a reachability check is trusted.
	ProbeInterval time.Duration `mapstructure:"probe_interval" validate:"gte=0"`
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}
