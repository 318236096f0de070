package config

import (
	"errors"
	"fmt"

	"github.com/storacha/mirror/internal/cmdutil"
)

// ThumbnailConfig holds size limits such as "1M" or "100K".
type ThumbnailConfig struct {
	MaxGenerate string `mapstructure:"max_generate_bytes"`
	MaxDirect   string `mapstructure:"max_direct_bytes"`
}

func (t ThumbnailConfig) Validate() error {
	_, err1 := t.MaxGenerateBytes()
	_, err2 := t.MaxDirectBytes()
	return errors.Join(err1, err2)
}

func (t ThumbnailConfig) MaxGenerateBytes() (int64, error) {
	return parseLimit("thumbnail.max_generate_bytes", t.MaxGenerate)
}

func (t ThumbnailConfig) MaxDirectBytes() (int64, error) {
	return parseLimit("thumbnail.max_direct_bytes", t.MaxDirect)
}

func parseLimit(key, s string) (int64, error) {
	n, err := cmdutil.ParseSize(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return int64(n), nil
}
