package sdk

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/jingkaihe/matchlock-go/internal/errx"
)

// LoadConfig reads client configuration from a YAML file. When path is
// empty, ~/.config/matchlock/sdk.yaml is used; a missing file yields
// DefaultConfig. MATCHLOCK_BIN still wins over the file's binary_path.
//
// Recognized keys: binary_path, use_sudo, state_dir.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("binary_path", "matchlock")
	v.SetDefault("use_sudo", false)
	v.SetDefault("state_dir", "")

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = filepath.Join(home, ".config", "matchlock", "sdk.yaml")
		if _, err := os.Stat(path); err != nil {
			return DefaultConfig(), nil
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, errx.Wrap(ErrLoadConfig, err)
	}

	cfg := Config{
		BinaryPath: v.GetString("binary_path"),
		UseSudo:    v.GetBool("use_sudo"),
		StateDir:   v.GetString("state_dir"),
	}
	if bin := os.Getenv("MATCHLOCK_BIN"); bin != "" {
		cfg.BinaryPath = bin
	}
	return cfg, nil
}
