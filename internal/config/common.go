package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SetupLogging sets the global log level and writes human readable output to
// stderr
func SetupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	return nil
}

// newViper returns a viper instance reading env vars under prefix and the
// named config file from path, or from the default locations when path is
// empty
func newViper(prefix, name, path string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.famgraph")
		v.AddConfigPath("/etc/famgraph")
	}
	return v
}

// readConfig loads the config file. A missing file is only an error when
// the path was given explicitly.
func readConfig(v *viper.Viper, explicit bool) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !explicit && errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("error reading config file: %w", err)
}

// bindFlags binds every flag of flagSet to the key with dashes replaced by
// underscores, so "listen-addr" overrides "listen_addr" from the file
func bindFlags(v *viper.Viper, flagSet *pflag.FlagSet) error {
	if flagSet == nil {
		return nil
	}
	var err error
	flagSet.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if bindErr := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); bindErr != nil && err == nil {
			err = bindErr
		}
	})
	return err
}

// configPath returns the --config flag value if flagSet defines one
func configPath(flagSet *pflag.FlagSet) string {
	if flagSet == nil || flagSet.Lookup("config") == nil {
		return ""
	}
	path, _ := flagSet.GetString("config")
	return path
}

// createConfigDirectory ensures the directory for a config file exists
func createConfigDirectory(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}
	return nil
}

// writeConfigFile renders cfg as YAML below a comment header
func writeConfigFile(path, header string, cfg any) error {
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error rendering config: %w", err)
	}

	if err := createConfigDirectory(path); err != nil {
		return err
	}

	content := append([]byte("# "+header+"\n"), body...)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
