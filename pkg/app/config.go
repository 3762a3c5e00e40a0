package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configFlagName = "config"

	// EnvPrefix prefixes environment overrides: --mqtt.broker becomes CROSSWAY_MQTT_BROKER.
	EnvPrefix = "CROSSWAY"
)

func addConfigFlag(fs *pflag.FlagSet, basename string) *string {
	return fs.StringP(configFlagName, "c", "",
		fmt.Sprintf("Read configuration from the specified YAML file. Without it %s.yaml is looked up in ., $HOME/.crossway and /etc/crossway.", basename))
}

// loadConfig builds a viper instance from the config file, the environment
// and the parsed flags, in increasing order of precedence for explicit flags.
func loadConfig(basename, cfgFile string, fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(basename)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".crossway"))
		}
		v.AddConfigPath("/etc/crossway")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	return v, nil
}
