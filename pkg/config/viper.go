// Package config initializes the process-wide Viper instance used by the CLI.
// Settings come from an optional config file, a local .env file, and the
// environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	appconfig "github.com/JakeFAU/readlater-migrate/internal/config"
)

// InitConfig prepares the global viper. cfgFile, when set, must exist;
// otherwise config.yaml is looked up in the working directory and
// $HOME/.readlater-migrate and may be absent. It returns the config file
// used, if any.
func InitConfig(cfgFile string) (string, error) {
	return initViper(viper.GetViper(), cfgFile, ".env")
}

func initViper(v *viper.Viper, cfgFile, dotenv string) (string, error) {
	// .env values never override variables already set in the environment.
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("load %s: %w", dotenv, err)
	}

	appconfig.Prepare(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.readlater-migrate")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}
