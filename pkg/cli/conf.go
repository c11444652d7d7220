package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vorteil/gptguid/pkg/vimg"
)

const (
	configFileName  = "gptguid"
	configEnvPrefix = "GPTGUID"

	configJournalEnabled   = "journal.enabled"
	configJournalDirectory = "journal.directory"
	configNumbers          = "numbers"
)

// reads in config file, uses defaults if not found
func initConfig(cfgFile string) error {

	viper.SetEnvPrefix(configEnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault(configJournalEnabled, true)
	viper.SetDefault(configJournalDirectory, "")
	viper.SetDefault(configNumbers, "short")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			log.Debugf("%s", err.Error())
			log.Debugf("using default configuration")
			return nil
		}
		viper.AddConfigPath(filepath.Join(home, ".vorteil"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("toml")
	}

	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Debugf("using default configuration")
			return nil
		}
		return errors.Wrap(err, "reading config")
	}

	log.Debugf("using config file: %s", viper.ConfigFileUsed())

	return nil

}

// journalPath decides where the journal for image lives, or returns an empty
// string if journaling is off. Flags override the configuration.
func journalPath(f *pflag.FlagSet, image string) string {

	if fl := f.Lookup("no-journal"); fl != nil && fl.Changed && fl.Value.String() == "true" {
		return ""
	}

	if fl := f.Lookup("journal"); fl != nil && fl.Value.String() != "" {
		return fl.Value.String()
	}

	if !viper.GetBool(configJournalEnabled) {
		return ""
	}

	return vimg.DefaultJournalPath(image, viper.GetString(configJournalDirectory))

}
