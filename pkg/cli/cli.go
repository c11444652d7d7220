package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vorteil/gptguid/pkg/elog"
)

var log elog.View = &elog.CLI{}

var (
	flagJSON    bool
	flagVerbose bool
	flagDebug   bool
	flagConfig  string
)

// InitializeCommands attaches the persistent flags and every subcommand to
// RootCommand. It must be called exactly once before RootCommand.Execute.
func InitializeCommands() {

	// setup logging across all commands
	RootCommand.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	RootCommand.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	RootCommand.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "enable json output")
	RootCommand.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default is $HOME/.vorteil/gptguid.toml)")

	RootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {

		logger := &elog.CLI{}

		if flagJSON {
			logger.DisableTTY = true
			logrus.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logrus.SetFormatter(logger)
		}

		logrus.SetLevel(logrus.TraceLevel)

		if flagDebug {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose {
			logger.IsVerbose = true
		}

		log = logger

		return initConfig(flagConfig)
	}

	RootCommand.AddCommand(versionCmd)
	RootCommand.AddCommand(gptCmd)
	RootCommand.AddCommand(inspectCmd)
	RootCommand.AddCommand(validateCmd)
	RootCommand.AddCommand(updateGUIDCmd)
	RootCommand.AddCommand(recoverCmd)
	RootCommand.AddCommand(initCmd)
}

// RootCommand is the gptguid command.
var RootCommand = &cobra.Command{
	Use:   "gptguid",
	Short: "Inspect and rewrite the disk GUID of GPT disk images",
	Long: `gptguid reads, validates and rewrites the primary and backup GUID Partition
Table headers of raw disk images and block devices. Its main purpose is giving a
cloned image a fresh disk GUID without touching the partitions on it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "View CLI version information",
	Long:  "View CLI version information",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {

		format, err := cmd.Flags().GetString("format")
		if err != nil {
			panic(err)
		}

		switch format {
		case "json", "", "plain":
			return nil
		default:
			return errors.Errorf("invalid format '%s'", format)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {

		format, err := cmd.Flags().GetString("format")
		if err != nil {
			panic(err)
		}

		switch format {
		case "json":
			fmt.Fprintf(cmd.OutOrStdout(), "{\n\t\"version\": \"%s\",\n\t\"ref\": \"%s\",\n\t\"released\": \"%s\"\n}\n",
				release, commit, date)
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\nRef: %s\nReleased: %s\n", release, commit, date)
		}

	},
}

func init() {
	f := versionCmd.Flags()
	f.String("format", "", "specify output format (json, plain)")
}
