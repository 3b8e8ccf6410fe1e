// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/srl-labs/devca/cert"
	cfsslengine "github.com/srl-labs/devca/cert/cfssl"
	opensslengine "github.com/srl-labs/devca/cert/openssl"
	"github.com/srl-labs/devca/cmd/version"
)

const defaultStoreDir = "~/.devca"

var (
	debugCount   int
	logLevel     string
	storeDir     string
	noConfirm    bool
	engineName   string
	opensslCmd   string
	policyFile   string
	organization string
)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:               "devca",
	Short:             "issue and validate TLS certificate chains for local development",
	PersistentPreRunE: preRunFn,
}

func init() {
	RootCmd.SilenceUsage = true
	RootCmd.PersistentFlags().CountVarP(&debugCount, "debug", "d", "enable debug mode")
	RootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info",
		"logging level; one of [debug, info, warn, error, fatal]")
	RootCmd.PersistentFlags().StringVarP(&storeDir, "store", "s", defaultStoreDir,
		"certificate store directory")
	RootCmd.PersistentFlags().BoolVarP(&noConfirm, "yes", "y", false,
		"skip overwrite and CA creation confirmations")
	RootCmd.PersistentFlags().StringVarP(&engineName, "engine", "e", "openssl",
		"certificate engine; one of [openssl, native]")
	RootCmd.PersistentFlags().StringVarP(&opensslCmd, "openssl", "", opensslengine.DefaultCommand,
		"command invoking the openssl binary")
	RootCmd.PersistentFlags().StringVarP(&policyFile, "config", "c", "",
		"path to an authority policy YAML file")
	RootCmd.PersistentFlags().StringVarP(&organization, "org", "o", "DevCA",
		"organization name the CA names derive from")

	RootCmd.AddCommand(version.VersionCmd)
}

func preRunFn(_ *cobra.Command, _ []string) error {
	// setting log level
	switch {
	case debugCount > 0:
		log.SetLevel(log.DebugLevel)
	default:
		l, err := log.ParseLevel(logLevel)
		if err != nil {
			return err
		}

		log.SetLevel(l)
	}

	// setting output to stderr, so that parseable outputs stay on stdout
	log.SetOutput(os.Stderr)

	log.SetTimeFormat(time.TimeOnly)

	return nil
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// storePath expands the store directory flag.
func storePath() (string, error) {
	return homedir.Expand(storeDir)
}

// newEngine builds the certificate engine selected by the --engine flag.
func newEngine() (cert.Engine, error) {
	switch engineName {
	case "openssl":
		return opensslengine.NewWithCommand(opensslCmd)
	case "native":
		return cfsslengine.New(debugCount > 0), nil
	default:
		return nil, fmt.Errorf("unknown engine %q, want openssl or native", engineName)
	}
}

// newPolicy builds the authority policy from the config file or the --org
// flag.
func newPolicy() (cert.Policy, error) {
	if policyFile != "" {
		return cert.LoadPolicy(policyFile)
	}
	return cert.NewPolicy(organization), nil
}
