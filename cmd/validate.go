// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/srl-labs/devca/cert"
	"github.com/srl-labs/devca/utils"
)

var validateKeyPath string

var validateCmd = &cobra.Command{
	Use:   "validate <name|cert-file> [hostname]...",
	Short: "check that a certificate/key pair is usable for a set of hostnames",
	Args:  cobra.MinimumNArgs(1),
	RunE:  validateFn,
}

func init() {
	RootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateKeyPath, "key", "k", "",
		"private key path, derived from the certificate path when unset")
}

func validateFn(cobraCmd *cobra.Command, args []string) error {
	ctx := cobraCmd.Context()

	engine, err := newEngine()
	if err != nil {
		return err
	}

	certPath, keyPath, err := resolveCertArg(args[0], validateKeyPath)
	if err != nil {
		return err
	}

	hostnames := args[1:]
	if len(hostnames) == 0 {
		hostnames = []string{args[0]}
	}

	policy, err := newPolicy()
	if err != nil {
		return err
	}

	bundle, cleanup, err := writeCABundle(policy)
	if err != nil {
		return err
	}
	defer cleanup()

	v := cert.NewValidator(engine)
	v.CABundle = bundle

	desc := cert.NewDescriptor(certPath, keyPath)
	if err := v.Validate(ctx, desc, hostnames); err != nil {
		return err
	}

	log.Infof("certificate %s is valid for %s", certPath, strings.Join(hostnames, ", "))

	return nil
}

// resolveCertArg accepts either a certificate file path or a name within the
// store and returns the certificate and key paths.
func resolveCertArg(arg, keyFlag string) (certPath, keyPath string, err error) {
	if utils.FileExists(arg) {
		certPath = arg
	} else {
		store, err := storePath()
		if err != nil {
			return "", "", err
		}
		certPath = filepath.Join(store, arg+cert.CertFileSuffix)
		if !utils.FileExists(certPath) {
			return "", "", fmt.Errorf("no certificate %q found in %s", arg, store)
		}
	}

	keyPath = keyFlag
	if keyPath == "" {
		keyPath = strings.TrimSuffix(certPath, filepath.Ext(certPath)) + cert.KeyFileSuffix
	}

	return certPath, keyPath, nil
}

// writeCABundle concatenates the store's CA certificates into a temporary
// bundle for the chain check. The dev root is usually not installed in the
// system trust store, so the chain check has to trust the store's own CAs.
func writeCABundle(policy cert.Policy) (string, func(), error) {
	store, err := storePath()
	if err != nil {
		return "", nil, err
	}

	var bundle []byte
	for _, name := range []string{policy.RootName, policy.IntermediateName} {
		p := filepath.Join(store, name+cert.CertFileSuffix)
		if !utils.FileExists(p) {
			continue
		}
		b, err := utils.ReadFileContent(p)
		if err != nil {
			return "", nil, err
		}
		bundle = append(bundle, b...)
	}

	if len(bundle) == 0 {
		return "", func() {}, nil
	}

	f, err := os.CreateTemp("", "devca-bundle-*.crt")
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(bundle); err != nil {
		f.Close()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		return "", nil, err
	}

	return f.Name(), func() { os.Remove(f.Name()) }, nil
}
