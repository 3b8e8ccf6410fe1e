// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var caCmd = &cobra.Command{
	Use:   "ca",
	Short: "certificate authority operations",
}

var caCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "create the root dev CA certificate and key",
	RunE:  createCAFn,
}

func init() {
	RootCmd.AddCommand(caCmd)
	caCmd.AddCommand(caCreateCmd)

	caCreateCmd.Flags().StringVarP(&rootKeyPath, "root-key", "", "",
		"persist the root CA key at this path instead of the ephemeral workspace")
}

func createCAFn(cobraCmd *cobra.Command, _ []string) error {
	ctx := cobraCmd.Context()

	b, err := newBuilder(cobraCmd)
	if err != nil {
		return err
	}

	desc, createErr := b.CreateRootCA(ctx)
	if cerr := closeBuilder(b); cerr != nil && createErr == nil {
		createErr = cerr
	}
	if createErr != nil {
		return createErr
	}

	log.Infof("root CA certificate: %s", desc.CertPath)

	reportNewCAs(b)

	return nil
}
