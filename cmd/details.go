// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srl-labs/devca/cert"
)

var detailsCmd = &cobra.Command{
	Use:   "details <name|cert-file>",
	Short: "print the Subject Alternative Name details of a certificate",
	Args:  cobra.ExactArgs(1),
	RunE:  detailsFn,
}

func init() {
	RootCmd.AddCommand(detailsCmd)
}

func detailsFn(cobraCmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	certPath, keyPath, err := resolveCertArg(args[0], "")
	if err != nil {
		return err
	}

	desc := cert.NewDescriptor(certPath, keyPath)

	text, err := desc.Details(cobraCmd.Context(), engine)
	if err != nil {
		return err
	}

	fmt.Print(text)

	return nil
}
