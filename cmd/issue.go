// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/srl-labs/devca/cert"
	"github.com/srl-labs/devca/utils"
)

var rootKeyPath string

var issueCmd = &cobra.Command{
	Use:   "issue <hostname>...",
	Short: "issue an SSL certificate, creating missing CA levels on the way",
	Args:  cobra.MinimumNArgs(1),
	RunE:  issueFn,
}

func init() {
	RootCmd.AddCommand(issueCmd)

	issueCmd.Flags().StringVarP(&rootKeyPath, "root-key", "", "",
		"persist the root CA key at this path instead of the ephemeral workspace")
}

func issueFn(cobraCmd *cobra.Command, args []string) error {
	ctx := cobraCmd.Context()

	b, err := newBuilder(cobraCmd)
	if err != nil {
		return err
	}

	desc, issueErr := b.IssueSSLCert(ctx, args, nil)
	if cerr := closeBuilder(b); cerr != nil && issueErr == nil {
		issueErr = cerr
	}
	if issueErr != nil {
		return issueErr
	}

	log.Infof("certificate: %s", desc.CertPath)
	log.Infof("key: %s", desc.KeyPath)

	reportNewCAs(b)

	return nil
}

// newBuilder wires the hierarchy builder from the CLI flags.
func newBuilder(cobraCmd *cobra.Command) (*cert.Builder, error) {
	engine, err := newEngine()
	if err != nil {
		return nil, err
	}

	policy, err := newPolicy()
	if err != nil {
		return nil, err
	}

	store, err := storePath()
	if err != nil {
		return nil, err
	}

	return cert.NewBuilder(cobraCmd.Context(), cert.Options{
		Engine:      engine,
		Prompter:    utils.NewStdioPrompter(),
		Policy:      policy,
		StoreDir:    store,
		RootKeyPath: rootKeyPath,
		NoConfirm:   noConfirm,
	})
}

// closeBuilder removes the ephemeral workspace. An undeletable workspace
// still holding a root CA key is reported as a security problem and turns
// the run fatal.
func closeBuilder(b *cert.Builder) error {
	err := b.Close()
	if err == nil {
		return nil
	}

	var cl *cert.CleanupError
	if errors.As(err, &cl) && cl.Fatal {
		log.Errorf("SECURITY: %v", cl)
		log.Errorf("delete %s manually before using the machine for anything else", cl.Dir)
		return err
	}

	log.Warnf("workspace cleanup failed: %v", err)

	return nil
}

// reportNewCAs lists the CA certificates created during this run so the
// operator knows which materials are pending installation in trust stores.
func reportNewCAs(b *cert.Builder) {
	cas := b.NewCAs()
	if len(cas) == 0 {
		return
	}

	log.Info("new CA certificates were created, install them in your trust store:")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Certificate"})
	for _, ca := range cas {
		name := strings.TrimSuffix(filepath.Base(ca.CertPath), filepath.Ext(ca.CertPath))
		table.Append([]string{name, ca.CertPath})
	}
	table.Render()
}
