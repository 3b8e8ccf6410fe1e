// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cloudflare/cfssl/helpers"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/srl-labs/devca/cert"
	"github.com/srl-labs/devca/utils"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list the certificates in the store",
	RunE:  listFn,
}

func init() {
	RootCmd.AddCommand(listCmd)
}

func listFn(_ *cobra.Command, _ []string) error {
	store, err := storePath()
	if err != nil {
		return err
	}

	matches, err := filepath.Glob(filepath.Join(store, "*"+cert.CertFileSuffix))
	if err != nil {
		return err
	}

	if len(matches) == 0 {
		log.Infof("no certificates in %s", store)
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Common Name", "Kind", "Expires"})

	for _, p := range matches {
		b, err := utils.ReadFileContent(p)
		if err != nil {
			return err
		}

		c, err := helpers.ParseCertificatePEM(b)
		if err != nil {
			log.Warnf("skipping malformed certificate %s: %v", p, err)
			continue
		}

		kind := "leaf"
		if c.IsCA {
			kind = "CA"
		}

		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		table.Append([]string{name, c.Subject.CommonName, kind, humanize.Time(c.NotAfter)})
	}

	table.Render()

	return nil
}
