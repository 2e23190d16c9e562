package cmd

import (
	"bytes"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ncrflow/internal/bootstrap"
	"ncrflow/internal/errs"
	"ncrflow/internal/usecase/ncr"
)

var refCmd = &cobra.Command{
	Use:   "ref",
	Short: "Reference data (suppliers, projects, purchase orders)",
}

var refImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Upsert reference rows from a YAML fixture",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *ncr.Service) error {
		path, _ := cmd.Flags().GetString("file")
		fixture, err := readReferenceFixture(path)
		if err != nil {
			return err
		}

		summary, err := ncr.ImportReferences(cmd.Context(), app.UOW, app.Refs, fixture)
		if err != nil {
			return err
		}
		return writeJSON(cmd, summary)
	}),
}

func readReferenceFixture(path string) (ncr.ReferenceFixture, error) {
	trimmed := strings.TrimSpace(path)
	raw, err := os.ReadFile(trimmed)
	if err != nil {
		return ncr.ReferenceFixture{}, errs.Wrapf(err, "read fixture %q", trimmed)
	}

	var fixture ncr.ReferenceFixture
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fixture); err != nil {
		return ncr.ReferenceFixture{}, errs.Wrapf(err, "decode fixture %q", trimmed)
	}
	return fixture, nil
}

func init() {
	rootCmd.AddCommand(refCmd)
	refCmd.AddCommand(refImportCmd)

	refImportCmd.Flags().String("file", "", "YAML fixture with suppliers, projects and purchase_orders")
	_ = refImportCmd.MarkFlagRequired("file")
}
