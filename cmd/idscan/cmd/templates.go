package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/idscan/internal/config"
	"github.com/MeKo-Tech/idscan/internal/template"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List document templates",
	Long: `List the built-in templates and those loaded from --templates-dir.

Examples:
  idscan templates
  idscan templates --json
  idscan templates show us-driver-license-v1`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry(GetConfig())
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()
		if asJSON {
			type row struct {
				ID      string `json:"id"`
				Family  string `json:"family"`
				Version int    `json:"version"`
				Country string `json:"country,omitempty"`
				Kind    string `json:"kind,omitempty"`
				Fields  int    `json:"fields"`
			}
			rows := make([]row, 0, reg.Len())
			for _, t := range reg.All() {
				rows = append(rows, row{t.ID, t.Family, t.Version, t.Country, t.Kind, len(t.Fields)})
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tFAMILY\tVERSION\tCOUNTRY\tKIND\tFIELDS")
		for _, t := range reg.All() {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\n", t.ID, t.Family, t.Version, t.Country, t.Kind, len(t.Fields))
		}
		return tw.Flush()
	},
}

var templatesShowCmd = &cobra.Command{
	Use:          "show <id>",
	Short:        "Print a template definition as YAML",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry(GetConfig())
		if err != nil {
			return err
		}
		t, ok := reg.Get(args[0])
		if !ok {
			return fmt.Errorf("unknown template: %s", args[0])
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return err
		}
		return enc.Close()
	},
}

func loadRegistry(cfg *config.Config) (*template.Registry, error) {
	reg, err := template.Load(cfg.Templates.Dir, cfg.Templates.Builtin)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return reg, nil
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesShowCmd)
	templatesCmd.Flags().Bool("json", false, "print as JSON")
}
