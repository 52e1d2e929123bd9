package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/ashureev/voicelab/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var levelsFormat string

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Print the level catalog",
	Long: `Print the level catalog the server would use: the built-in levels, or
the file named by LEVELS_FILE. --format yaml prints a file that can be
edited and used as LEVELS_FILE.`,
	RunE: runLevels,
}

func init() {
	levelsCmd.Flags().StringVar(&levelsFormat, "format", "table", "Output format: table, json or yaml")
}

func runLevels(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cmd, cfg)
	if err != nil {
		return err
	}
	all := catalog.All()
	out := cmd.OutOrStdout()

	switch levelsFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any{"levels": all}); err != nil {
			return fmt.Errorf("encode levels: %w", err)
		}
		return enc.Close()
	case "table":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tIMAGE")
		for _, lvl := range all {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", lvl.ID, lvl.Title, lvl.Image)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format %q", levelsFormat)
	}
}
