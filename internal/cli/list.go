package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed skin packages",
	Long:  `List all skin packages installed under the install root.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

// listEntry represents an installed package for display.
type listEntry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Author      string   `json:"author,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Path        string   `json:"path"`
	InstalledAt string   `json:"installed_at"`
}

func runList(cmd *cobra.Command, args []string) error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}

	pkgs := reg.List()
	if len(pkgs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No skin packages installed yet.")
		return nil
	}

	var entries []listEntry
	for _, pkg := range pkgs {
		entries = append(entries, listEntry{
			ID:          pkg.Manifest.ID,
			Name:        pkg.Manifest.Name,
			Version:     pkg.Manifest.Version,
			Author:      pkg.Manifest.Author,
			Tags:        pkg.Manifest.Tags,
			Path:        pkg.Path,
			InstalledAt: pkg.InstalledAt.Format(time.RFC3339),
		})
	}

	if listJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling list: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tAUTHOR\tINSTALLED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Version, e.Author, e.InstalledAt)
	}
	w.Flush()

	total, err := reg.TotalSize()
	if err != nil {
		return fmt.Errorf("computing total size: %w", err)
	}
	printer.Fprintf(cmd.OutOrStdout(), "\n%d packages, %d bytes on disk\n", len(pkgs), total)
	return nil
}
