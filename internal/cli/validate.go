package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [package-id]",
	Short: "Validate installed skin packages",
	Long: `Check that a package's directory exists, its manifest parses and passes
the schema, and every resource file it lists is present. With no argument,
all installed packages are checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}

	var ids []string
	if len(args) == 1 {
		ids = args
	} else {
		for _, pkg := range reg.List() {
			ids = append(ids, pkg.Manifest.ID)
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No skin packages installed yet.")
		return nil
	}

	invalid := 0
	for _, id := range ids {
		if err := reg.Validate(id); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  ✗ %s: %v\n", id, err)
			invalid++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  ✓ %s\n", id)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d packages failed validation", invalid, len(ids))
	}
	return nil
}
