package cli

import (
	"fmt"

	"github.com/Dymaic/KSkinManager/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config <get|set> <key> [value]",
	Short: "Read or write CLI configuration",
	Long: `Read or write a configuration value in ~/.kskin/config.yaml.
Keys: install_root, download_dir, max_concurrent, connect_timeout, read_timeout.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	switch args[0] {
	case "get":
		fmt.Fprintln(cmd.OutOrStdout(), config.Get(args[1]))
		return nil
	case "set":
		if len(args) != 3 {
			return fmt.Errorf("config set requires a key and a value")
		}
		if err := config.Set(args[1], args[2]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[1], args[2])
		return nil
	default:
		return fmt.Errorf("unknown subcommand %q: expected get or set", args[0])
	}
}
