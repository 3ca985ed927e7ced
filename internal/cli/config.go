// config.go implements "adt-console config" for reading and changing
// config.yaml.
package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adt-framework/adt-console/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change console settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every setting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", dir)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, k := range config.Keys() {
			v, _ := cfg.Get(k)
			fmt.Fprintf(tw, "%s\t%s\n", k, v)
		}
		return tw.Flush()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		v, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting in config.yaml",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		return config.WriteConfig(dir, cfg)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

// loadConfig reads the config without environment overrides applied, so
// set never writes an override back to disk.
func loadConfig() (string, *config.Config, error) {
	dir := homeDir
	if dir == "" {
		d, err := config.Dir()
		if err != nil {
			return "", nil, err
		}
		dir = d
	}
	cfg, err := config.ReadConfig(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, err
		}
		cfg = config.DefaultConfig()
	}
	return dir, cfg, nil
}
