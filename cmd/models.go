package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jimeng-relay/storyvideo/internal/registry"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Print the model ladder, best first",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatterFromRootFlags()
		if err != nil {
			return err
		}
		cfg, err := loadConfigFromRootFlags(cmd)
		if err != nil {
			return err
		}
		reg, err := loadRegistry(cfg)
		if err != nil {
			return err
		}

		versions := reg.ListVersions()
		ms := make([]registry.ModelConfig, 0, len(versions))
		for _, v := range versions {
			m, err := reg.Get(v)
			if err != nil {
				return err
			}
			ms = append(ms, m)
		}
		out, err := formatter.FormatModels(ms)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
