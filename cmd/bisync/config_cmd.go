package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}

			w := cmd.OutOrStdout()
			if cfg.Path != "" {
				fmt.Fprintf(w, "# %s\n", cfg.Path)
			}
			_, err = w.Write(out)
			return err
		},
	}
}
