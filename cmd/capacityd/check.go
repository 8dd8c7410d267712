package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/store/memory"
)

func newCheckCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a config file by loading its catalog and quotas into a scratch engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			engine := capacity.New(memory.New(),
				capacity.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			)
			if err := cfg.seed(cmd.Context(), engine); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d resources, %d products\n", len(cfg.Catalog), len(cfg.Quotas))
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the YAML config file")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
