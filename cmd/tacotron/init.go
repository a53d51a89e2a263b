package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/example/go-tacotron2/internal/tacotron"
)

func newInitCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a randomly initialised checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if out == "" {
				out = cfg.Paths.Checkpoint
			}

			m, err := tacotron.New(cfg.HParams(), modelOptions(cfg)...)
			if err != nil {
				return err
			}

			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create checkpoint dir: %w", err)
				}
			}

			if err := m.Save(out); err != nil {
				return err
			}

			info, err := os.Stat(out)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %s parameters, %s\n",
				out, humanize.Comma(int64(m.ParamCount())), humanize.Bytes(uint64(info.Size())))

			return err
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Checkpoint path (defaults to --checkpoint)")

	return cmd
}
