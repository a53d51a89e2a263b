package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/example/go-tacotron2/internal/safetensors"
	"github.com/example/go-tacotron2/internal/tacotron"
)

func newInspectCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List checkpoint tensors and hyperparameters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if path == "" {
				path = cfg.Paths.Checkpoint
			}

			var so safetensors.StoreOptions
			if cfg.Paths.StripPrefix != "" {
				so.KeyMapper = safetensors.StripPrefix(cfg.Paths.StripPrefix)
			}

			store, err := safetensors.OpenStore(path, so)
			if err != nil {
				return err
			}
			defer store.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			var total int64

			for _, name := range store.Names() {
				shape, _ := store.Shape(name)

				n := int64(1)
				for _, d := range shape {
					n *= d
				}

				total += n

				_, _ = fmt.Fprintf(w, "%s\t%v\t%s\n", name, shape, humanize.Comma(n))
			}

			if err := w.Flush(); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d tensors, %s parameters\n", len(store.Names()), humanize.Comma(total))

			hp, ok, err := tacotron.HParamsFromMetadata(store.Metadata())
			if err != nil {
				return err
			}

			if !ok {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "no hyperparameters in metadata")
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			return enc.Encode(hp)
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Checkpoint to inspect (defaults to --checkpoint)")

	return cmd
}
