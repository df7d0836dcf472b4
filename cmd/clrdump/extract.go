package main

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
)

func (a *app) extractCmd() *cobra.Command {
	var output, level string
	var compress bool
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Write the raw metadata root to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("compress") {
				compress = a.cfg.Extract.Compress
			}
			if !cmd.Flags().Changed("level") {
				level = a.cfg.Extract.Level
			}
			m, err := a.open(args[0])
			if err != nil {
				return err
			}
			data := m.Metadata()
			if compress {
				ok, lvl := zstd.EncoderLevelFromString(level)
				if !ok {
					return fmt.Errorf("unknown compression level %q", level)
				}
				enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl))
				if err != nil {
					return fmt.Errorf("failed to create zstd writer: %w", err)
				}
				data = enc.EncodeAll(data, nil)
				enc.Close()
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	cmd.Flags().BoolVar(&compress, "compress", false, "zstd compress the output")
	cmd.Flags().StringVar(&level, "level", "default", "compression level: fastest, default, better or best")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
