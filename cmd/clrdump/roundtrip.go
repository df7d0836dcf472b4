package main

import (
	"bytes"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type roundtripResult struct {
	File            string `json:"file"`
	Size            int    `json:"size"`
	Identical       bool   `json:"identical"`
	FirstDifference int    `json:"first_difference"`
}

func (a *app) roundtripCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roundtrip FILE",
		Short: "Rewrite the tables stream and compare it with the original",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open(args[0])
			if err != nil {
				return err
			}
			out, err := m.RewriteTables()
			if err != nil {
				return err
			}
			orig := m.TableStream()
			res := roundtripResult{
				File:            args[0],
				Size:            len(orig),
				Identical:       bytes.Equal(out, orig),
				FirstDifference: firstDifference(out, orig),
			}

			w := cmd.OutOrStdout()
			if !a.textOutput() {
				if err := a.printJSON(w, res); err != nil {
					return err
				}
			} else if res.Identical {
				color.New(color.FgGreen).Fprintf(w, "%s: %d bytes identical\n", res.File, res.Size)
			} else {
				color.New(color.FgRed).Fprintf(w, "%s: differs at offset 0x%X\n", res.File, res.FirstDifference)
			}
			if !res.Identical {
				return fmt.Errorf("%s: rewritten tables differ at offset 0x%X", res.File, res.FirstDifference)
			}
			return nil
		},
	}
}

// firstDifference returns the first offset where a and b differ, or -1.
func firstDifference(a, b []byte) int {
	for i := 0; i < min(len(a), len(b)); i++ {
		if a[i] != b[i] {
			return i
		}
	}
	if len(a) != len(b) {
		return min(len(a), len(b))
	}
	return -1
}
