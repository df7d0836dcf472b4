package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jtang613/goclr/pkg/clr"
)

type fileInfo struct {
	File string `json:"file"`
	*clr.ModuleInfo
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE...",
		Short: "Show metadata root, heap and table summary",
		Long:  "Show the version string, streams, heap sizes and table row counts of each file. Files are read concurrently.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := make([]fileInfo, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(a.cfg.Workers)
			for i, path := range args {
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					m, err := a.open(path)
					if err != nil {
						return err
					}
					infos[i] = fileInfo{File: path, ModuleInfo: m.Info()}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if !a.textOutput() {
				return a.printJSON(w, infos)
			}
			for _, info := range infos {
				printInfo(w, info)
			}
			return nil
		},
	}
}

func printInfo(w io.Writer, info fileInfo) {
	title := color.New(color.Bold)
	label := color.New(color.FgCyan)

	title.Fprintln(w, info.File)
	label.Fprint(w, "  version:  ")
	fmt.Fprintln(w, info.Version)
	if info.Module != "" {
		label.Fprint(w, "  module:   ")
		fmt.Fprintf(w, "%s {%s}\n", info.Module, info.MVID)
	}
	if info.Assembly != nil {
		label.Fprint(w, "  assembly: ")
		fmt.Fprintf(w, "%s, Version=%s\n", info.Assembly.Name, info.Assembly.Version)
	}
	label.Fprint(w, "  heaps:    ")
	fmt.Fprintf(w, "#Strings=%d #Blob=%d #GUID=%d #US=%d\n",
		info.Heaps.Strings, info.Heaps.Blob, info.Heaps.GUID, info.Heaps.UserStrings)

	label.Fprintln(w, "  streams:")
	for _, s := range info.Streams {
		fmt.Fprintf(w, "    %-10s offset=0x%X size=%d\n", s.Name, s.Offset, s.Size)
	}

	names := make([]string, 0, len(info.Tables))
	for name := range info.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	label.Fprintln(w, "  tables:")
	for _, name := range names {
		fmt.Fprintf(w, "    %-24s %d\n", name, info.Tables[name])
	}
}
