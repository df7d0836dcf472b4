// clrdump is a CLI tool for inspecting ECMA-335 CLI metadata in managed
// PE images and raw metadata roots.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jtang613/goclr/internal/config"
	"github.com/jtang613/goclr/pkg/clr"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the state shared by all subcommands.
type app struct {
	cfg *config.Config
	log *zap.Logger

	configPath string
	verbose    bool
	pretty     bool
	noColor    bool
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Default(), log: zap.NewNop()}
	rootCmd := &cobra.Command{
		Use:   "clrdump",
		Short: "Inspect ECMA-335 CLI metadata",
		Long: `clrdump reads the metadata tables of .NET assemblies. It accepts managed
PE images, bare metadata roots and zstd-compressed variants of either.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./clrdump.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log table reads and fixup passes")
	flags.BoolVar(&a.pretty, "pretty", false, "pretty-print JSON output")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		a.infoCmd(),
		a.tablesCmd(),
		a.rowsCmd(),
		a.filterCmd(),
		a.roundtripCmd(),
		a.extractCmd(),
		versionCmd(),
	)
	return rootCmd
}

// setup loads the configuration, applies flag overrides and builds the
// logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("pretty") {
		cfg.Output.Pretty = a.pretty
	}
	if a.noColor {
		cfg.Output.Color = false
	}
	a.cfg = cfg
	color.NoColor = !cfg.Output.Color

	if a.verbose {
		a.log, err = zap.NewDevelopment()
	} else {
		a.log, err = zap.NewProduction(zap.IncreaseLevel(zap.WarnLevel))
	}
	if err != nil {
		a.log = zap.NewNop()
	}
	return nil
}

func (a *app) open(path string) (*clr.Module, error) {
	a.log.Debug("opening", zap.String("file", path))
	return clr.Open(path, clr.WithLogger(a.log.With(zap.String("file", path))))
}
