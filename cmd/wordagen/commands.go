package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/CTAG07/Wordagen/pkg/corpus"
	"github.com/CTAG07/Wordagen/pkg/markov"
	"github.com/CTAG07/Wordagen/pkg/modelcache"
	"github.com/CTAG07/Wordagen/pkg/wordagen"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// VersionInfo is the payload of the version command and /api/version.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func currentVersion() VersionInfo {
	return VersionInfo{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
}

func buildVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := currentVersion()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wordagen %s (commit %s, built %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func buildListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available word lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "Word lists:")
			for _, name := range corpus.SourceNames() {
				_, _ = fmt.Fprintf(tw, "  %s\t%s\n", name, corpus.Sources[name])
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err := fmt.Fprint(out, "\nAny http:// or https:// URL, or file:PATH for a local list, also works.\n"+
				"Hunspell dictionaries (hunspell-LANG) and affix expansion are not supported.\n\n"+
				"Examples:\n"+
				"  wordagen --markov --words=en\n"+
				"  wordagen --markov --words=es\n"+
				"  wordagen --markov --words=https://example.com/wordlist.txt\n"+
				"  wordagen --markov --words=file:./mywords.txt\n")
			return err
		},
	}
}

func buildCacheCmd(g *globalFlags) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear cached models",
	}

	listCmd := &cobra.Command{
		Use:   "list [pattern]",
		Short: "List cached models whose source matches the glob pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.backend.List(cmd.Context(), patternArg(args))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				_, err = fmt.Fprintln(out, "No cached models.")
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "MODEL\tCONTEXTS\tTRANSITIONS\tSIZE\tCREATED")
			for _, e := range entries {
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
					e.Key, e.Stats.Contexts, e.Stats.Transitions, humanize.IBytes(uint64(e.Size)), e.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear [pattern]",
		Short: "Remove cached models whose source matches the glob pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.backend.Clear(cmd.Context(), patternArg(args))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached model(s).\n", removed)
			return err
		},
	}

	cacheCmd.AddCommand(listCmd, clearCmd, buildCacheExportCmd(g), buildCacheImportCmd(g))
	return cacheCmd
}

func buildCacheExportCmd(g *globalFlags) *cobra.Command {
	opts := wordagen.DefaultOptions()
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a model as JSON, building it first if it is not cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			model, err := a.service.Model(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = model.WriteTo(cmd.OutOrStdout())
				return err
			}
			var buf bytes.Buffer
			if _, err = model.WriteTo(&buf); err != nil {
				return err
			}
			if err = atomic.WriteFile(output, &buf); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", opts.Key(), output)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.Source, "words", opts.Source, "word list the model is trained on")
	cmd.Flags().IntVar(&opts.Order, "order", opts.Order, "model order")
	cmd.Flags().Float64Var(&opts.Cutoff, "cutoff", opts.Cutoff, "pruning cutoff")
	cmd.Flags().BoolVar(&opts.Reversed, "reversed", false, "export the reversed (suffix) model")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func buildCacheImportCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Validate a JSON model and store it in the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			model, err := markov.ImportModel(f)
			if err != nil {
				return fmt.Errorf("failed to import %s: %w", args[0], err)
			}

			a, err := g.openApp(cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer a.Close()

			key := modelcache.Key{Source: model.Source, Order: model.Order, Cutoff: model.Cutoff, Reversed: model.Reversed}
			if err = a.backend.Store(cmd.Context(), key, model); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %s\n", key)
			return err
		},
	}
}

func buildConfigCmd(g *globalFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Long:  "Write the default configuration to path, or to --config when no path is given.\nThe format follows the file extension.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(g.configPath)
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = "wordagen.yaml"
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}
			if err := WriteConfig(path, DefaultConfig()); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return err
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(config)
		},
	}

	configCmd.AddCommand(initCmd, showCmd)
	return configCmd
}

func patternArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return "*"
}
