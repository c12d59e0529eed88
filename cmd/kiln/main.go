package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/kiln"
	"github.com/jward/kiln/internal/config"
	"github.com/jward/kiln/scripts"
)

var (
	flagFormat  string
	flagVerbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "kiln",
	Short:         "Incremental recompilation cache",
	Long:          "Kiln tracks source checksums and reference edges across builds and recompiles only what changed, plus the files the changes pull in.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagFormat != "json" && flagFormat != "text" {
			return fmt.Errorf("invalid format %q (want json or text)", flagFormat)
		}
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(cleanCmd)
}

// resolveProjectDir picks the project directory from args, defaulting to
// the working directory.
func resolveProjectDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

var (
	flagForce      bool
	flagWorkers    int
	flagScriptsDir string
)

var buildCmd = &cobra.Command{
	Use:   "build [path]",
	Short: "Compile changed sources and update the manifest",
	Long:  "Detects changed or new sources by checksum, expands the set along cached reference edges, recompiles it, and writes the updated manifest.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&flagForce, "force", false, "delete the cache folder and rebuild from scratch")
	buildCmd.Flags().IntVar(&flagWorkers, "workers", 0, "workers for reference expansion (0 = serial)")
	buildCmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "load compile scripts from disk path instead of embedded")
}

func runBuild(cmd *cobra.Command, args []string) error {
	dir, err := resolveProjectDir(args)
	if err != nil {
		return err
	}

	if flagForce {
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		cacheDir := filepath.Join(dir, cfg.CacheFolder)
		if err := os.RemoveAll(cacheDir); err != nil {
			return fmt.Errorf("removing cache for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared cache: %s\n", cacheDir)
	}

	opts := []kiln.Option{kiln.WithWorkers(flagWorkers)}
	if flagScriptsDir != "" {
		opts = append(opts, kiln.WithScriptsDir(flagScriptsDir))
	} else {
		opts = append(opts, kiln.WithScriptsFS(scripts.FS))
	}

	engine, err := kiln.New(dir, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	res, buildErr := engine.Build(context.Background())
	if res != nil {
		printBuildSummary(res)
	}
	if buildErr != nil {
		return buildErr
	}
	return nil
}

func printBuildSummary(res *kiln.BuildResult) {
	if flagFormat == "json" {
		out := struct {
			Active   int               `json:"active_sources"`
			Compiled []string          `json:"compiled"`
			Failed   map[string]string `json:"failed,omitempty"`
			Duration string            `json:"duration"`
		}{
			Active:   res.ActiveSources,
			Compiled: res.CompilationSet,
			Duration: res.Duration.Round(time.Millisecond).String(),
		}
		if len(res.Failed) > 0 {
			out.Failed = make(map[string]string, len(res.Failed))
			for path, err := range res.Failed {
				out.Failed[path] = err.Error()
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		return
	}

	fmt.Fprintf(os.Stderr, "Sources: %d active, %d compiled, %d failed (%s)\n",
		res.ActiveSources,
		len(res.CompilationSet)-len(res.Failed),
		len(res.Failed),
		res.Duration.Round(time.Millisecond))

	if len(res.Failed) > 0 {
		paths := make([]string, 0, len(res.Failed))
		for path := range res.Failed {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			fmt.Fprintf(os.Stderr, "  FAILED %s: %s\n", path, res.Failed[path])
		}
	}
}

var flagLimit int

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "Show recent builds recorded for a project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&flagLimit, "limit", 10, "maximum builds to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dir, err := resolveProjectDir(args)
	if err != nil {
		return err
	}

	engine, err := kiln.New(dir)
	if err != nil {
		return err
	}
	defer engine.Close()

	builds, err := engine.History().RecentBuilds(flagLimit)
	if err != nil {
		return err
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(builds)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tTOTAL\tCOMPILED\tFAILED")
	for _, b := range builds {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\n",
			b.ID,
			b.StartedAt.Format(time.RFC3339),
			b.Duration.Round(time.Millisecond),
			b.Total, b.Compiled, b.Failed)
	}
	return tw.Flush()
}

var cleanCmd = &cobra.Command{
	Use:   "clean [path]",
	Short: "Delete the project's build cache",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClean,
}

func runClean(cmd *cobra.Command, args []string) error {
	dir, err := resolveProjectDir(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	cacheDir := filepath.Join(dir, cfg.CacheFolder)
	if err := os.RemoveAll(cacheDir); err != nil {
		return fmt.Errorf("removing cache: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Removed %s\n", cacheDir)
	return nil
}
