package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/mirra-sync/mirra/internal/config"
	"github.com/mirra-sync/mirra/internal/engine"
	"github.com/mirra-sync/mirra/internal/event"
	"github.com/mirra-sync/mirra/internal/filter"
	"github.com/mirra-sync/mirra/internal/sink"
	"github.com/mirra-sync/mirra/internal/stats"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// usageError marks argument validation failures, which print the usage
// text and exit with code 1. Runtime failures exit with code 2.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

var _ pflag.Value = (*filterFlag)(nil)

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "string" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: main CLI entry point orchestrates all flag parsing and wiring
func run() int {
	var (
		workers     int
		hashName    string
		once        bool
		dryRun      bool
		verbose     bool
		quiet       bool
		useCache    bool
		showVersion bool
		filterFile  string
		bwLimitStr  string
		logFile     string
	)

	chain := filter.NewChain()

	rootCmd := &cobra.Command{
		Use:   "mirra [flags] <source_dir> <destination_dir> <interval_seconds> [log_file]",
		Short: "Periodically mirror a destination folder to match a source folder",
		Long: `mirra keeps a destination folder identical to a source folder. Every
interval it hashes both trees, copies files that are new or changed and
removes files that no longer exist in the source. Each action is written
to a sync log and mirrored to stdout.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			if err := cobra.RangeArgs(3, 4)(cmd, args); err != nil {
				return &usageError{err}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "mirra %s\n", version)
				return nil
			}

			srcRoot, err := validateDir(args[0])
			if err != nil {
				return &usageError{err}
			}
			dstRoot, err := validateDir(args[1])
			if err != nil {
				return &usageError{err}
			}
			interval, err := strconv.Atoi(args[2])
			if err != nil {
				return &usageError{fmt.Errorf("interval %q is not a valid integer", args[2])}
			}
			if interval <= 0 {
				return &usageError{fmt.Errorf("interval must be positive, got %d", interval)}
			}
			auditPath, err := resolveAuditPath(args)
			if err != nil {
				return &usageError{err}
			}

			// Load optional config file.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}

			// Apply config defaults for flags not explicitly set on CLI.
			applyConfigDefaults(cmd, cfg.Defaults, &workers, &hashName, &quiet, &useCache)
			if !cmd.Flags().Changed("bwlimit") && cfg.Defaults.BWLimit != nil {
				bwLimitStr = *cfg.Defaults.BWLimit
			}

			algo, err := engine.ParseAlgorithm(hashName)
			if err != nil {
				return &usageError{err}
			}

			var bwLimit *rate.Limiter
			if bwLimitStr != "" {
				n, err := filter.ParseSize(bwLimitStr)
				if err != nil {
					return &usageError{fmt.Errorf("invalid --bwlimit: %w", err)}
				}
				bwLimit = engine.NewBWLimiter(n)
			}

			// Configure logging.
			logLevel := slog.LevelWarn
			if verbose {
				logLevel = slog.LevelDebug
			} else if !quiet {
				logLevel = slog.LevelInfo
			}
			textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			})
			var logHandler slog.Handler = textHandler
			if logFile != "" {
				lf, lfErr := os.Create(logFile)
				if lfErr != nil {
					return fmt.Errorf("open log file: %w", lfErr)
				}
				defer lf.Close()
				jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})
				logHandler = sink.NewMultiHandler(textHandler, jsonHandler)
			}
			slog.SetDefault(slog.New(logHandler))

			if dryRun {
				slog.Info("dry run mode")
			}

			// Load filter file if specified.
			if filterFile != "" {
				if err := chain.LoadFile(filterFile); err != nil {
					return &usageError{fmt.Errorf("load filter file: %w", err)}
				}
			}

			auditSink, err := sink.New(sink.Config{Path: auditPath, Quiet: quiet})
			if err != nil {
				return &usageError{err}
			}
			defer auditSink.Close()

			var cache *engine.DigestCache
			if useCache {
				cache, err = engine.OpenDigestCache(srcRoot, dstRoot, algo)
				if err != nil {
					slog.Warn("digest cache unavailable, hashing everything", "error", err)
				} else {
					defer cache.Close()
				}
			}

			// Set up context with signal handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collector := stats.NewCollector()
			events := make(chan event.Event, 256)

			// When --log is set, tee events through a logging goroutine
			// that writes structured records before forwarding to the sink.
			sinkEvents := (<-chan event.Event)(events)
			if logFile != "" {
				teed := make(chan event.Event, 256)
				go func() {
					for ev := range events {
						attrs := []slog.Attr{
							slog.String("type", ev.Type.String()),
							slog.Uint64("cycle", ev.Cycle),
							slog.String("path", ev.Path),
							slog.Int64("size", ev.Size),
						}
						if ev.Error != nil {
							attrs = append(attrs, slog.String("error", ev.Error.Error()))
						}
						slog.LogAttrs(context.Background(), slog.LevelDebug, "mirra.event", attrs...)
						teed <- ev
					}
					close(teed)
				}()
				sinkEvents = teed
			}

			var sinkWg sync.WaitGroup
			sinkWg.Add(1)
			go func() {
				defer sinkWg.Done()
				auditSink.Run(sinkEvents)
			}()

			loopCfg := engine.LoopConfig{
				SrcRoot:  srcRoot,
				DstRoot:  dstRoot,
				Interval: time.Duration(interval) * time.Second,
				Workers:  workers,
				Hasher:   engine.NewHasher(algo),
				Cache:    cache,
				BWLimit:  bwLimit,
				DryRun:   dryRun,
				Once:     once,
				Events:   events,
				Stats:    collector,
			}
			if !chain.Empty() {
				loopCfg.Filter = chain
			}

			loop, err := engine.NewLoop(loopCfg)
			if err != nil {
				return err
			}

			slog.Debug("starting sync",
				"source", srcRoot,
				"destination", dstRoot,
				"interval", interval,
				"workers", workers,
				"hash", string(algo),
				"once", once,
			)

			runErr := loop.Run(ctx)
			stop()
			close(events)
			sinkWg.Wait()

			// An interrupted cycle may leave temp files behind.
			if n := engine.CleanupTmpFiles(); n > 0 {
				slog.Debug("swept leftover temp files", "count", n)
			}

			if !quiet {
				printSummary(collector.Snapshot())
			}

			return runErr
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	rootCmd.Flags().
		IntVarP(&workers, "workers", "n", 0, "number of hash workers (default: min(NumCPU, 8))")
	rootCmd.Flags().StringVar(&hashName, "hash", "blake3", "content hash algorithm (blake3 or sha256)")
	rootCmd.Flags().BoolVar(&once, "once", false, "run a single sync cycle and exit")
	rootCmd.Flags().
		BoolVar(&dryRun, "dry-run", false, "log what would be copied or deleted without writing")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose diagnostics on stderr")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not mirror the sync log to stdout")

	// Filter flags — use custom pflag.Value to preserve CLI ordering.
	rootCmd.Flags().
		Var(&filterFlag{chain: chain, include: false}, "exclude", "exclude files matching PATTERN (repeatable)")
	rootCmd.Flags().
		Var(&filterFlag{chain: chain, include: true}, "include", "include files matching PATTERN (repeatable)")
	rootCmd.Flags().StringVar(&filterFile, "filter", "", "read filter rules from FILE")

	rootCmd.Flags().
		StringVar(&bwLimitStr, "bwlimit", "", "bandwidth limit for copies (e.g. 100M, 1G)")
	rootCmd.Flags().
		BoolVar(&useCache, "digest-cache", false, "cache digests by (path, size, mtime); faster, but misses edits that keep both")
	rootCmd.Flags().
		StringVar(&logFile, "log", "", "write structured JSON diagnostics to FILE")

	rootCmd.AddCommand(newDocsCmd())

	if err := rootCmd.Execute(); err != nil {
		var uErr *usageError
		if errors.As(err, &uErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n%s", err, rootCmd.UsageString())
			return 1
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	return 0
}

// validateDir resolves path to an absolute path and verifies it names an
// existing directory.
func validateDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%s is not a valid path: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%s is not a valid directory", path)
	}
	return abs, nil
}

// resolveAuditPath returns the sync log path: the fourth positional
// argument when given, otherwise default.log in the working directory.
func resolveAuditPath(args []string) (string, error) {
	if len(args) == 4 {
		return args[3], nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return filepath.Join(cwd, "default.log"), nil
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(
	cmd *cobra.Command,
	defaults config.DefaultsConfig,
	workers *int,
	hashName *string,
	quiet *bool,
	useCache *bool,
) {
	if !cmd.Flags().Changed("workers") && defaults.Workers != nil {
		*workers = *defaults.Workers
	}
	if !cmd.Flags().Changed("hash") && defaults.Hash != nil {
		*hashName = *defaults.Hash
	}
	if !cmd.Flags().Changed("quiet") && defaults.Quiet != nil {
		*quiet = *defaults.Quiet
	}
	if !cmd.Flags().Changed("digest-cache") && defaults.DigestCache != nil {
		*useCache = *defaults.DigestCache
	}
}

func printSummary(snap stats.Snapshot) {
	fmt.Fprintf(os.Stderr, "%d cycles (%d failed): %d copied (%s), %d deleted, %d errors in %s\n",
		snap.Cycles,
		snap.CyclesFailed,
		snap.FilesCopied,
		stats.FormatBytes(snap.BytesCopied),
		snap.FilesDeleted,
		snap.ActionsFailed,
		snap.Elapsed.Round(time.Millisecond),
	)
}
