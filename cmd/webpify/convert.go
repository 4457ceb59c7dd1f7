package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"webpify/internal/batch"
	"webpify/internal/config"
	"webpify/internal/deps"
	"webpify/internal/encoding"
	"webpify/internal/journal"
	"webpify/internal/logging"
	"webpify/internal/plan"
	"webpify/internal/scan"
	"webpify/internal/services"
)

// lockFileName guards an output root against concurrent webpify runs.
const lockFileName = ".webpify.lock"

// errReported marks failures already printed to the terminal so main does
// not repeat them before exiting nonzero.
var errReported = errors.New("failure already reported")

type convertOptions struct {
	workers    int
	quality    int
	effort     int
	lossless   bool
	output     string
	noProgress bool
	jsonOut    bool
	pause      bool
}

type convertReport struct {
	RunID          string  `json:"run_id,omitempty"`
	Total          int     `json:"total"`
	Converted      int     `json:"converted"`
	Failed         int     `json:"failed"`
	OutputRoot     string  `json:"output_root"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// runConvert owns the terminal contract of the root command: it prints
// failures itself so the exit pause lands after the message, not before.
func runConvert(cmd *cobra.Command, cctx *commandContext, opts *convertOptions, arg string) error {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}
	applyConvertFlags(cmd, cfg, opts)

	err = executeConvert(cmd, cctx, cfg, opts, arg)
	if err != nil && errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
	// Failures always offer the pause so a drag-and-drop console window
	// stays open long enough to read the message.
	pauseForEnter(cmd, err != nil || cfg.UI.PauseOnExit)
	if err != nil {
		return errReported
	}
	return nil
}

func executeConvert(cmd *cobra.Command, cctx *commandContext, cfg *config.Config, opts *convertOptions, arg string) error {
	if strings.TrimSpace(arg) == "" {
		return services.Wrap(services.ErrValidation, "args", "read input path",
			"pass a PNG file or a folder of PNG files, e.g. webpify ~/renders", nil)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cctx.ensureLogger()
	if err != nil {
		return err
	}

	path, err := config.ExpandPath(arg)
	if err != nil {
		return services.Wrap(services.ErrValidation, "args", "resolve input path", arg, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "args", "inspect input path",
			"input path does not exist: "+arg, nil)
	}

	out := cmd.OutOrStdout()
	quiet := opts.jsonOut

	var sources []string
	if info.IsDir() {
		if !quiet {
			fmt.Fprintf(out, "Processing folder: %s\n", path)
		}
		sources, err = scan.NewScanner(logger).Scan(path)
		if err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(out, "Found %d PNG file(s).\n", len(sources))
		}
	} else {
		if !scan.IsSource(path) {
			return services.Wrap(services.ErrValidation, "args", "inspect input path",
				"not a "+config.SourceExtension+" file: "+arg, nil)
		}
		if !quiet {
			fmt.Fprintf(out, "Processing file: %s\n", path)
		}
		sources = []string{path}
	}

	outputRoot := plan.ResolveOutputRoot(path, info.IsDir(), opts.output)
	if len(sources) == 0 {
		if quiet {
			return writeJSON(cmd, convertReport{OutputRoot: outputRoot})
		}
		fmt.Fprintln(out, "No PNG files found to convert.")
		return nil
	}

	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "plan", "create output root", outputRoot, err)
	}

	lock := flock.New(filepath.Join(outputRoot, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire output lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another webpify run is already writing to %s", outputRoot)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	for _, status := range deps.CheckBinaries(deps.Default(cfg)) {
		if status.Available || status.Optional {
			continue
		}
		return services.Wrap(services.ErrConfiguration, "deps", "locate "+status.Name,
			status.Detail+" (install libwebp so cwebp is on PATH)", nil)
	}

	params := encoding.ParamsFromConfig(cfg)
	if err := params.Validate(); err != nil {
		return err
	}

	planner := plan.NewPlanner(outputRoot)
	tasks := make([]plan.Task, 0, len(sources))
	for _, source := range sources {
		task, err := planner.Plan(source)
		if err != nil {
			return err
		}
		tasks = append(tasks, task)
	}

	store, err := journal.Open(cfg)
	if err != nil {
		logger.Warn("journal unavailable, continuing without run history", logging.Error(err))
		store = nil
	} else {
		defer store.Close()
	}

	converter := encoding.NewConverter(encoding.NewCwebp(cfg.CwebpBinary()), params, logger)

	if !quiet {
		workers := cfg.Convert.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		fmt.Fprintf(out, "Using %d worker(s) for parallel conversion.\n", workers)
	}

	progress := cfg.UI.Progress && !opts.noProgress && !quiet && isatty.IsTerminal(os.Stderr.Fd())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator := batch.NewCoordinator(converter, store, logger, batch.Options{
		Workers:  cfg.Convert.Workers,
		Progress: progress,
	})
	summary := coordinator.Run(ctx, path, outputRoot, tasks)

	if ctx.Err() != nil {
		if !quiet {
			fmt.Fprintf(out, "Interrupted. Converted: %d, Failed: %d\n", summary.Converted, summary.Failed)
		}
		return context.Canceled
	}

	if quiet {
		return writeJSON(cmd, convertReport{
			RunID:          summary.RunID,
			Total:          summary.Total,
			Converted:      summary.Converted,
			Failed:         summary.Failed,
			OutputRoot:     summary.OutputRoot,
			ElapsedSeconds: summary.Elapsed.Seconds(),
		})
	}
	printSummary(out, summary)
	return nil
}

// printSummary renders the batch outcome, as a table on interactive
// terminals and as plain lines everywhere else.
func printSummary(out io.Writer, summary batch.Summary) {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		headers := []string{"CONVERTED", "FAILED", "TOTAL", "TIME"}
		rows := [][]string{{
			strconv.Itoa(summary.Converted),
			strconv.Itoa(summary.Failed),
			strconv.Itoa(summary.Total),
			formatDuration(summary.Elapsed),
		}}
		aligns := []columnAlignment{alignRight, alignRight, alignRight, alignRight}
		fmt.Fprintln(out, renderTable(headers, rows, nil, aligns))
	} else {
		fmt.Fprintf(out, "Done! Converted: %d, Failed: %d\n", summary.Converted, summary.Failed)
	}
	fmt.Fprintf(out, "Output folder: %s\n", summary.OutputRoot)
}

// applyConvertFlags layers explicit flags over the loaded configuration.
// Only flags the user actually set override the file.
func applyConvertFlags(cmd *cobra.Command, cfg *config.Config, opts *convertOptions) {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Convert.Workers = opts.workers
	}
	if flags.Changed("quality") {
		cfg.Convert.Quality = opts.quality
	}
	if flags.Changed("effort") {
		cfg.Convert.Effort = opts.effort
	}
	if flags.Changed("lossless") {
		cfg.Convert.Lossless = opts.lossless
	}
	if flags.Changed("pause") {
		cfg.UI.PauseOnExit = opts.pause
	}
	if flags.Changed("no-progress") && opts.noProgress {
		cfg.UI.Progress = false
	}
}
