package batch

import (
	"context"
	"runtime"
	"sync"
	"time"

	"log/slog"

	"webpify/internal/encoding"
	"webpify/internal/journal"
	"webpify/internal/logging"
	"webpify/internal/plan"
	"webpify/internal/services"
)

// Converter is the per-file pipeline the pool fans tasks out to.
type Converter interface {
	Convert(ctx context.Context, task plan.Task) (encoding.Outcome, error)
}

// Options tune one batch run.
type Options struct {
	// Workers sizes the pool; zero or negative means the detected CPU count.
	Workers int
	// Progress renders a terminal progress bar on stderr.
	Progress bool
}

// Summary aggregates the outcome of one batch run.
type Summary struct {
	RunID      string
	Total      int
	Converted  int
	Failed     int
	OutputRoot string
	Elapsed    time.Duration
}

// Coordinator dispatches conversion tasks across a bounded worker pool and
// aggregates the results. A failing task never stops the batch; it is
// counted and the pool moves on.
type Coordinator struct {
	converter Converter
	store     *journal.Store
	logger    *slog.Logger
	opts      Options
}

// NewCoordinator builds a Coordinator. store may be nil, which disables run
// history.
func NewCoordinator(converter Converter, store *journal.Store, logger *slog.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{converter: converter, store: store, logger: logger, opts: opts}
}

type result struct {
	task     plan.Task
	outcome  encoding.Outcome
	err      error
	duration time.Duration
}

// Run converts every task and reports the final counts. The batch always
// drains the full task list; per-file errors are absorbed here and reflected
// only in the counters and the journal.
func (c *Coordinator) Run(ctx context.Context, root, outputRoot string, tasks []plan.Task) Summary {
	started := time.Now()
	workers := c.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if len(tasks) > 0 && workers > len(tasks) {
		workers = len(tasks)
	}

	var run *journal.Run
	if c.store != nil {
		opened, err := c.store.BeginRun(ctx, root, outputRoot, len(tasks), workers)
		if err != nil {
			c.logger.Warn("journal unavailable, continuing without run history", logging.Error(err))
		} else {
			run = opened
			ctx = services.WithRunID(ctx, run.ID)
		}
	}

	c.logger.Info("starting batch",
		logging.String(logging.FieldStage, "batch"),
		logging.Int("total", len(tasks)),
		logging.Int("workers", workers),
		logging.String("output", outputRoot),
	)

	taskCh := make(chan plan.Task)
	resultCh := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				fileStart := time.Now()
				outcome, err := c.converter.Convert(services.WithSource(ctx, task.Source), task)
				resultCh <- result{task: task, outcome: outcome, err: err, duration: time.Since(fileStart)}
			}
		}()
	}

	go func() {
		for _, task := range tasks {
			taskCh <- task
		}
		close(taskCh)
	}()
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	bar := newProgressBar(len(tasks), c.opts.Progress)

	// The collection loop is the only writer of the counters, so the
	// aggregation needs no locking.
	summary := Summary{Total: len(tasks), OutputRoot: outputRoot}
	if run != nil {
		summary.RunID = run.ID
	}
	for res := range resultCh {
		if res.err != nil {
			summary.Failed++
			c.logger.Error("conversion failed",
				logging.String(logging.FieldSource, res.task.Source),
				logging.String(logging.FieldStage, "batch"),
				logging.String("bucket", res.task.Bucket),
				logging.Duration("file_duration", res.duration),
				logging.Error(res.err),
			)
		} else {
			summary.Converted++
		}
		if bar != nil {
			_ = bar.Add(1)
		}
		c.recordResult(ctx, run, res)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	summary.Elapsed = time.Since(started)

	if c.store != nil && run != nil {
		if err := c.store.FinishRun(ctx, run.ID, summary.Converted, summary.Failed); err != nil {
			c.logger.Warn("failed to finalize run history", logging.Error(err))
		}
	}

	c.logger.Info("batch finished",
		logging.String(logging.FieldStage, "batch"),
		logging.Int("converted", summary.Converted),
		logging.Int("failed", summary.Failed),
		logging.Int("total", summary.Total),
		logging.String("output", outputRoot),
		logging.Duration("batch_duration", summary.Elapsed),
	)

	return summary
}

func (c *Coordinator) recordResult(ctx context.Context, run *journal.Run, res result) {
	if c.store == nil || run == nil {
		return
	}

	rec := journal.FileRecord{
		RunID:          run.ID,
		Source:         res.task.Source,
		Bucket:         res.task.Bucket,
		BucketFallback: res.task.BucketFallback,
		Duration:       res.duration,
	}
	if res.err != nil {
		rec.Status = journal.StatusFailed
		rec.Error = res.err.Error()
	} else {
		rec.Status = journal.StatusConverted
		rec.Output = res.outcome.Output
		rec.InputBytes = res.outcome.InputBytes
		rec.OutputBytes = res.outcome.OutputBytes
		rec.TagsEmbedded = res.outcome.TagsEmbedded
	}

	if err := c.store.RecordFile(ctx, rec); err != nil {
		c.logger.Warn("failed to record file history",
			logging.String(logging.FieldSource, res.task.Source),
			logging.Error(err),
		)
	}
}
