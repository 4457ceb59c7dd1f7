package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"webpify/internal/journal"
)

func newReportCommand(cctx *commandContext) *cobra.Command {
	var limit int
	var runID string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show recorded conversion runs",
		Long: `report lists recent batch runs from the conversion journal. Pass --run
with a run ID (prefixes are accepted) to inspect its per-file records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			if id := strings.TrimSpace(runID); id != "" {
				return reportRun(cmd, store, id, jsonOut)
			}
			return reportRecent(cmd, store, limit, jsonOut)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "Show per-file records for one run")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}

func reportRecent(cmd *cobra.Command, store *journal.Store, limit int, jsonOut bool) error {
	runs, err := store.RecentRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if jsonOut {
		payloads := make([]runPayload, 0, len(runs))
		for _, run := range runs {
			payloads = append(payloads, newRunPayload(run))
		}
		return writeJSON(cmd, payloads)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No conversion runs recorded yet.")
		return nil
	}

	headers := []string{"RUN", "STARTED", "SOURCE", "TOTAL", "OK", "FAILED", "WORKERS", "STATE"}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortRunID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Root,
			strconv.Itoa(run.Total),
			strconv.Itoa(run.Converted),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.Workers),
			runState(run),
		})
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}
	fmt.Fprintln(out, renderTable(headers, rows, nil, aligns))
	return nil
}

func reportRun(cmd *cobra.Command, store *journal.Store, id string, jsonOut bool) error {
	ctx := cmd.Context()
	run, err := resolveRun(ctx, store, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}
	files, err := store.RunFiles(ctx, run.ID)
	if err != nil {
		return err
	}
	if jsonOut {
		payloads := make([]filePayload, 0, len(files))
		for _, rec := range files {
			payloads = append(payloads, newFilePayload(rec))
		}
		return writeJSON(cmd, runDetailPayload{Run: newRunPayload(*run), Files: payloads})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s\n", run.ID)
	fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(time.RFC1123))
	if run.Finished() {
		fmt.Fprintf(out, "Finished: %s\n", run.FinishedAt.Local().Format(time.RFC1123))
	}
	fmt.Fprintf(out, "Source:   %s\n", run.Root)
	fmt.Fprintf(out, "Output:   %s\n", run.OutputRoot)

	if len(files) == 0 {
		fmt.Fprintln(out, "No file records for this run.")
		return nil
	}

	var inTotal, outTotal int64
	headers := []string{"SOURCE", "STATUS", "BUCKET", "IN", "OUT", "SAVED", "TAGS", "TIME"}
	rows := make([][]string, 0, len(files))
	for _, rec := range files {
		status := rec.Status
		if rec.Error != "" {
			status = truncate(rec.Status+": "+rec.Error, 48)
		}
		rows = append(rows, []string{
			filepath.Base(rec.Source),
			status,
			rec.Bucket,
			sizeCell(rec.InputBytes),
			sizeCell(rec.OutputBytes),
			savedPercent(rec.InputBytes, rec.OutputBytes),
			strconv.Itoa(rec.TagsEmbedded),
			formatDuration(rec.Duration),
		})
		inTotal += rec.InputBytes
		outTotal += rec.OutputBytes
	}
	footer := []string{
		fmt.Sprintf("%d file(s)", len(files)),
		fmt.Sprintf("%d ok, %d failed", run.Converted, run.Failed),
		"",
		sizeCell(inTotal),
		sizeCell(outTotal),
		savedPercent(inTotal, outTotal),
		"",
		"",
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}
	fmt.Fprintln(out, renderTable(headers, rows, footer, aligns))
	return nil
}

// resolveRun accepts full run IDs and unambiguous prefixes, so IDs can be
// pasted straight from the shortened report listing.
func resolveRun(ctx context.Context, store *journal.Store, id string) (*journal.Run, error) {
	run, err := store.GetRun(ctx, id)
	if err != nil || run != nil {
		return run, err
	}

	runs, err := store.RecentRuns(ctx, 100)
	if err != nil {
		return nil, err
	}
	var match *journal.Run
	for i := range runs {
		if !strings.HasPrefix(runs[i].ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("run id %s matches more than one run", id)
		}
		match = &runs[i]
	}
	return match, nil
}

func runState(run journal.Run) string {
	if run.Finished() {
		return "done"
	}
	return "unfinished"
}

type runPayload struct {
	ID         string     `json:"id"`
	Root       string     `json:"root"`
	OutputRoot string     `json:"output_root"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Total      int        `json:"total"`
	Converted  int        `json:"converted"`
	Failed     int        `json:"failed"`
	Workers    int        `json:"workers"`
}

func newRunPayload(run journal.Run) runPayload {
	payload := runPayload{
		ID:         run.ID,
		Root:       run.Root,
		OutputRoot: run.OutputRoot,
		StartedAt:  run.StartedAt,
		Total:      run.Total,
		Converted:  run.Converted,
		Failed:     run.Failed,
		Workers:    run.Workers,
	}
	if run.Finished() {
		finished := run.FinishedAt
		payload.FinishedAt = &finished
	}
	return payload
}

type filePayload struct {
	Source         string    `json:"source"`
	Output         string    `json:"output,omitempty"`
	Bucket         string    `json:"bucket,omitempty"`
	BucketFallback bool      `json:"bucket_fallback,omitempty"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	InputBytes     int64     `json:"input_bytes"`
	OutputBytes    int64     `json:"output_bytes"`
	TagsEmbedded   int       `json:"tags_embedded"`
	DurationMS     int64     `json:"duration_ms"`
	RecordedAt     time.Time `json:"recorded_at"`
}

func newFilePayload(rec journal.FileRecord) filePayload {
	return filePayload{
		Source:         rec.Source,
		Output:         rec.Output,
		Bucket:         rec.Bucket,
		BucketFallback: rec.BucketFallback,
		Status:         rec.Status,
		Error:          rec.Error,
		InputBytes:     rec.InputBytes,
		OutputBytes:    rec.OutputBytes,
		TagsEmbedded:   rec.TagsEmbedded,
		DurationMS:     rec.Duration.Milliseconds(),
		RecordedAt:     rec.RecordedAt,
	}
}

type runDetailPayload struct {
	Run   runPayload    `json:"run"`
	Files []filePayload `json:"files"`
}
