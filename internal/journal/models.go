package journal

import "time"

// File statuses recorded in the journal.
const (
	StatusConverted = "converted"
	StatusFailed    = "failed"
)

// Run is one batch invocation: where it scanned, where it wrote, and the
// final counters. FinishedAt stays zero while the batch is in flight or when
// the process died before finishing.
type Run struct {
	ID         string
	Root       string
	OutputRoot string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Converted  int
	Failed     int
	Workers    int
}

// Finished reports whether the run recorded a final summary.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// FileRecord is the journal row for one conversion attempt.
type FileRecord struct {
	RunID          string
	Source         string
	Output         string
	Bucket         string
	BucketFallback bool
	Status         string
	Error          string
	InputBytes     int64
	OutputBytes    int64
	TagsEmbedded   int
	Duration       time.Duration
	RecordedAt     time.Time
}
