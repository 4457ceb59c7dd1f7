package plan

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"webpify/internal/config"
	"webpify/internal/services"
)

// bucketLayout renders creation dates as directory names.
const bucketLayout = "2006_01_02"

// Task is one unit of conversion work: immutable once planned, consumed by
// exactly one worker.
type Task struct {
	Source         string
	Output         string
	Bucket         string
	BucketFallback bool
}

// Planner maps source files to dated destinations under one output root.
type Planner struct {
	outputRoot string
	now        func() time.Time
}

// NewPlanner plans destinations under outputRoot.
func NewPlanner(outputRoot string) *Planner {
	return NewPlannerWithClock(outputRoot, time.Now)
}

// NewPlannerWithClock injects the clock used for fallback dates.
func NewPlannerWithClock(outputRoot string, now func() time.Time) *Planner {
	return &Planner{outputRoot: outputRoot, now: now}
}

// OutputRoot returns the root all planned destinations share.
func (p *Planner) OutputRoot() string {
	return p.outputRoot
}

// ResolveOutputRoot picks the webp root for the argument path: an explicit
// override wins, a directory argument gets a webp child, a file argument a
// webp sibling.
func ResolveOutputRoot(argPath string, isDir bool, override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	if isDir {
		return filepath.Join(argPath, config.OutputDirName)
	}
	return filepath.Join(filepath.Dir(argPath), config.OutputDirName)
}

// Plan assigns the destination for one source file and creates its bucket
// directory. Creating an already existing directory is not an error; two
// tasks may share a bucket.
func (p *Planner) Plan(source string) (Task, error) {
	bucket, fallback := p.bucketFor(source)
	dir := filepath.Join(p.outputRoot, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Task{}, services.Wrap(
			services.ErrTransient,
			"plan",
			"create bucket directory",
			"failed to create output directory "+dir,
			err,
		)
	}

	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return Task{
		Source:         source,
		Output:         filepath.Join(dir, stem+config.TargetExtension),
		Bucket:         bucket,
		BucketFallback: fallback,
	}, nil
}

// bucketFor derives the date bucket from the file's birth time, falling back
// to the current date when the platform cannot report one.
func (p *Planner) bucketFor(source string) (string, bool) {
	if ts, ok := birthTime(source); ok {
		return ts.Format(bucketLayout), false
	}
	return p.now().Format(bucketLayout), true
}
