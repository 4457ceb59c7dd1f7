package encoding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"

	"golang.org/x/image/webp"

	"webpify/internal/exiftag"
	"webpify/internal/fileutil"
	"webpify/internal/logging"
	"webpify/internal/plan"
	"webpify/internal/pngmeta"
	"webpify/internal/services"
	"webpify/internal/webpio"
)

// Outcome describes one completed conversion.
type Outcome struct {
	Source       string
	Output       string
	InputBytes   int64
	OutputBytes  int64
	TagsEmbedded int
	MetadataKeys []string
}

// Converter runs the per-file pipeline: lift metadata from the source PNG,
// encode pixels with cwebp, splice the metadata block into the container,
// and verify the result decodes. Failures stop at this boundary; the caller
// counts them and moves on.
type Converter struct {
	encoder Encoder
	params  Params
	logger  *slog.Logger
}

// NewConverter builds a Converter around the given encoder and parameters.
func NewConverter(encoder Encoder, params Params, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Converter{encoder: encoder, params: params, logger: logger}
}

// Convert processes one planned task and writes exactly one file at the
// task's output path, replacing any previous file there. Metadata problems
// inside the source degrade to a warning; everything else fails the task.
func (c *Converter) Convert(ctx context.Context, task plan.Task) (Outcome, error) {
	logger := logging.WithContext(ctx, c.logger)

	srcInfo, err := os.Stat(task.Source)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrNotFound, "read", "stat source", "source file is not accessible", err)
	}

	info, err := pngmeta.ReadFile(task.Source)
	if err != nil {
		logger.Warn("unable to read png metadata, converting without tags",
			logging.String(logging.FieldStage, "metadata"),
			logging.Error(err),
		)
		info = pngmeta.Info{}
	}
	for _, warning := range info.Warnings {
		logger.Warn("skipped unreadable text chunk",
			logging.String(logging.FieldStage, "metadata"),
			logging.String("detail", warning),
		)
	}

	assignments, err := exiftag.Map(info.Record)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrMetadata, "map", "assign exif tags", "metadata does not fit the tag layout", err)
	}
	tiff, err := exiftag.BuildTIFF(assignments)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrMetadata, "map", "build exif block", "tag assignments could not be serialized", err)
	}

	outputDir := filepath.Dir(task.Output)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "encode", "create output directory", "failed to create "+outputDir, err)
	}
	tmp, err := os.CreateTemp(outputDir, ".webpify-*.webp")
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "encode", "create temp file", "failed to create scratch file in "+outputDir, err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "encode", "close temp file", "failed to close scratch file", err)
	}
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if err := c.encoder.Encode(ctx, task.Source, tmpPath, c.params); err != nil {
		return Outcome{}, err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "encode", "chmod output", "failed to set output permissions", err)
	}

	if len(tiff) == 0 {
		if err := fileutil.MoveFile(tmpPath, task.Output); err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "write", "finalize output", "failed to move encoded file into place", err)
		}
	} else {
		encoded, err := os.ReadFile(tmpPath)
		if err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "write", "read encoded file", "failed to read scratch file", err)
		}
		withMetadata, err := webpio.InjectEXIF(encoded, tiff)
		if err != nil {
			return Outcome{}, services.Wrap(services.ErrExternalTool, "write", "inject exif", "encoder produced an unusable container", err)
		}
		if err := fileutil.WriteFileAtomic(task.Output, withMetadata, 0o644); err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "write", "finalize output", "failed to write output file", err)
		}
	}

	if err := validateOutput(task.Output, info); err != nil {
		_ = os.Remove(task.Output)
		return Outcome{}, err
	}

	outInfo, err := os.Stat(task.Output)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "validate", "stat output", "output file vanished after write", err)
	}

	outcome := Outcome{
		Source:       task.Source,
		Output:       task.Output,
		InputBytes:   srcInfo.Size(),
		OutputBytes:  outInfo.Size(),
		TagsEmbedded: len(assignments),
		MetadataKeys: metadataKeys(info.Record),
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldStage, "encode"),
		logging.String("output", task.Output),
		logging.String("bucket", task.Bucket),
		logging.Int64("input_bytes", outcome.InputBytes),
		logging.Int64("output_bytes", outcome.OutputBytes),
		logging.Int("tags_embedded", outcome.TagsEmbedded),
	}
	if outcome.InputBytes > 0 {
		reduction := (1 - float64(outcome.OutputBytes)/float64(outcome.InputBytes)) * 100
		attrs = append(attrs, logging.Float64("reduction_percent", reduction))
	}
	if task.BucketFallback {
		attrs = append(attrs, logging.Bool("bucket_fallback", true))
	}
	if len(outcome.MetadataKeys) > 0 {
		attrs = append(attrs, logging.Any("metadata_keys", outcome.MetadataKeys))
	}
	logger.Info("converted", logging.Args(attrs...)...)

	return outcome, nil
}

// validateOutput confirms the written file is a decodable WebP whose canvas
// matches the source. Only container headers are read. A failure here means
// the encoder misbehaved, so the file is treated as an encode failure rather
// than a caller mistake.
func validateOutput(path string, src pngmeta.Info) error {
	f, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrTransient, "validate", "open output", "failed to open output file", err)
	}
	defer f.Close()

	cfg, err := webp.DecodeConfig(f)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "validate", "decode webp", "output is not a readable webp file", err)
	}
	if src.Width > 0 && src.Height > 0 && (cfg.Width != src.Width || cfg.Height != src.Height) {
		return services.Wrap(
			services.ErrExternalTool,
			"validate",
			"compare dimensions",
			fmt.Sprintf("output canvas %dx%d does not match source %dx%d", cfg.Width, cfg.Height, src.Width, src.Height),
			nil,
		)
	}
	return nil
}

// metadataKeys names the fields that produced tag assignments, in embed
// order. Extra entries are prefixed to keep them distinguishable from the
// primary fields in logs and reports.
func metadataKeys(rec pngmeta.Record) []string {
	var keys []string
	if rec.Prompt != nil {
		keys = append(keys, pngmeta.KeyPrompt)
	}
	if rec.Workflow != nil {
		keys = append(keys, pngmeta.KeyWorkflow)
	}
	if rec.Extra != nil && rec.Extra.Mapping {
		for _, field := range rec.Extra.Fields {
			keys = append(keys, "extra_"+field.Key)
		}
	}
	return keys
}
