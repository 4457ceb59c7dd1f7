package encoding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"webpify/internal/exiftag"
	"webpify/internal/logging"
	"webpify/internal/plan"
	"webpify/internal/services"
	"webpify/internal/testsupport"
	"webpify/internal/webpio"
)

type fakeEncoder struct {
	payload    []byte
	err        error
	calls      int
	lastSrc    string
	lastDst    string
	lastParams Params
}

func (f *fakeEncoder) Encode(_ context.Context, src, dst string, params Params) error {
	f.calls++
	f.lastSrc = src
	f.lastDst = dst
	f.lastParams = params
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dst, f.payload, 0o644)
}

func newTask(t *testing.T, base string) plan.Task {
	t.Helper()
	return plan.Task{
		Source: filepath.Join(base, "render.png"),
		Output: filepath.Join(base, "webp", "2026_02_14", "render.webp"),
		Bucket: "2026_02_14",
	}
}

func TestConvertEmbedsMetadataRoundTrip(t *testing.T) {
	base := t.TempDir()
	task := newTask(t, base)
	testsupport.WritePNG(t, task.Source, 64, 48,
		testsupport.TextChunk{Key: "prompt", Text: `{"seed": 888889831853896123456789, "steps": 30}`},
		testsupport.TextChunk{Key: "workflow", Text: "graph v2 (hand tuned)"},
		testsupport.TextChunk{Key: "extra_pnginfo", Text: `{"seed_info": {"b": 2, "a": 1}, "note": "café"}`},
	)

	fake := &fakeEncoder{payload: testsupport.VP8Container(64, 48)}
	converter := NewConverter(fake, DefaultParams(), logging.NewNop())

	outcome, err := converter.Convert(context.Background(), task)
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}

	if fake.calls != 1 {
		t.Fatalf("encoder called %d times, want 1", fake.calls)
	}
	if fake.lastSrc != task.Source {
		t.Fatalf("encoder source = %q, want %q", fake.lastSrc, task.Source)
	}
	if fake.lastDst == task.Output {
		t.Fatal("encoder wrote the final output directly instead of a scratch file")
	}
	if filepath.Dir(fake.lastDst) != filepath.Dir(task.Output) {
		t.Fatalf("scratch file %q is not a sibling of the output", fake.lastDst)
	}
	if fake.lastParams != DefaultParams() {
		t.Fatalf("encoder params = %+v, want defaults", fake.lastParams)
	}

	data, err := os.ReadFile(task.Output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	block, err := webpio.ExtractEXIF(data)
	if err != nil {
		t.Fatalf("extract exif: %v", err)
	}
	if block == nil {
		t.Fatal("output carries no exif chunk")
	}
	assignments, err := exiftag.ParseTIFF(block)
	if err != nil {
		t.Fatalf("parse embedded block: %v", err)
	}
	byTag := make(map[uint16]string, len(assignments))
	for _, a := range assignments {
		byTag[a.Tag] = a.Value
	}
	want := map[uint16]string{
		0x0110: `prompt:{"seed":888889831853896123456789,"steps":30}`,
		0x010F: "workflow:graph v2 (hand tuned)",
		0x010E: `seed_info:{"a":1,"b":2}`,
		0x010D: "note:café",
	}
	if !reflect.DeepEqual(byTag, want) {
		t.Fatalf("embedded tags = %v, want %v", byTag, want)
	}

	if outcome.TagsEmbedded != 4 {
		t.Fatalf("TagsEmbedded = %d, want 4", outcome.TagsEmbedded)
	}
	wantKeys := []string{"prompt", "workflow", "extra_seed_info", "extra_note"}
	if !reflect.DeepEqual(outcome.MetadataKeys, wantKeys) {
		t.Fatalf("MetadataKeys = %v, want %v", outcome.MetadataKeys, wantKeys)
	}
	if outcome.InputBytes <= 0 || outcome.OutputBytes != int64(len(data)) {
		t.Fatalf("byte counts = %d/%d, want positive input and output %d",
			outcome.InputBytes, outcome.OutputBytes, len(data))
	}

	entries, err := os.ReadDir(filepath.Dir(task.Output))
	if err != nil {
		t.Fatalf("read bucket directory: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "render.webp" {
		t.Fatalf("bucket directory not clean after convert: %v", entries)
	}
}

func TestConvertWithoutMetadataWritesPlainContainer(t *testing.T) {
	base := t.TempDir()
	task := newTask(t, base)
	testsupport.WritePNG(t, task.Source, 32, 32)

	payload := testsupport.VP8Container(32, 32)
	fake := &fakeEncoder{payload: payload}
	converter := NewConverter(fake, DefaultParams(), logging.NewNop())

	outcome, err := converter.Convert(context.Background(), task)
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if outcome.TagsEmbedded != 0 {
		t.Fatalf("TagsEmbedded = %d, want 0", outcome.TagsEmbedded)
	}
	if len(outcome.MetadataKeys) != 0 {
		t.Fatalf("MetadataKeys = %v, want none", outcome.MetadataKeys)
	}

	data, err := os.ReadFile(task.Output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatal("metadata-free conversion should leave the encoded container untouched")
	}
	block, err := webpio.ExtractEXIF(data)
	if err != nil {
		t.Fatalf("extract exif: %v", err)
	}
	if block != nil {
		t.Fatal("expected no exif chunk in metadata-free output")
	}
}

func TestConvertUnreadableSourceMetadataStillConverts(t *testing.T) {
	base := t.TempDir()
	task := newTask(t, base)
	if err := os.WriteFile(task.Source, []byte("not a png at all"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	fake := &fakeEncoder{payload: testsupport.VP8Container(16, 16)}
	converter := NewConverter(fake, DefaultParams(), logging.NewNop())

	outcome, err := converter.Convert(context.Background(), task)
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if outcome.TagsEmbedded != 0 {
		t.Fatalf("TagsEmbedded = %d, want 0", outcome.TagsEmbedded)
	}
	if _, err := os.Stat(task.Output); err != nil {
		t.Fatalf("expected output despite unreadable metadata: %v", err)
	}
}

func TestConvertEncoderFailureLeavesNoOutput(t *testing.T) {
	base := t.TempDir()
	task := newTask(t, base)
	testsupport.WritePNG(t, task.Source, 16, 16)

	fake := &fakeEncoder{err: services.Wrap(services.ErrExternalTool, "encode", "cwebp", "exit status 1", nil)}
	converter := NewConverter(fake, DefaultParams(), logging.NewNop())

	_, err := converter.Convert(context.Background(), task)
	if err == nil {
		t.Fatal("expected encoder failure to surface")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error %v is not an external tool failure", err)
	}
	if !services.Recoverable(err) {
		t.Fatalf("expected per-file failure to be recoverable, got %v", err)
	}
	if _, statErr := os.Stat(task.Output); !os.IsNotExist(statErr) {
		t.Fatalf("expected no output file, stat err = %v", statErr)
	}
	entries, err := os.ReadDir(filepath.Dir(task.Output))
	if err != nil {
		t.Fatalf("read bucket directory: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch files left behind after failure: %v", entries)
	}
}

func TestConvertDimensionMismatchRemovesOutput(t *testing.T) {
	base := t.TempDir()
	task := newTask(t, base)
	testsupport.WritePNG(t, task.Source, 64, 48)

	fake := &fakeEncoder{payload: testsupport.VP8Container(32, 32)}
	converter := NewConverter(fake, DefaultParams(), logging.NewNop())

	_, err := converter.Convert(context.Background(), task)
	if err == nil {
		t.Fatal("expected dimension mismatch to fail the task")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error %v is not an external tool failure", err)
	}
	if !strings.Contains(err.Error(), "64x48") {
		t.Fatalf("error %v does not name the expected dimensions", err)
	}
	if _, statErr := os.Stat(task.Output); !os.IsNotExist(statErr) {
		t.Fatalf("expected mismatched output to be removed, stat err = %v", statErr)
	}
}

func TestConvertRejectsGarbageEncoderOutput(t *testing.T) {
	base := t.TempDir()
	task := newTask(t, base)
	testsupport.WritePNG(t, task.Source, 16, 16,
		testsupport.TextChunk{Key: "prompt", Text: `{"steps": 4}`},
	)

	fake := &fakeEncoder{payload: []byte("definitely not riff data")}
	converter := NewConverter(fake, DefaultParams(), logging.NewNop())

	_, err := converter.Convert(context.Background(), task)
	if err == nil {
		t.Fatal("expected garbage encoder output to fail the task")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error %v is not an external tool failure", err)
	}
	if _, statErr := os.Stat(task.Output); !os.IsNotExist(statErr) {
		t.Fatalf("expected no output file, stat err = %v", statErr)
	}
}

func TestConvertOverwritesExistingOutput(t *testing.T) {
	base := t.TempDir()
	task := newTask(t, base)
	testsupport.WritePNG(t, task.Source, 16, 16)

	if err := os.MkdirAll(filepath.Dir(task.Output), 0o755); err != nil {
		t.Fatalf("prepare bucket: %v", err)
	}
	if err := os.WriteFile(task.Output, []byte("stale output"), 0o644); err != nil {
		t.Fatalf("write stale output: %v", err)
	}

	payload := testsupport.VP8Container(16, 16)
	converter := NewConverter(&fakeEncoder{payload: payload}, DefaultParams(), logging.NewNop())

	if _, err := converter.Convert(context.Background(), task); err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	data, err := os.ReadFile(task.Output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatal("existing output was not replaced")
	}
}

func TestConvertSlotExhaustionFailsBeforeEncoding(t *testing.T) {
	base := t.TempDir()
	task := newTask(t, base)

	var entries []string
	for i := 0; i < exiftag.ExtraSlots+1; i++ {
		entries = append(entries, fmt.Sprintf("%q: %d", fmt.Sprintf("key_%02d", i), i))
	}
	extra := "{" + strings.Join(entries, ", ") + "}"
	testsupport.WritePNG(t, task.Source, 16, 16,
		testsupport.TextChunk{Key: "extra_pnginfo", Text: extra},
	)

	fake := &fakeEncoder{payload: testsupport.VP8Container(16, 16)}
	converter := NewConverter(fake, DefaultParams(), logging.NewNop())

	_, err := converter.Convert(context.Background(), task)
	if err == nil {
		t.Fatal("expected slot exhaustion to fail the task")
	}
	if !errors.Is(err, services.ErrMetadata) {
		t.Fatalf("error %v is not a metadata failure", err)
	}
	if !services.Recoverable(err) {
		t.Fatalf("expected metadata failure to be recoverable, got %v", err)
	}
	if fake.calls != 0 {
		t.Fatalf("encoder ran %d times before mapping failed, want 0", fake.calls)
	}
}
