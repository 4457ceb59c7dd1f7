package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"webpify/internal/config"
	"webpify/internal/exiftag"
	"webpify/internal/journal"
	"webpify/internal/testsupport"
	"webpify/internal/webpio"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	inputDir   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedCwebp(64, 48))
	base := testsupport.BaseDir(cfg)

	inputDir := filepath.Join(base, "renders")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		t.Fatalf("create input dir: %v", err)
	}

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, inputDir: inputDir}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\njournal_path = %q\nlog_dir = %q\n\n[convert]\nworkers = %d\n\n[ui]\nprogress = false\npause_on_exit = false\n",
		cfg.Paths.JournalPath,
		cfg.Paths.LogDir,
		cfg.Convert.Workers,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func findOutputs(t *testing.T, root string) []string {
	t.Helper()
	var outputs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == config.TargetExtension {
			outputs = append(outputs, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return outputs
}

func TestCLIConvertFolder(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.WritePNG(t, filepath.Join(env.inputDir, "alpha.png"), 64, 48,
		testsupport.TextChunk{Key: "prompt", Text: `{"seed": 11, "steps": 20}`},
		testsupport.TextChunk{Key: "workflow", Text: `{"nodes": []}`},
	)
	testsupport.WritePNG(t, filepath.Join(env.inputDir, "nested", "beta.png"), 64, 48)

	stdout, _, err := runCLI(t, []string{env.inputDir}, env.configPath)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	requireContains(t, stdout, "Processing folder: "+env.inputDir)
	requireContains(t, stdout, "Found 2 PNG file(s).")
	requireContains(t, stdout, "Done! Converted: 2, Failed: 0")

	outputRoot := filepath.Join(env.inputDir, config.OutputDirName)
	requireContains(t, stdout, "Output folder: "+outputRoot)

	outputs := findOutputs(t, outputRoot)
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs under %s, found %v", outputRoot, outputs)
	}

	var alpha string
	for _, path := range outputs {
		if filepath.Base(path) == "alpha.webp" {
			alpha = path
		}
	}
	if alpha == "" {
		t.Fatalf("alpha.webp missing from %v", outputs)
	}

	data, err := os.ReadFile(alpha)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	exif, err := webpio.ExtractEXIF(data)
	if err != nil {
		t.Fatalf("ExtractEXIF: %v", err)
	}
	assignments, err := exiftag.ParseTIFF(exif)
	if err != nil {
		t.Fatalf("ParseTIFF: %v", err)
	}
	byTag := make(map[uint16]string, len(assignments))
	for _, a := range assignments {
		byTag[a.Tag] = a.Value
	}
	if got := byTag[exiftag.TagPrompt]; got != `prompt:{"seed":11,"steps":20}` {
		t.Fatalf("prompt tag = %q", got)
	}
	if got := byTag[exiftag.TagWorkflow]; got != `workflow:{"nodes":[]}` {
		t.Fatalf("workflow tag = %q", got)
	}
}

func TestCLIConvertSingleFile(t *testing.T) {
	env := setupCLITestEnv(t)
	source := filepath.Join(env.inputDir, "single.png")
	testsupport.WritePNG(t, source, 64, 48)

	stdout, _, err := runCLI(t, []string{source}, env.configPath)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	requireContains(t, stdout, "Processing file: "+source)
	requireContains(t, stdout, "Done! Converted: 1, Failed: 0")

	outputs := findOutputs(t, filepath.Join(env.inputDir, config.OutputDirName))
	if len(outputs) != 1 || filepath.Base(outputs[0]) != "single.webp" {
		t.Fatalf("unexpected outputs %v", outputs)
	}
}

func TestCLIConvertCountsFailuresAndStillExitsZero(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.WritePNG(t, filepath.Join(env.inputDir, "good.png"), 64, 48)
	// The stub encoder always emits a 64x48 container, so a source with
	// different dimensions fails output validation.
	testsupport.WritePNG(t, filepath.Join(env.inputDir, "wrongsize.png"), 32, 32)

	stdout, _, err := runCLI(t, []string{env.inputDir}, env.configPath)
	if err != nil {
		t.Fatalf("a failed file must not fail the batch: %v", err)
	}
	requireContains(t, stdout, "Done! Converted: 1, Failed: 1")

	outputs := findOutputs(t, filepath.Join(env.inputDir, config.OutputDirName))
	if len(outputs) != 1 || filepath.Base(outputs[0]) != "good.webp" {
		t.Fatalf("unexpected outputs %v", outputs)
	}
}

func TestCLIConvertEmptyFolder(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{env.inputDir}, env.configPath)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	requireContains(t, stdout, "No PNG files found to convert.")
}

func TestCLIConvertRequiresArgument(t *testing.T) {
	env := setupCLITestEnv(t)

	_, stderr, err := runCLI(t, nil, env.configPath)
	if !errors.Is(err, errReported) {
		t.Fatalf("expected reported failure, got %v", err)
	}
	requireContains(t, stderr, "pass a PNG file or a folder")
}

func TestCLIConvertMissingPathFails(t *testing.T) {
	env := setupCLITestEnv(t)

	_, stderr, err := runCLI(t, []string{filepath.Join(env.inputDir, "missing")}, env.configPath)
	if !errors.Is(err, errReported) {
		t.Fatalf("expected reported failure, got %v", err)
	}
	requireContains(t, stderr, "input path does not exist")
}

func TestCLIConvertRejectsNonPNGFile(t *testing.T) {
	env := setupCLITestEnv(t)
	note := filepath.Join(env.inputDir, "note.txt")
	if err := os.WriteFile(note, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write note: %v", err)
	}

	_, stderr, err := runCLI(t, []string{note}, env.configPath)
	if !errors.Is(err, errReported) {
		t.Fatalf("expected reported failure, got %v", err)
	}
	requireContains(t, stderr, "not a .png file")
}

func TestCLIConvertMissingEncoderFails(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WritePNG(t, filepath.Join(env.inputDir, "one.png"), 64, 48)
	t.Setenv("PATH", testsupport.BaseDir(env.cfg))

	_, stderr, err := runCLI(t, []string{env.inputDir}, env.configPath)
	if !errors.Is(err, errReported) {
		t.Fatalf("expected reported failure, got %v", err)
	}
	requireContains(t, stderr, "install libwebp")
}

func TestCLIConvertRefusesConcurrentRun(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WritePNG(t, filepath.Join(env.inputDir, "one.png"), 64, 48)

	outputRoot := filepath.Join(env.inputDir, config.OutputDirName)
	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		t.Fatalf("create output root: %v", err)
	}
	lock := flock.New(filepath.Join(outputRoot, lockFileName))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("prelock output root: locked=%v err=%v", locked, err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	_, stderr, err := runCLI(t, []string{env.inputDir}, env.configPath)
	if !errors.Is(err, errReported) {
		t.Fatalf("expected reported failure, got %v", err)
	}
	requireContains(t, stderr, "already writing")
}

func TestCLIConvertJSONSummary(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WritePNG(t, filepath.Join(env.inputDir, "one.png"), 64, 48)

	stdout, _, err := runCLI(t, []string{"--json", env.inputDir}, env.configPath)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if strings.Contains(stdout, "Done!") {
		t.Fatalf("json mode must not print the plain summary: %q", stdout)
	}

	var report convertReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, stdout)
	}
	if report.Total != 1 || report.Converted != 1 || report.Failed != 0 {
		t.Fatalf("unexpected summary %+v", report)
	}
	if report.RunID == "" {
		t.Fatalf("summary missing run id: %+v", report)
	}
	if report.OutputRoot != filepath.Join(env.inputDir, config.OutputDirName) {
		t.Fatalf("unexpected output root %q", report.OutputRoot)
	}
}

func TestCLIConvertRejectsBadQualityFlag(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WritePNG(t, filepath.Join(env.inputDir, "one.png"), 64, 48)

	_, stderr, err := runCLI(t, []string{"--quality", "400", env.inputDir}, env.configPath)
	if !errors.Is(err, errReported) {
		t.Fatalf("expected reported failure, got %v", err)
	}
	requireContains(t, stderr, "convert.quality")
}

func TestCLIWorkersFlagOverridesConfig(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WritePNG(t, filepath.Join(env.inputDir, "one.png"), 64, 48)
	testsupport.WritePNG(t, filepath.Join(env.inputDir, "two.png"), 64, 48)

	if _, _, err := runCLI(t, []string{"--workers", "1", env.inputDir}, env.configPath); err != nil {
		t.Fatalf("convert: %v", err)
	}

	store := testsupport.MustOpenJournal(t, env.cfg)
	runs, err := store.RecentRuns(context.Background(), 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("RecentRuns: runs=%d err=%v", len(runs), err)
	}
	if runs[0].Workers != 1 {
		t.Fatalf("expected recorded workers 1, got %d", runs[0].Workers)
	}
}

func TestCLIConvertRecordsJournal(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WritePNG(t, filepath.Join(env.inputDir, "one.png"), 64, 48)

	if _, _, err := runCLI(t, []string{env.inputDir}, env.configPath); err != nil {
		t.Fatalf("convert: %v", err)
	}

	store := testsupport.MustOpenJournal(t, env.cfg)
	ctx := context.Background()
	runs, err := store.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.Total != 1 || run.Converted != 1 || run.Failed != 0 {
		t.Fatalf("unexpected run counters %+v", run)
	}
	if !run.Finished() {
		t.Fatalf("run not finalized: %+v", run)
	}

	files, err := store.RunFiles(ctx, run.ID)
	if err != nil {
		t.Fatalf("RunFiles: %v", err)
	}
	if len(files) != 1 || files[0].Status != journal.StatusConverted {
		t.Fatalf("unexpected file records %+v", files)
	}
}
