package pngmeta_test

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"strings"
	"testing"

	"webpify/internal/pngmeta"
)

var signature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

func chunk(typ string, data []byte) []byte {
	out := make([]byte, 0, len(data)+12)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	out = append(out, length[:]...)
	out = append(out, typ...)
	out = append(out, data...)
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	return append(out, sum[:]...)
}

func ihdr(width, height uint32) []byte {
	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:4], width)
	binary.BigEndian.PutUint32(data[4:8], height)
	data[8] = 8
	data[9] = 6
	return chunk("IHDR", data)
}

func text(key, value string) []byte {
	data := append([]byte(key), 0)
	data = append(data, value...)
	return chunk("tEXt", data)
}

func ztxt(t *testing.T, key, value string) []byte {
	t.Helper()
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write([]byte(value)); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close compressor: %v", err)
	}
	data := append([]byte(key), 0, 0)
	data = append(data, compressed.Bytes()...)
	return chunk("zTXt", data)
}

func itxt(key, value string) []byte {
	data := append([]byte(key), 0, 0, 0)
	data = append(data, 0) // empty language tag
	data = append(data, 0) // empty translated keyword
	data = append(data, value...)
	return chunk("iTXt", data)
}

func buildPNG(chunks ...[]byte) []byte {
	out := append([]byte{}, signature...)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return append(out, chunk("IEND", nil)...)
}

func TestReadExtractsAllTextChunkKinds(t *testing.T) {
	png := buildPNG(
		ihdr(640, 480),
		text("prompt", `{"seed":123}`),
		ztxt(t, "workflow", `{"nodes":[]}`),
		itxt("extra_pnginfo", `{"title":"render","count":2}`),
	)

	info, err := pngmeta.Read(bytes.NewReader(png))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if info.Width != 640 || info.Height != 480 {
		t.Fatalf("unexpected dimensions %dx%d", info.Width, info.Height)
	}
	if len(info.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", info.Warnings)
	}

	rec := info.Record
	if rec.Prompt == nil || !rec.Prompt.JSON || rec.Prompt.Raw != `{"seed":123}` {
		t.Fatalf("unexpected prompt: %+v", rec.Prompt)
	}
	if rec.Workflow == nil || !rec.Workflow.JSON || rec.Workflow.Raw != `{"nodes":[]}` {
		t.Fatalf("unexpected workflow: %+v", rec.Workflow)
	}
	if rec.Extra == nil || !rec.Extra.Mapping {
		t.Fatalf("unexpected extra: %+v", rec.Extra)
	}
	if len(rec.Extra.Fields) != 2 || rec.Extra.Fields[0].Key != "title" || rec.Extra.Fields[1].Key != "count" {
		t.Fatalf("unexpected extra fields: %+v", rec.Extra.Fields)
	}
}

func TestReadDecodesLatin1Text(t *testing.T) {
	png := buildPNG(
		ihdr(1, 1),
		text("prompt", "caf\xe9"),
	)

	info, err := pngmeta.Read(bytes.NewReader(png))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if info.Record.Prompt == nil || info.Record.Prompt.Raw != "café" {
		t.Fatalf("latin-1 text not decoded: %+v", info.Record.Prompt)
	}
}

func TestReadSkipsMalformedChunkWithWarning(t *testing.T) {
	badZtxt := chunk("zTXt", append([]byte("workflow"), 0, 0, 0xFF, 0xFF))
	png := buildPNG(
		ihdr(1, 1),
		badZtxt,
		text("prompt", "hello"),
	)

	info, err := pngmeta.Read(bytes.NewReader(png))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(info.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", info.Warnings)
	}
	if !strings.Contains(info.Warnings[0], "workflow") {
		t.Fatalf("warning should name the keyword: %q", info.Warnings[0])
	}
	if info.Record.Workflow != nil {
		t.Fatalf("malformed chunk should be dropped, got %+v", info.Record.Workflow)
	}
	if info.Record.Prompt == nil || info.Record.Prompt.Raw != "hello" {
		t.Fatalf("later chunk should still be read: %+v", info.Record.Prompt)
	}
}

func TestReadNoTextChunksYieldsEmptyRecord(t *testing.T) {
	info, err := pngmeta.Read(bytes.NewReader(buildPNG(ihdr(2, 2))))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !info.Record.Empty() {
		t.Fatalf("expected empty record, got %+v", info.Record)
	}
}

func TestReadRejectsNonPNG(t *testing.T) {
	if _, err := pngmeta.Read(strings.NewReader("definitely not a png")); err == nil {
		t.Fatal("expected error for non-png input")
	}
}

func TestReadRejectsTruncatedContainer(t *testing.T) {
	png := buildPNG(ihdr(1, 1), text("prompt", "x"))
	truncated := png[:len(png)-6]
	if _, err := pngmeta.Read(bytes.NewReader(truncated)); err == nil {
		t.Fatal("expected error for truncated container")
	}
}

func TestReadIgnoresUnrelatedKeywords(t *testing.T) {
	png := buildPNG(
		ihdr(1, 1),
		text("Software", "ComfyUI"),
		text("prompt", "p"),
	)
	info, err := pngmeta.Read(bytes.NewReader(png))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if info.Record.Prompt == nil || info.Record.Prompt.Raw != "p" {
		t.Fatalf("unexpected prompt: %+v", info.Record.Prompt)
	}
	if info.Record.Workflow != nil || info.Record.Extra != nil {
		t.Fatalf("unrelated keyword leaked into record: %+v", info.Record)
	}
}
