package testsupport

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

// TextChunk is one keyword/text pair injected into a generated PNG.
type TextChunk struct {
	Key  string
	Text string
}

// WritePNG renders a solid PNG of the given dimensions at path and injects
// the provided tEXt chunks into its container, the way image generators
// attach prompt and workflow metadata.
func WritePNG(t testing.TB, path string, width, height int, chunks ...TextChunk) {
	t.Helper()

	img := imaging.New(width, height, color.NRGBA{R: 90, G: 120, B: 180, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	data := buf.Bytes()
	// The encoder always terminates with the 12-byte IEND chunk.
	if len(data) < 12 {
		t.Fatalf("png encoder produced %d bytes", len(data))
	}
	iend := len(data) - 12

	out := make([]byte, 0, len(data)+len(chunks)*64)
	out = append(out, data[:iend]...)
	for _, c := range chunks {
		payload := append([]byte(c.Key), 0)
		payload = append(payload, c.Text...)
		out = append(out, pngChunk("tEXt", payload)...)
	}
	out = append(out, data[iend:]...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func pngChunk(typ string, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+12)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	out = append(out, length[:]...)
	out = append(out, typ...)
	out = append(out, payload...)
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(payload)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	return append(out, sum[:]...)
}

// VP8Container builds a minimal lossy WebP container whose keyframe header
// reports the given dimensions. The frame body is filler, which satisfies
// header-only readers such as DecodeConfig.
func VP8Container(width, height int) []byte {
	payload := make([]byte, 0, 32)
	payload = append(payload, 0x10, 0x00, 0x00)
	payload = append(payload, 0x9D, 0x01, 0x2A)
	payload = binary.LittleEndian.AppendUint16(payload, uint16(width))
	payload = binary.LittleEndian.AppendUint16(payload, uint16(height))
	payload = append(payload, make([]byte, 20)...)
	return riffContainer(riffChunk("VP8 ", payload))
}

// VP8LContainer builds a minimal lossless WebP container.
func VP8LContainer(width, height int, alpha bool) []byte {
	bits := uint32(width-1) & 0x3FFF
	bits |= (uint32(height-1) & 0x3FFF) << 14
	if alpha {
		bits |= 1 << 28
	}
	payload := make([]byte, 0, 32)
	payload = append(payload, 0x2F)
	payload = binary.LittleEndian.AppendUint32(payload, bits)
	payload = append(payload, make([]byte, 16)...)
	return riffContainer(riffChunk("VP8L", payload))
}

// VP8XContainer builds an extended container: a VP8X header describing the
// canvas followed by a matching lossy frame.
func VP8XContainer(width, height int, alpha bool) []byte {
	header := make([]byte, 10)
	if alpha {
		header[0] |= 0x10
	}
	w := uint32(width - 1)
	h := uint32(height - 1)
	header[4] = byte(w)
	header[5] = byte(w >> 8)
	header[6] = byte(w >> 16)
	header[7] = byte(h)
	header[8] = byte(h >> 8)
	header[9] = byte(h >> 16)

	frame := VP8Container(width, height)
	// Reuse the VP8 chunk bytes from the minimal container (after the
	// 12-byte RIFF header).
	return riffContainer(append(riffChunk("VP8X", header), frame[12:]...))
}

func riffChunk(fourCC string, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+9)
	out = append(out, fourCC...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
	out = append(out, payload...)
	if len(payload)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

func riffContainer(body []byte) []byte {
	out := make([]byte, 0, len(body)+12)
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(4+len(body)))
	out = append(out, "WEBP"...)
	return append(out, body...)
}
