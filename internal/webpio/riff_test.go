package webpio_test

import (
	"bytes"
	"testing"

	"golang.org/x/image/webp"

	"webpify/internal/exiftag"
	"webpify/internal/testsupport"
	"webpify/internal/webpio"
)

func tiffBlock(t *testing.T) []byte {
	t.Helper()
	block, err := exiftag.BuildTIFF([]exiftag.Assignment{
		{Tag: 0x0110, Value: `prompt:{"seed":42}`},
		{Tag: 0x010E, Value: "a:1"},
	})
	if err != nil {
		t.Fatalf("BuildTIFF: %v", err)
	}
	return block
}

func TestInjectEXIFUpgradesPlainContainers(t *testing.T) {
	cases := []struct {
		name  string
		src   []byte
		alpha bool
	}{
		{"vp8", testsupport.VP8Container(320, 200), false},
		{"vp8l", testsupport.VP8LContainer(320, 200, false), false},
		{"vp8l alpha", testsupport.VP8LContainer(320, 200, true), true},
	}

	block := tiffBlock(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := webpio.InjectEXIF(tc.src, block)
			if err != nil {
				t.Fatalf("InjectEXIF: %v", err)
			}

			features, err := webpio.ReadFeatures(out)
			if err != nil {
				t.Fatalf("ReadFeatures: %v", err)
			}
			if !features.HasEXIF {
				t.Fatal("EXIF chunk missing after injection")
			}
			if features.Width != 320 || features.Height != 200 {
				t.Fatalf("canvas changed: %dx%d", features.Width, features.Height)
			}
			if features.Alpha != tc.alpha {
				t.Fatalf("alpha flag: got %v want %v", features.Alpha, tc.alpha)
			}

			cfg, err := webp.DecodeConfig(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("container no longer decodable: %v", err)
			}
			if cfg.Width != 320 || cfg.Height != 200 {
				t.Fatalf("decoded config %dx%d, want 320x200", cfg.Width, cfg.Height)
			}

			got, err := webpio.ExtractEXIF(out)
			if err != nil {
				t.Fatalf("ExtractEXIF: %v", err)
			}
			if !bytes.Equal(got, block) {
				t.Fatal("stored tiff block differs from input")
			}
		})
	}
}

func TestInjectEXIFSetsFlagOnExistingVP8X(t *testing.T) {
	src := testsupport.VP8XContainer(64, 48, true)
	out, err := webpio.InjectEXIF(src, tiffBlock(t))
	if err != nil {
		t.Fatalf("InjectEXIF: %v", err)
	}

	features, err := webpio.ReadFeatures(out)
	if err != nil {
		t.Fatalf("ReadFeatures: %v", err)
	}
	if !features.HasEXIF || !features.Alpha {
		t.Fatalf("unexpected features: %+v", features)
	}
	if features.Width != 64 || features.Height != 48 {
		t.Fatalf("canvas changed: %+v", features)
	}

	if _, err := webp.DecodeConfig(bytes.NewReader(out)); err != nil {
		t.Fatalf("container no longer decodable: %v", err)
	}
}

func TestInjectEXIFReplacesExistingChunk(t *testing.T) {
	src := testsupport.VP8Container(10, 10)

	first, err := webpio.InjectEXIF(src, tiffBlock(t))
	if err != nil {
		t.Fatalf("first inject: %v", err)
	}
	replacement, err := exiftag.BuildTIFF([]exiftag.Assignment{{Tag: 0x010F, Value: "workflow:w"}})
	if err != nil {
		t.Fatalf("BuildTIFF: %v", err)
	}
	second, err := webpio.InjectEXIF(first, replacement)
	if err != nil {
		t.Fatalf("second inject: %v", err)
	}

	got, err := webpio.ExtractEXIF(second)
	if err != nil {
		t.Fatalf("ExtractEXIF: %v", err)
	}
	if !bytes.Equal(got, replacement) {
		t.Fatal("existing EXIF chunk was not replaced")
	}
}

func TestInjectEXIFEmptyBlockLeavesContainerAlone(t *testing.T) {
	src := testsupport.VP8Container(10, 10)
	out, err := webpio.InjectEXIF(src, nil)
	if err != nil {
		t.Fatalf("InjectEXIF: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Fatal("empty block must not modify the container")
	}

	features, err := webpio.ReadFeatures(out)
	if err != nil {
		t.Fatalf("ReadFeatures: %v", err)
	}
	if features.HasEXIF {
		t.Fatal("no EXIF chunk expected")
	}
}

func TestInjectEXIFOddSizedBlockIsPadded(t *testing.T) {
	block, err := exiftag.BuildTIFF([]exiftag.Assignment{{Tag: 0x010E, Value: "k:abcd"}})
	if err != nil {
		t.Fatalf("BuildTIFF: %v", err)
	}
	if len(block)%2 == 0 {
		block = append(block, 'x')
	}

	out, err := webpio.InjectEXIF(testsupport.VP8Container(10, 10), block)
	if err != nil {
		t.Fatalf("InjectEXIF: %v", err)
	}
	if len(out)%2 != 0 {
		t.Fatalf("container length must stay even, got %d", len(out))
	}
	if _, err := webp.DecodeConfig(bytes.NewReader(out)); err != nil {
		t.Fatalf("container no longer decodable: %v", err)
	}
}

func TestInjectEXIFRejectsGarbage(t *testing.T) {
	if _, err := webpio.InjectEXIF([]byte("not a riff container"), tiffBlock(t)); err == nil {
		t.Fatal("expected error for non-webp input")
	}
}
