package pngmeta

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/charmap"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// maxChunkLength caps a single chunk read so a corrupt length field cannot
// force a huge allocation. PNG itself allows up to 2^31-1.
const maxChunkLength = 1 << 27

// Info is the result of reading a PNG container: canvas dimensions, the
// assembled metadata record, and warnings for individual chunks that could
// not be decoded (those never fail the read).
type Info struct {
	Width    int
	Height   int
	Record   Record
	Warnings []string
}

// ReadFile extracts metadata from the PNG at path.
func ReadFile(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	return Read(f)
}

// Read walks the PNG chunk stream collecting IHDR dimensions and textual
// chunks. Pixel data is skipped without decoding. A malformed container is
// an error; a malformed individual text chunk only produces a warning.
func Read(r io.Reader) (Info, error) {
	br := bufio.NewReader(r)

	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(br, sig); err != nil {
		return Info{}, fmt.Errorf("read png signature: %w", err)
	}
	if !bytes.Equal(sig, pngSignature) {
		return Info{}, errors.New("not a png file")
	}

	var info Info
	var chunks []TextChunk
	header := make([]byte, 8)

	for {
		if _, err := io.ReadFull(br, header); err != nil {
			return Info{}, fmt.Errorf("read chunk header: %w", err)
		}
		length := binary.BigEndian.Uint32(header[:4])
		chunkType := string(header[4:8])
		if length > maxChunkLength {
			return Info{}, fmt.Errorf("chunk %s length %d exceeds limit", chunkType, length)
		}

		switch chunkType {
		case "IHDR":
			data := make([]byte, length)
			if _, err := io.ReadFull(br, data); err != nil {
				return Info{}, fmt.Errorf("read IHDR: %w", err)
			}
			if len(data) < 8 {
				return Info{}, errors.New("IHDR chunk too short")
			}
			info.Width = int(binary.BigEndian.Uint32(data[0:4]))
			info.Height = int(binary.BigEndian.Uint32(data[4:8]))
		case "tEXt", "zTXt", "iTXt":
			data := make([]byte, length)
			if _, err := io.ReadFull(br, data); err != nil {
				return Info{}, fmt.Errorf("read %s chunk: %w", chunkType, err)
			}
			chunk, err := decodeTextChunk(chunkType, data)
			if err != nil {
				info.Warnings = append(info.Warnings, fmt.Sprintf("%s chunk: %v", chunkType, err))
			} else {
				chunks = append(chunks, chunk)
			}
		case "IEND":
			if _, err := io.CopyN(io.Discard, br, int64(length)+4); err != nil {
				return Info{}, fmt.Errorf("read IEND: %w", err)
			}
			if info.Width == 0 || info.Height == 0 {
				return Info{}, errors.New("missing IHDR chunk")
			}
			info.Record = BuildRecord(chunks)
			return info, nil
		default:
			if _, err := io.CopyN(io.Discard, br, int64(length)); err != nil {
				return Info{}, fmt.Errorf("skip %s chunk: %w", chunkType, err)
			}
		}

		if chunkType != "IEND" {
			if _, err := io.CopyN(io.Discard, br, 4); err != nil {
				return Info{}, fmt.Errorf("skip %s crc: %w", chunkType, err)
			}
		}
	}
}

func decodeTextChunk(chunkType string, data []byte) (TextChunk, error) {
	switch chunkType {
	case "tEXt":
		return decodeTEXT(data)
	case "zTXt":
		return decodeZTXT(data)
	case "iTXt":
		return decodeITXT(data)
	default:
		return TextChunk{}, fmt.Errorf("unsupported chunk type %s", chunkType)
	}
}

// decodeTEXT splits keyword\0text, both Latin-1.
func decodeTEXT(data []byte) (TextChunk, error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return TextChunk{}, errors.New("missing keyword separator")
	}
	key, err := latin1(data[:idx])
	if err != nil {
		return TextChunk{}, fmt.Errorf("decode keyword: %w", err)
	}
	text, err := latin1(data[idx+1:])
	if err != nil {
		return TextChunk{}, fmt.Errorf("keyword %q: decode text: %w", key, err)
	}
	return TextChunk{Key: key, Text: text}, nil
}

// decodeZTXT splits keyword\0 method-byte zlib-data; the text is Latin-1
// after decompression.
func decodeZTXT(data []byte) (TextChunk, error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 || idx+2 > len(data) {
		return TextChunk{}, errors.New("missing keyword separator")
	}
	key, err := latin1(data[:idx])
	if err != nil {
		return TextChunk{}, fmt.Errorf("decode keyword: %w", err)
	}
	if method := data[idx+1]; method != 0 {
		return TextChunk{}, fmt.Errorf("keyword %q: unknown compression method %d", key, method)
	}
	raw, err := inflate(data[idx+2:])
	if err != nil {
		return TextChunk{}, fmt.Errorf("keyword %q: %w", key, err)
	}
	text, err := latin1(raw)
	if err != nil {
		return TextChunk{}, fmt.Errorf("keyword %q: decode text: %w", key, err)
	}
	return TextChunk{Key: key, Text: text}, nil
}

// decodeITXT splits keyword\0 comp-flag comp-method language\0 translated\0
// utf8-text, the text optionally deflated.
func decodeITXT(data []byte) (TextChunk, error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 || idx+3 > len(data) {
		return TextChunk{}, errors.New("missing keyword separator")
	}
	key, err := latin1(data[:idx])
	if err != nil {
		return TextChunk{}, fmt.Errorf("decode keyword: %w", err)
	}
	compressed := data[idx+1] == 1
	method := data[idx+2]

	rest := data[idx+3:]
	langEnd := bytes.IndexByte(rest, 0)
	if langEnd < 0 {
		return TextChunk{}, fmt.Errorf("keyword %q: missing language tag separator", key)
	}
	rest = rest[langEnd+1:]
	translatedEnd := bytes.IndexByte(rest, 0)
	if translatedEnd < 0 {
		return TextChunk{}, fmt.Errorf("keyword %q: missing translated keyword separator", key)
	}
	text := rest[translatedEnd+1:]

	if compressed {
		if method != 0 {
			return TextChunk{}, fmt.Errorf("keyword %q: unknown compression method %d", key, method)
		}
		text, err = inflate(text)
		if err != nil {
			return TextChunk{}, fmt.Errorf("keyword %q: %w", key, err)
		}
	}
	return TextChunk{Key: key, Text: string(text)}, nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}

func latin1(data []byte) (string, error) {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
