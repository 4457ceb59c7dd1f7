package exiftag

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

const (
	tiffHeaderSize = 8
	ifdEntrySize   = 12
	asciiType      = 2
	tiffMagic      = 42
)

// BuildTIFF renders assignments as a little-endian TIFF block holding a
// single IFD0 of ASCII entries. Physical entry order is ascending by tag id
// as TIFF requires; values longer than four bytes (including the NUL
// terminator) live in the data area after the IFD, word-aligned. Value bytes
// are written as-is, so UTF-8 text survives. An empty sequence yields nil.
func BuildTIFF(assignments []Assignment) ([]byte, error) {
	if len(assignments) == 0 {
		return nil, nil
	}

	entries := make([]Assignment, len(assignments))
	copy(entries, assignments)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Tag < entries[j].Tag })
	for i := 1; i < len(entries); i++ {
		if entries[i].Tag == entries[i-1].Tag {
			return nil, fmt.Errorf("duplicate tag 0x%04X", entries[i].Tag)
		}
	}

	dataStart := tiffHeaderSize + 2 + len(entries)*ifdEntrySize + 4

	offsets := make([]int, len(entries))
	dataLen := 0
	for i, entry := range entries {
		n := len(entry.Value) + 1
		if n <= 4 {
			continue
		}
		if (dataStart+dataLen)%2 == 1 {
			dataLen++
		}
		offsets[i] = dataStart + dataLen
		dataLen += n
	}

	buf := make([]byte, 0, dataStart+dataLen)
	buf = append(buf, 'I', 'I')
	buf = binary.LittleEndian.AppendUint16(buf, tiffMagic)
	buf = binary.LittleEndian.AppendUint32(buf, tiffHeaderSize)

	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(entries)))
	for i, entry := range entries {
		buf = binary.LittleEndian.AppendUint16(buf, entry.Tag)
		buf = binary.LittleEndian.AppendUint16(buf, asciiType)
		n := len(entry.Value) + 1
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n))
		if n <= 4 {
			var inline [4]byte
			copy(inline[:], entry.Value)
			buf = append(buf, inline[:]...)
		} else {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(offsets[i]))
		}
	}
	buf = binary.LittleEndian.AppendUint32(buf, 0)

	for i, entry := range entries {
		n := len(entry.Value) + 1
		if n <= 4 {
			continue
		}
		if len(buf)%2 == 1 {
			buf = append(buf, 0)
		}
		if len(buf) != offsets[i] {
			return nil, fmt.Errorf("internal offset mismatch for tag 0x%04X", entry.Tag)
		}
		buf = append(buf, entry.Value...)
		buf = append(buf, 0)
	}

	return buf, nil
}

// ParseTIFF reads ASCII IFD0 entries back out of a TIFF block. Both byte
// orders are accepted. Entries return in physical (ascending tag) order.
// Conversion never reads tags back; this exists so tests and the report
// tooling can verify written output.
func ParseTIFF(data []byte) ([]Assignment, error) {
	if len(data) < tiffHeaderSize {
		return nil, errors.New("tiff block too short")
	}

	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, errors.New("unrecognized tiff byte order")
	}
	if order.Uint16(data[2:4]) != tiffMagic {
		return nil, errors.New("bad tiff magic")
	}

	ifdOff := int(order.Uint32(data[4:8]))
	if ifdOff+2 > len(data) {
		return nil, errors.New("ifd offset out of range")
	}
	count := int(order.Uint16(data[ifdOff : ifdOff+2]))

	assignments := make([]Assignment, 0, count)
	for i := 0; i < count; i++ {
		pos := ifdOff + 2 + i*ifdEntrySize
		if pos+ifdEntrySize > len(data) {
			return nil, errors.New("truncated ifd entry")
		}
		tag := order.Uint16(data[pos : pos+2])
		typ := order.Uint16(data[pos+2 : pos+4])
		if typ != asciiType {
			continue
		}
		n := int(order.Uint32(data[pos+4 : pos+8]))

		var raw []byte
		if n <= 4 {
			raw = data[pos+8 : pos+8+n]
		} else {
			off := int(order.Uint32(data[pos+8 : pos+12]))
			if off+n > len(data) {
				return nil, fmt.Errorf("tag 0x%04X value out of range", tag)
			}
			raw = data[off : off+n]
		}
		if len(raw) > 0 && raw[len(raw)-1] == 0 {
			raw = raw[:len(raw)-1]
		}
		assignments = append(assignments, Assignment{Tag: tag, Value: string(raw)})
	}

	return assignments, nil
}
