package metadata

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

var pngSignature = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

const maxPNGChunk = 1 << 20

// scanPNG walks the chunk list and collects tEXt/iTXt entries, the tIME
// chunk and any embedded eXIf block.
func scanPNG(rs io.ReadSeeker) (map[string][]string, error) {
	values := make(map[string][]string)

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return values, err
	}

	br := bufio.NewReader(rs)

	sig := make([]byte, 8)
	if _, err := io.ReadFull(br, sig); err != nil {
		return values, err
	}
	if !bytes.Equal(sig, pngSignature) {
		return values, errors.New("invalid PNG signature")
	}

	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(br, header); err != nil {
			if err == io.EOF {
				return values, nil
			}
			return values, err
		}
		length := binary.BigEndian.Uint32(header[:4])
		chunkName := string(header[4:8])

		switch chunkName {
		case "tEXt", "iTXt", "tIME", "eXIf":
			if length > maxPNGChunk {
				return values, fmt.Errorf("%s chunk too large", chunkName)
			}
			data := make([]byte, length)
			if _, err := io.ReadFull(br, data); err != nil {
				return values, err
			}
			if _, err := io.CopyN(io.Discard, br, 4); err != nil {
				return values, err
			}
			applyPNGChunk(values, chunkName, data)
		default:
			if _, err := io.CopyN(io.Discard, br, int64(length)+4); err != nil {
				return values, err
			}
		}

		if chunkName == "IEND" {
			return values, nil
		}
	}
}

func applyPNGChunk(values map[string][]string, chunkName string, data []byte) {
	switch chunkName {
	case "tEXt":
		key, text, ok := bytes.Cut(data, []byte{0})
		if ok && len(key) > 0 {
			addPNGText(values, string(key), string(text))
		}
	case "iTXt":
		// keyword\0 flag method lang\0 translated\0 text; compressed text is skipped
		key, rest, ok := bytes.Cut(data, []byte{0})
		if !ok || len(key) == 0 || len(rest) < 2 || rest[0] != 0 {
			return
		}
		parts := bytes.SplitN(rest[2:], []byte{0}, 3)
		if len(parts) == 3 {
			addPNGText(values, string(key), string(parts[2]))
		}
	case "tIME":
		if len(data) == 7 {
			year := binary.BigEndian.Uint16(data[:2])
			values["DateTime"] = append(values["DateTime"],
				fmt.Sprintf("%04d:%02d:%02d %02d:%02d:%02d", year, data[2], data[3], data[4], data[5], data[6]))
		}
	case "eXIf":
		exifValues, err := readExif(bytes.NewReader(data))
		if err != nil {
			return
		}
		for k, v := range exifValues {
			values[k] = append(values[k], v...)
		}
	}
}

// addPNGText maps free-form text keys onto the EXIF names summarize reads.
func addPNGText(values map[string][]string, key, text string) {
	lower := strings.ToLower(key)
	name := key
	switch {
	case lower == "make":
		name = "Make"
	case lower == "model" || strings.Contains(lower, "camera"):
		name = "Model"
	case lower == "creation time" || strings.Contains(lower, "date"):
		name = "DateTimeOriginal"
	case strings.Contains(lower, "latitude"):
		name = "GPSLatitude"
	case strings.Contains(lower, "longitude"):
		name = "GPSLongitude"
	}
	values[name] = append(values[name], strings.TrimSpace(text))
}
