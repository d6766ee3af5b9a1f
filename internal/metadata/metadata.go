// Package metadata reads the camera, capture time and location recorded in
// a source image so they can be shown next to its conversion result.
package metadata

import (
	"io"
	"os"

	"swiftconvert/pkg/imgutil"
)

// Keys written into a result's information map.
const (
	KeyCamera   = "Camera"
	KeyCaptured = "Captured"
	KeyGPS      = "GPS"
	KeySerial   = "Serial number"
)

// Extract returns whatever metadata the file at path carries. Unreadable or
// unsupported files yield an empty map.
func Extract(path string) map[string]string {
	f, err := os.Open(path)
	if err != nil {
		return map[string]string{}
	}
	defer f.Close()

	kind, err := imgutil.SniffReader(f)
	if err != nil {
		return map[string]string{}
	}
	info, err := Read(f, kind)
	if err != nil {
		return map[string]string{}
	}
	return info
}

// Read extracts metadata from rs, which holds an image of the given kind.
func Read(rs io.ReadSeeker, kind imgutil.Kind) (map[string]string, error) {
	var (
		values map[string][]string
		err    error
	)
	switch kind {
	case imgutil.KindPNG:
		values, err = scanPNG(rs)
	case imgutil.KindJPEG, imgutil.KindTIFF, imgutil.KindHEIC, imgutil.KindHEIF, imgutil.KindWebP:
		values, err = readExif(rs)
	default:
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return summarize(values), nil
}
