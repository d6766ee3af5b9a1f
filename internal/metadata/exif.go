package metadata

import (
	"io"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
)

// readExif collects the formatted value of every EXIF tag, by tag name.
func readExif(rs io.ReadSeeker) (map[string][]string, error) {
	values := make(map[string][]string)

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return values, err
	}

	tags, _, err := exif.GetFlatExifDataUniversalSearchWithReadSeeker(rs, nil, true)
	if err != nil {
		if errorsIsNoExif(err) {
			return values, nil
		}
		return values, err
	}

	for _, tag := range tags {
		name := tag.TagName
		if name == "" {
			continue
		}
		if strings.Contains(tag.IfdPath, "GPS") && !strings.HasPrefix(name, "GPS") {
			name = "GPS" + name
		}
		values[name] = append(values[name], strings.TrimSpace(tag.Formatted))
	}

	return values, nil
}

func errorsIsNoExif(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "no exif")
}
