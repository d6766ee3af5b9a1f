package metadata

import (
	"fmt"
	"strconv"
	"strings"
)

func summarize(values map[string][]string) map[string]string {
	out := make(map[string]string)
	if len(values) == 0 {
		return out
	}

	if camera := describeCamera(values); camera != "" {
		out[KeyCamera] = camera
	}
	if ts := captureTime(values); ts != "" {
		out[KeyCaptured] = ts
	}
	if gps := describeGPS(values); gps != "" {
		out[KeyGPS] = gps
	}
	for key, vals := range values {
		if strings.Contains(strings.ToLower(key), "serial") && firstNonEmpty(vals) != "" {
			out[KeySerial] = firstNonEmpty(vals)
			break
		}
	}
	return out
}

func describeCamera(values map[string][]string) string {
	make := firstValue(values, "Make")
	model := firstValue(values, "Model")
	if model == "" {
		model = firstValue(values, "CameraModelName")
	}
	if make != "" && strings.HasPrefix(strings.ToLower(model), strings.ToLower(make)) {
		make = ""
	}

	device := strings.TrimSpace(strings.Join([]string{make, model}, " "))
	if device == "" {
		return ""
	}
	if deviceType := inferDeviceType(strings.ToLower(device)); deviceType != "" {
		device += fmt.Sprintf(" (%s)", deviceType)
	}
	return device
}

func captureTime(values map[string][]string) string {
	for _, key := range []string{"DateTimeOriginal", "DateTimeDigitized", "DateTime"} {
		if ts := firstValue(values, key); ts != "" {
			return replaceFirstN(ts, ":", "-", 2)
		}
	}
	return ""
}

func describeGPS(values map[string][]string) string {
	latRaw := firstValue(values, "GPSLatitude")
	lonRaw := firstValue(values, "GPSLongitude")
	if latRaw == "" || lonRaw == "" {
		return ""
	}

	lat, okLat := parseGPSCoordinate(latRaw)
	lon, okLon := parseGPSCoordinate(lonRaw)
	if !okLat || !okLon {
		return "present"
	}
	if firstValue(values, "GPSLatitudeRef") == "S" {
		lat = -lat
	}
	if firstValue(values, "GPSLongitudeRef") == "W" {
		lon = -lon
	}
	return fmt.Sprintf("%.5f, %.5f", lat, lon)
}

func firstValue(values map[string][]string, key string) string {
	return firstNonEmpty(values[key])
}

func firstNonEmpty(list []string) string {
	for _, v := range list {
		if v = strings.Trim(v, "\x00 "); v != "" {
			return v
		}
	}
	return ""
}

func parseGPSCoordinate(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	parts := strings.Fields(strings.ReplaceAll(raw, ",", " "))
	if len(parts) == 0 {
		return 0, false
	}

	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		value, ok := parseRational(part)
		if !ok {
			return 0, false
		}
		values = append(values, value)
	}

	switch len(values) {
	case 3:
		return values[0] + values[1]/60.0 + values[2]/3600.0, true
	case 2:
		return values[0] + values[1]/60.0, true
	}
	return values[0], true
}

func parseRational(part string) (float64, bool) {
	part = strings.Trim(strings.TrimSpace(part), `"`)
	if part == "" {
		return 0, false
	}
	if num, den, ok := strings.Cut(part, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, false
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}

	value, err := strconv.ParseFloat(part, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func inferDeviceType(device string) string {
	switch {
	case strings.Contains(device, "iphone"),
		strings.Contains(device, "pixel"),
		strings.Contains(device, "galaxy"),
		strings.Contains(device, "android"):
		return "smartphone"
	case strings.Contains(device, "ipad"),
		strings.Contains(device, "tablet"):
		return "tablet"
	case strings.Contains(device, "gopro"):
		return "action camera"
	case strings.Contains(device, "dji"):
		return "drone"
	case strings.Contains(device, "canon"),
		strings.Contains(device, "nikon"),
		strings.Contains(device, "sony"),
		strings.Contains(device, "fujifilm"),
		strings.Contains(device, "panasonic"),
		strings.Contains(device, "olympus"),
		strings.Contains(device, "leica"):
		return "camera"
	default:
		return ""
	}
}

func replaceFirstN(s, old, new string, n int) string {
	if n <= 0 || old == "" {
		return s
	}
	out := s
	for i := 0; i < n; i++ {
		idx := strings.Index(out, old)
		if idx < 0 {
			break
		}
		out = out[:idx] + new + out[idx+len(old):]
	}
	return out
}
