package apiclient

import (
	"strconv"
	"strings"
	"time"
)

// ParseServerTiming sums the dur= parameters (milliseconds) of a
// Server-Timing header, e.g. "upload;dur=12.5, convert;dur=840".
func ParseServerTiming(header string) (time.Duration, bool) {
	if strings.TrimSpace(header) == "" {
		return 0, false
	}

	var total float64
	found := false
	for _, metric := range strings.Split(header, ",") {
		for _, param := range strings.Split(metric, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(key, "dur") {
				continue
			}
			ms, err := strconv.ParseFloat(strings.Trim(value, `"`), 64)
			if err != nil || ms < 0 {
				continue
			}
			total += ms
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return time.Duration(total * float64(time.Millisecond)), true
}
