package youtube

import (
	"regexp"
	"strconv"
)

var durationRe = regexp.MustCompile(`PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)

// ParseDurationSeconds converts an ISO 8601 duration string
// (e.g. "PT1M30S", "PT2H15M30S") into seconds.
func ParseDurationSeconds(duration string) int {
	if duration == "" {
		return 0
	}

	matches := durationRe.FindStringSubmatch(duration)
	if len(matches) == 0 {
		return 0
	}

	var total int
	if matches[1] != "" {
		if hours, err := strconv.Atoi(matches[1]); err == nil {
			total += hours * 3600
		}
	}
	if matches[2] != "" {
		if minutes, err := strconv.Atoi(matches[2]); err == nil {
			total += minutes * 60
		}
	}
	if matches[3] != "" {
		if seconds, err := strconv.Atoi(matches[3]); err == nil {
			total += seconds
		}
	}
	return total
}
