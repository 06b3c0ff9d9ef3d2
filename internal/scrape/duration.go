package scrape

import (
	"strconv"
	"strings"
)

// ParseDurationLabel converts a human-readable duration label ("1:02:03" or
// "4:05") to seconds. The label is the last-resort duration source when
// neither structured data nor the media element provides one.
func ParseDurationLabel(label string) (int, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return 0, false
	}

	parts := strings.Split(label, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	total := 0
	for i, p := range parts {
		p = strings.TrimSpace(p)
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		// Minutes and seconds fields must stay under 60 except the leading one.
		if i > 0 && n > 59 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}
