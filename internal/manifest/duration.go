package manifest

import (
	"regexp"
	"strconv"
)

var isoDuration = regexp.MustCompile(`^P(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseDuration converts an ISO 8601 presentation duration of the form
// PT[nH][nM][nS] (optionally prefixed by nD) into seconds. Every component
// may carry a fractional part.
func ParseDuration(s string) (float64, error) {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil {
		return 0, parseErrorf("invalid duration %q", s)
	}

	weights := []float64{86400, 3600, 60, 1}
	var total float64
	found := false
	for i, w := range weights {
		part := m[i+1]
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, parseErrorf("invalid duration %q: %v", s, err)
		}
		total += v * w
		found = true
	}
	if !found {
		return 0, parseErrorf("invalid duration %q", s)
	}
	return total, nil
}
