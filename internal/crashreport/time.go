package crashreport

import (
	"strconv"
	"time"
)

// formatEpochSeconds renders t as floating-point seconds since epoch with
// microsecond precision, matching annotations["timestamp"].
func formatEpochSeconds(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

func parseFloatSeconds(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
