package crashreport

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// crashIDShape matches the 8-4-4-4-12 dash-grouped hex shape of a crash id.
var crashIDShape = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// NewCrashID mints a 36-character crash id encoding the day-of-month and the
// throttle-decision depth in its trailing digits.
func NewCrashID(now time.Time, result ThrottleResult) (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("crashreport: mint crash id: %w", err)
	}
	id := hex.EncodeToString(buf[:])

	depthDigit := strconv.FormatInt(int64(result.depth()), 16)
	daySuffix := fmt.Sprintf("%02d", now.Day())

	// id is 32 hex chars; overwrite the last 3 with depth+day so the
	// remaining 29 stay random, then dash-group into 8-4-4-4-12.
	stamped := id[:29] + depthDigit + daySuffix

	return fmt.Sprintf("%s-%s-%s-%s-%s",
		stamped[0:8], stamped[8:12], stamped[12:16], stamped[16:20], stamped[20:32],
	), nil
}

// ValidCrashID reports whether id has the 8-4-4-4-12 dash-grouped hex shape
// and its trailing two digits form a plausible day-of-month.
func ValidCrashID(id string) bool {
	if !crashIDShape.MatchString(id) {
		return false
	}
	tail := id[len(id)-2:]
	day, err := strconv.Atoi(tail)
	if err != nil {
		return false
	}
	return day >= 1 && day <= 31
}
