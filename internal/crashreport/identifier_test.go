package crashreport

import (
	"testing"
	"time"
)

func TestNewCrashID_ShapeAndDay(t *testing.T) {
	now := time.Date(2026, 7, 9, 12, 0, 0, 0, time.UTC)
	id, err := NewCrashID(now, ThrottleAccept)
	if err != nil {
		t.Fatalf("NewCrashID: %v", err)
	}
	if !ValidCrashID(id) {
		t.Fatalf("minted id %q failed ValidCrashID", id)
	}
	if len(id) != 36 {
		t.Fatalf("expected 36-char id, got %d: %q", len(id), id)
	}
	tail := id[len(id)-2:]
	if tail != "09" {
		t.Fatalf("expected day suffix 09, got %q", tail)
	}
}

func TestNewCrashID_DepthDigitVariesByResult(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seen := map[byte]bool{}
	for _, r := range []ThrottleResult{ThrottleAccept, ThrottleDefer, ThrottleFakeAccept, ThrottleReject} {
		id, err := NewCrashID(now, r)
		if err != nil {
			t.Fatalf("NewCrashID(%s): %v", r, err)
		}
		depthChar := id[len(id)-3]
		seen[depthChar] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct depth digits across results, got %d", len(seen))
	}
}

func TestValidCrashID_RejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"not-a-crash-id",
		"12345678-1234-1234-1234-12345678901", // short by one
		"12345678-1234-1234-1234-123456789g32", // non-hex
		"12345678-1234-1234-1234-12345678a099", // day 99
	}
	for _, c := range cases {
		if ValidCrashID(c) {
			t.Errorf("expected %q to be invalid", c)
		}
	}
}
