package errtax

import "testing"

func TestLookup_KnownCode(t *testing.T) {
	meta, ok := Lookup(CrashStorageUnavailable)
	if !ok {
		t.Fatal("expected crash.storage_unavailable to be known")
	}
	if meta.HTTPStatus != 503 || !meta.Retryable {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestLookup_UnknownCode(t *testing.T) {
	if _, ok := Lookup(Code("nonexistent")); ok {
		t.Fatal("expected unknown code to be absent")
	}
}

func TestList_IsSorted(t *testing.T) {
	codes := List()
	for i := 1; i < len(codes); i++ {
		if codes[i-1] >= codes[i] {
			t.Fatalf("expected sorted codes, got %v", codes)
		}
	}
}
