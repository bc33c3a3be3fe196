package storage

import "testing"

func TestCanonicalJSON_DeterministicKeyOrder(t *testing.T) {
	m := map[string]string{"b": "2", "a": "1", "c": "3"}
	got, err := canonicalJSON(m)
	if err != nil {
		t.Fatalf("canonicalJSON: %v", err)
	}
	want := `{"a":"1","b":"2","c":"3"}`
	if string(got) != want {
		t.Fatalf("canonicalJSON mismatch:\n got: %s\nwant: %s", got, want)
	}
}

func TestCanonicalJSON_StableAcrossCalls(t *testing.T) {
	m := map[string]string{"z": "26", "y": "25", "x": "24"}
	first, err := canonicalJSON(m)
	if err != nil {
		t.Fatalf("canonicalJSON: %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := canonicalJSON(m)
		if err != nil {
			t.Fatalf("canonicalJSON: %v", err)
		}
		if string(got) != string(first) {
			t.Fatalf("canonicalJSON output varied across calls: %s vs %s", first, got)
		}
	}
}

func TestDollarAndQuestionPlaceholder(t *testing.T) {
	if got := dollarPlaceholder(3); got != "$3" {
		t.Fatalf("dollarPlaceholder(3) = %q, want $3", got)
	}
	if got := questionPlaceholder(3); got != "?" {
		t.Fatalf("questionPlaceholder(3) = %q, want ?", got)
	}
}
