package telemetry

import "testing"

func TestMemoryMetrics_IncrAccumulates(t *testing.T) {
	m := NewMemoryMetrics()
	m.Incr("throttle", Labels{"result": "ACCEPT"})
	m.Incr("throttle", Labels{"result": "ACCEPT"})
	m.Incr("throttle", Labels{"result": "REJECT"})

	if got := m.Count("throttle", Labels{"result": "ACCEPT"}); got != 2 {
		t.Fatalf("expected count 2, got %v", got)
	}
	if got := m.Count("throttle", Labels{"result": "REJECT"}); got != 1 {
		t.Fatalf("expected count 1, got %v", got)
	}
}

func TestMemoryMetrics_GaugeLastValueWins(t *testing.T) {
	m := NewMemoryMetrics()
	m.Gauge("queue_depth", 3, nil)
	m.Gauge("queue_depth", 7, nil)
	if got := m.GaugeValue("queue_depth", nil); got != 7 {
		t.Fatalf("expected last gauge value 7, got %v", got)
	}
}

func TestNormalizeLabels_BoundsAndLowercases(t *testing.T) {
	in := Labels{" Result ": " ACCEPT "}
	out := NormalizeLabels(in)
	if out["result"] != "ACCEPT" {
		t.Fatalf("expected normalized key/trimmed value, got %+v", out)
	}
}

func TestNormalizeLabels_DropsOversizeKeys(t *testing.T) {
	longKey := make([]byte, MaxLabelKeyLen+1)
	for i := range longKey {
		longKey[i] = 'a'
	}
	in := Labels{string(longKey): "v"}
	out := NormalizeLabels(in)
	if len(out) != 0 {
		t.Fatalf("expected oversize key to be dropped, got %+v", out)
	}
}
