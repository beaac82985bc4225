package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, write func(*dto.Metric) error) float64 {
	t.Helper()
	var metric dto.Metric
	if err := write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestEconomyIsSingleton(t *testing.T) {
	if Economy() != Economy() {
		t.Fatal("Economy() returned distinct registries")
	}
}

func TestCountersAccumulate(t *testing.T) {
	m := Economy()

	before := counterValue(t, m.handsPlayed.Write)
	m.ObserveHandPlayed()
	m.ObserveHandPlayed()
	if got := counterValue(t, m.handsPlayed.Write); got != before+2 {
		t.Fatalf("hands played = %v, want %v", got, before+2)
	}

	before = counterValue(t, m.rakeCollected.Write)
	m.AddRake(25)
	m.AddRake(-5)
	if got := counterValue(t, m.rakeCollected.Write); got != before+25 {
		t.Fatalf("rake collected = %v, want %v", got, before+25)
	}
}

func TestLabelledCountersNormalizeEmpty(t *testing.T) {
	m := Economy()

	m.ObserveSettlement("")
	unknown := m.settlements.WithLabelValues("unknown")
	if got := counterValue(t, unknown.Write); got < 1 {
		t.Fatalf("unknown settlement count = %v, want at least 1", got)
	}

	m.ObserveAuthorizationDenial("")
	unspecified := m.authDenials.WithLabelValues("unspecified")
	if got := counterValue(t, unspecified.Write); got < 1 {
		t.Fatalf("unspecified denial count = %v, want at least 1", got)
	}
}

func TestGauges(t *testing.T) {
	m := Economy()
	m.SetActiveTables(3)
	m.SetSnapshotVersion(7)
	m.SetChainLength(42)

	var metric dto.Metric
	if err := m.activeTables.Write(&metric); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if metric.GetGauge().GetValue() != 3 {
		t.Fatalf("active tables = %v, want 3", metric.GetGauge().GetValue())
	}

	metric.Reset()
	if err := m.chainLength.Write(&metric); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if metric.GetGauge().GetValue() != 42 {
		t.Fatalf("chain length = %v, want 42", metric.GetGauge().GetValue())
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var m *EconomyMetrics
	m.ObserveSettlement("settled")
	m.AddRake(10)
	m.ObserveHandPlayed()
	m.SetActiveTables(1)
}
