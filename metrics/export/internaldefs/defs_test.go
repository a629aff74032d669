package internaldefs

import (
	"testing"

	goSession "github.com/MrEthical07/goSession"
)

func TestEveryCounterIsExported(t *testing.T) {
	seen := map[goSession.MetricID]bool{}
	for _, def := range CounterDefs {
		if seen[def.ID] {
			t.Fatalf("duplicate def for %s", def.ID)
		}
		seen[def.ID] = true
	}
	for _, def := range HistogramDefs {
		seen[def.ID] = true
	}
	for id := goSession.MetricID(0); int(id) < goSession.MetricIDCount; id++ {
		if !seen[id] {
			t.Fatalf("metric %s has no exporter definition", id)
		}
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	if got[2] != 6 || got[BucketCount-1] != 6 {
		t.Fatalf("unexpected cumulative buckets %v", got)
	}
	if bounds := HistogramBoundsSeconds(); len(bounds) != BucketCount-1 || bounds[0] != 0.005 {
		t.Fatalf("unexpected bounds %v", bounds)
	}
}

func TestHistogramBoundLabels(t *testing.T) {
	labels := HistogramBoundLabels()
	if labels[0] != "0.005" || labels[BucketCount-1] != "+Inf" {
		t.Fatalf("unexpected labels %v", labels)
	}
}
