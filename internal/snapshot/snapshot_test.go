package snapshot

import (
	"errors"
	"testing"

	"osp/internal/aggregate"
	"osp/internal/model"
)

func TestWriteAndRestore(t *testing.T) {
	dir := t.TempDir()
	snap := NewSnapshotter(dir)

	v := aggregate.NewViews()
	v.Customers[1] = model.CustomerStats{CustomerID: 1, TotalOrders: 2, TotalSpent: 80.0, LastOrderID: "O2"}
	v.Products["P1"] = model.ProductStats{ProductID: "P1", OrderCount: 2, TotalQuantity: 8, AvgQuantity: 4.0}
	v.Timeline = []model.TimelineEntry{{OrderID: "O2", Timestamp: 2000}, {OrderID: "O1", Timestamp: 1000}}
	v.Stats = model.ProcessingStats{ProcessedCount: 2, LastProcessedTimestamp: 111}

	if err := snap.Write("s1", v); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, m, err := snap.RestoreLatest()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if m.SnapshotID != "s1" {
		t.Fatalf("manifest points at %q", m.SnapshotID)
	}
	if got.Customers[1].TotalSpent != 80.0 || got.Products["P1"].AvgQuantity != 4.0 {
		t.Fatalf("restored views mismatch: %+v", got)
	}
	if len(got.Timeline) != 2 || got.Timeline[0].OrderID != "O2" {
		t.Fatalf("timeline order lost: %+v", got.Timeline)
	}
	if got.Stats.ProcessedCount != 2 {
		t.Fatalf("stats lost: %+v", got.Stats)
	}
}

func TestRestore_NoSnapshot(t *testing.T) {
	snap := NewSnapshotter(t.TempDir())
	_, _, err := snap.RestoreLatest()
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("want ErrNoSnapshot, got %v", err)
	}
}

func TestWrite_RepointsManifest(t *testing.T) {
	dir := t.TempDir()
	snap := NewSnapshotter(dir)

	v1 := aggregate.NewViews()
	v1.Stats.ProcessedCount = 1
	if err := snap.Write("s1", v1); err != nil {
		t.Fatalf("write s1: %v", err)
	}
	v2 := aggregate.NewViews()
	v2.Stats.ProcessedCount = 9
	if err := snap.Write("s2", v2); err != nil {
		t.Fatalf("write s2: %v", err)
	}

	got, m, err := snap.RestoreLatest()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if m.SnapshotID != "s2" || got.Stats.ProcessedCount != 9 {
		t.Fatalf("manifest should point at the newest snapshot: %+v %+v", m, got.Stats)
	}
}

func TestRestore_EmptySnapshotHasUsableMaps(t *testing.T) {
	snap := NewSnapshotter(t.TempDir())
	if err := snap.Write("s1", aggregate.Views{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, _, err := snap.RestoreLatest()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	// Folding into a restored snapshot must not panic on nil maps.
	got.Customers[1] = model.CustomerStats{CustomerID: 1}
	got.Products["P1"] = model.ProductStats{ProductID: "P1"}
}
