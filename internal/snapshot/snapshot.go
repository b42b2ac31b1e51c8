package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"osp/internal/aggregate"
	"osp/internal/model"
)

// ErrNoSnapshot is returned when no local snapshot exists yet.
var ErrNoSnapshot = errors.New("no snapshot")

// Manifest points at the latest snapshot.
type Manifest struct {
	SnapshotID           string `json:"snapshotId"`
	CreatedAtEpochSecond int64  `json:"createdAt"`
}

// Snapshotter writes periodic local snapshots of the views container and
// restores the latest one at startup. Warm starts are safe: replay from the
// last committed offset over a restored snapshot converges, because the folds
// are idempotent.
type Snapshotter struct {
	baseDir string
}

func NewSnapshotter(baseDir string) *Snapshotter {
	return &Snapshotter{baseDir: baseDir}
}

// Write dumps the snapshot under snapshotID and repoints manifest.latest.json.
func (f *Snapshotter) Write(snapshotID string, v aggregate.Views) error {
	dir := filepath.Join(f.baseDir, snapshotID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	out, err := os.Create(filepath.Join(dir, "views.json"))
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer out.Close()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&v); err != nil {
		return fmt.Errorf("encode views: %w", err)
	}
	return f.publishLatest(snapshotID)
}

func (f *Snapshotter) publishLatest(snapshotID string) error {
	m := Manifest{
		SnapshotID:           snapshotID,
		CreatedAtEpochSecond: time.Now().UTC().Unix(),
	}
	out, err := os.Create(filepath.Join(f.baseDir, "manifest.latest.json"))
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}

// ReadManifest reads the latest-snapshot pointer.
func (f *Snapshotter) ReadManifest() (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(f.baseDir, "manifest.latest.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, ErrNoSnapshot
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return m, nil
}

// RestoreLatest loads the views pointed at by the manifest, for warm start.
func (f *Snapshotter) RestoreLatest() (aggregate.Views, Manifest, error) {
	m, err := f.ReadManifest()
	if err != nil {
		return aggregate.Views{}, Manifest{}, err
	}
	data, err := os.ReadFile(filepath.Join(f.baseDir, m.SnapshotID, "views.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return aggregate.Views{}, Manifest{}, ErrNoSnapshot
		}
		return aggregate.Views{}, Manifest{}, fmt.Errorf("read snapshot: %w", err)
	}
	var v aggregate.Views
	if err := json.Unmarshal(data, &v); err != nil {
		return aggregate.Views{}, Manifest{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if v.Customers == nil {
		v.Customers = make(map[int64]model.CustomerStats)
	}
	if v.Products == nil {
		v.Products = make(map[string]model.ProductStats)
	}
	return v, m, nil
}
