// Package archive stores annotated reconciliation workbooks as per-run
// snapshots.
package archive

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SnapshotLayout is the timestamp layout embedded in snapshot names.
const SnapshotLayout = "02_Jan_2006_15_04_05"

const (
	snapshotPrefix = "GST_Reco_"
	snapshotExt    = ".xlsx"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrInvalidName      = errors.New("invalid snapshot name")
)

// Entry describes one stored snapshot.
type Entry struct {
	Name      string
	SizeBytes int64
	ModTime   time.Time
}

// Store persists snapshot files. List returns entries newest first.
type Store interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Open(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]Entry, error)
}

// SnapshotName returns the file name for a run finished at t, e.g.
// GST_Reco_05_Mar_2026_14_30_09_1f0c2a9b.xlsx. The run ID suffix keeps runs
// finishing within the same second apart.
func SnapshotName(t time.Time, runID uuid.UUID) string {
	return snapshotPrefix + t.Format(SnapshotLayout) + "_" + runID.String()[:8] + snapshotExt
}

// ValidateName rejects names that could escape the archive root.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return ErrInvalidName
	}
	return nil
}

func isSnapshot(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), snapshotExt)
}
