package jobtable

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// snapshotRecord is the on-disk shape written by WriteSnapshot. It is
// never read back by this package — StartupScan is the only seeding path
// (§4.4) — so this file exists purely as a restart diagnostics aid.
type snapshotRecord struct {
	RemoteJobID int32  `json:"remote_job_id"`
	RemoteState string `json:"remote_job_state"`
	LocalJobID  int32  `json:"local_job_id,omitempty"`
	LocalState  string `json:"local_job_state"`
}

type snapshotFile struct {
	WrittenAt time.Time        `json:"written_at"`
	Jobs      []snapshotRecord `json:"jobs"`
}

// WriteSnapshot serializes t's current records to stateDir/jobs.json. It is
// called once, on clean shutdown, and is purely diagnostic.
func WriteSnapshot(stateDir string, t *Table, now time.Time) error {
	records := t.Snapshot()
	snap := snapshotFile{WrittenAt: now, Jobs: make([]snapshotRecord, 0, len(records))}
	for _, rec := range records {
		snap.Jobs = append(snap.Jobs, snapshotRecord{
			RemoteJobID: rec.RemoteJobID,
			RemoteState: rec.Remote().String(),
			LocalJobID:  rec.LocalID(),
			LocalState:  rec.Local().String(),
		})
	}

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(stateDir, "jobs.json"), data, 0644)
}
