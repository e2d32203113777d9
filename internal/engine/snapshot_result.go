package engine

import (
	"branchwarden/internal/fetcher"
	"branchwarden/internal/policy"
)

// SnapshotResult is the outcome of fetching one project's server state. It
// is emitted by the scheduler and consumed by the evaluation loop.
type SnapshotResult struct {
	Project  policy.Project
	Snapshot *fetcher.Snapshot
	// Err is set when the snapshot could not be fetched; Snapshot is nil then.
	Err error
}
