package engine

import "github.com/quickserve/possync/internal/entity"

// Decision is the outcome of conflict resolution for one entity.
type Decision int

const (
	// NoOp means the two sides already agree; issue zero writes. Returned
	// on timestamp ties so repeated sync passes cannot cause write storms.
	NoOp Decision = iota

	// ApplyRemote means the remote version wins; write it locally.
	ApplyRemote

	// KeepLocal means the local version stands and nothing needs to move
	// in either direction (both sides are tombstones of the same record).
	KeepLocal

	// UploadLocal means the local version wins; enqueue it for upload.
	UploadLocal
)

// String returns a human-readable representation of the decision.
func (d Decision) String() string {
	switch d {
	case NoOp:
		return "noop"
	case ApplyRemote:
		return "apply-remote"
	case KeepLocal:
		return "keep-local"
	case UploadLocal:
		return "upload-local"
	default:
		return "unknown"
	}
}

// Resolve picks the winner between a local and a remote version of the same
// entity using last-writer-wins timestamp comparison.
//
// Either side may be nil, meaning that store has never seen the record.
// Deletion is an explicit tombstone, never absence, so a nil remote with a
// present local always means "not uploaded yet", not "deleted remotely" -
// this is what prevents deleted records from resurrecting.
//
// The function is pure, deterministic, and order-independent: resolving the
// same pair of versions in either arrival order converges on the version
// with the greater timestamp.
func Resolve(local, remote *entity.Record) Decision {
	switch {
	case local == nil && remote == nil:
		return NoOp
	case local == nil:
		return ApplyRemote
	case remote == nil:
		return UploadLocal
	}

	if local.Deleted && remote.Deleted {
		return KeepLocal
	}

	switch {
	case remote.LastModified.After(local.LastModified):
		return ApplyRemote
	case local.LastModified.After(remote.LastModified):
		return UploadLocal
	default:
		return NoOp
	}
}
