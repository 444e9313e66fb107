package store

import (
	"github.com/bkonkle/cowork/internal/task"
)

// Decision is the outcome of reconciling an incoming record with the stored one.
type Decision int

const (
	// Accept - Incoming record is applied
	Accept Decision = iota
	// RejectUnknownStatus - Incoming status is not part of the lifecycle
	RejectUnknownStatus
	// RejectStale - Incoming record is older than the stored one
	RejectStale
	// RejectTerminal - Stored status is terminal and the incoming one would reopen it
	RejectTerminal
	// RejectRegression - No ordering key and the incoming status moves backwards
	RejectRegression
)

// String returns a short description of the decision.
func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case RejectUnknownStatus:
		return "unknown status"
	case RejectStale:
		return "stale"
	case RejectTerminal:
		return "terminal status protected"
	case RejectRegression:
		return "status regression"
	default:
		return "unknown"
	}
}

// Accepted reports whether the decision applies the update.
func (d Decision) Accepted() bool {
	return d == Accept
}

// Reconcile decides whether incoming may replace stored. UpdatedAt is the
// ordering key when both records carry it. Terminal statuses are never
// replaced by in-progress ones, whatever the ordering key says.
func Reconcile(stored, incoming *task.Task) Decision {
	if !incoming.Status.IsValid() {
		return RejectUnknownStatus
	}
	if stored == nil {
		return Accept
	}

	ordered := !stored.UpdatedAt.IsZero() && !incoming.UpdatedAt.IsZero()
	if ordered && incoming.UpdatedAt.Before(stored.UpdatedAt) {
		return RejectStale
	}

	if stored.Status.IsTerminal() {
		if !incoming.Status.IsTerminal() {
			return RejectTerminal
		}
		if incoming.Status != stored.Status && !(ordered && incoming.UpdatedAt.After(stored.UpdatedAt)) {
			return RejectTerminal
		}
		return Accept
	}

	if !ordered && incoming.Status.Rank() < stored.Status.Rank() {
		return RejectRegression
	}
	return Accept
}

// Merge overlays incoming on stored. Fields the incoming record leaves empty
// keep their stored values; metadata keys are merged with incoming winning.
func Merge(stored, incoming *task.Task) *task.Task {
	out := incoming.Clone()
	if stored == nil {
		return out
	}

	if out.Goal == "" {
		out.Goal = stored.Goal
	}
	if out.Description == "" {
		out.Description = stored.Description
	}
	if out.Result == "" {
		out.Result = stored.Result
	}
	if out.Error == "" {
		out.Error = stored.Error
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = stored.CreatedAt
	}
	if out.StartedAt == nil && stored.StartedAt != nil {
		v := *stored.StartedAt
		out.StartedAt = &v
	}
	if out.CompletedAt == nil && stored.CompletedAt != nil {
		v := *stored.CompletedAt
		out.CompletedAt = &v
	}
	if out.Progress == nil && stored.Progress != nil {
		p := *stored.Progress
		out.Progress = &p
	}
	if out.UpdatedAt.Before(stored.UpdatedAt) {
		out.UpdatedAt = stored.UpdatedAt
	}

	if len(stored.Metadata) > 0 {
		merged := make(map[string]any, len(stored.Metadata)+len(out.Metadata))
		for k, v := range stored.Metadata {
			merged[k] = v
		}
		for k, v := range out.Metadata {
			merged[k] = v
		}
		out.Metadata = merged
	}
	return out
}
