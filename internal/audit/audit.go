// Package audit records every classification, decision, and policy change
// as an append-only trail, queryable per project.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/cmdgate/internal/classify"
	"github.com/opencode-ai/cmdgate/internal/event"
	"github.com/opencode-ai/cmdgate/internal/logging"
	"github.com/opencode-ai/cmdgate/internal/policy"
	"github.com/opencode-ai/cmdgate/internal/project"
	"github.com/opencode-ai/cmdgate/internal/storage"
)

// EventType categorizes an audit entry.
type EventType string

const (
	CommandAllowed    EventType = "command-allowed"
	CommandBlocked    EventType = "command-blocked"
	CommandRewritten  EventType = "command-rewritten"
	ApprovalRequested EventType = "approval-requested"
	ApprovalGranted   EventType = "approval-granted"
	ApprovalDenied    EventType = "approval-denied"
	PolicyChanged     EventType = "policy-changed"
)

// Entry is one audit record.
type Entry struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	ProjectPath string            `json:"projectPath"`
	WorktreeID  string            `json:"worktreeID,omitempty"`
	FeatureID   string            `json:"featureID,omitempty"`
	EventType   EventType         `json:"eventType"`
	Command     *classify.Command `json:"command,omitempty"`
	Decision    policy.Action     `json:"decision,omitempty"`
}

// QueryOptions bound an audit query.
type QueryOptions struct {
	// Limit caps the number of entries returned; <= 0 means no cap.
	Limit int
	// Since filters to entries at or after this time when non-zero.
	Since time.Time
}

// Logger shapes audit entries and persists them through the store.
// Writes are best-effort: a storage failure is logged and swallowed so
// the command-evaluation path never depends on audit persistence.
type Logger struct {
	store *storage.Store
}

// NewLogger creates an audit logger over the given store.
func NewLogger(store *storage.Store) *Logger {
	return &Logger{store: store}
}

// Record persists an entry, filling in ID and timestamp when absent, and
// returns the entry as written.
func (l *Logger) Record(ctx context.Context, entry Entry) Entry {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	path := []string{"audit", project.ID(entry.ProjectPath), entry.ID}
	if err := l.store.Put(ctx, path, entry); err != nil {
		logging.Warn().
			Err(err).
			Str("projectPath", entry.ProjectPath).
			Str("eventType", string(entry.EventType)).
			Msg("audit write failed")
		return entry
	}

	event.Publish(event.Event{
		Type: event.AuditRecorded,
		Data: event.AuditRecordedData{
			ProjectPath: entry.ProjectPath,
			EventType:   string(entry.EventType),
			EntryID:     entry.ID,
		},
	})
	return entry
}

// Query returns a project's audit entries newest-first.
func (l *Logger) Query(ctx context.Context, projectPath string, opts QueryOptions) ([]Entry, error) {
	dir := []string{"audit", project.ID(projectPath)}

	// Entry IDs are ULIDs, so the store's sorted keys are already in
	// chronological order; walk them backwards for newest-first.
	keys, err := l.store.List(ctx, dir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for i := len(keys) - 1; i >= 0; i-- {
		var entry Entry
		if err := l.store.Get(ctx, append(dir, keys[i]), &entry); err != nil {
			continue
		}
		if !opts.Since.IsZero() && entry.Timestamp.Before(opts.Since) {
			continue
		}
		entries = append(entries, entry)
		if opts.Limit > 0 && len(entries) >= opts.Limit {
			break
		}
	}
	return entries, nil
}

// PruneExpired deletes a project's entries older than retentionDays.
// Returns the number of entries removed.
func (l *Logger) PruneExpired(ctx context.Context, projectPath string, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = policy.DefaultRetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	dir := []string{"audit", project.ID(projectPath)}

	var expired []string
	err := l.store.Scan(ctx, dir, func(key string, data json.RawMessage) error {
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil
		}
		if entry.Timestamp.Before(cutoff) {
			expired = append(expired, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, key := range expired {
		if err := l.store.Delete(ctx, append(dir, key)); err != nil {
			logging.Warn().Err(err).Str("entryID", key).Msg("audit prune failed")
			continue
		}
		pruned++
	}
	return pruned, nil
}
