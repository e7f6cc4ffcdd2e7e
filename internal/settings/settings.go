// Package settings persists per-project npm security settings.
package settings

import (
	"context"
	"errors"
	"sync"

	"github.com/opencode-ai/cmdgate/internal/event"
	"github.com/opencode-ai/cmdgate/internal/logging"
	"github.com/opencode-ai/cmdgate/internal/policy"
	"github.com/opencode-ai/cmdgate/internal/project"
	"github.com/opencode-ai/cmdgate/internal/storage"
)

// Store reads and writes per-project settings through the storage layer,
// memoizing them per project. Every value leaving this store has passed
// policy.ValidateAndCorrect, so corrupted or hand-edited files degrade to
// the strict defaults instead of surfacing errors.
type Store struct {
	store *storage.Store

	mu    sync.Mutex
	cache map[string]policy.NpmSecuritySettings
}

// NewStore creates a settings store over the given storage.
func NewStore(store *storage.Store) *Store {
	return &Store{
		store: store,
		cache: make(map[string]policy.NpmSecuritySettings),
	}
}

// Get returns the project's settings, falling back to strict defaults when
// none are stored or the stored value is unreadable.
func (s *Store) Get(ctx context.Context, projectPath string) policy.NpmSecuritySettings {
	id := project.ID(projectPath)

	s.mu.Lock()
	if cached, ok := s.cache[id]; ok {
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	// Decode through the pointer-field patch shape so a field absent from
	// the file is distinguishable from an explicit value: a hand-edited
	// file that omits enableAuditLog must not read as false.
	loaded := policy.DefaultSettings()
	var stored policy.SettingsPatch
	if err := s.store.Get(ctx, []string{"settings", id}, &stored); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logging.Warn().
				Err(err).
				Str("projectPath", projectPath).
				Msg("settings unreadable, using strict defaults")
		}
	} else {
		loaded = policy.ApplyPatch(loaded, stored)
	}

	s.mu.Lock()
	s.cache[id] = loaded
	s.mu.Unlock()
	return loaded
}

// Update merges a patch into the project's settings, validates, persists,
// and returns the result. Concurrent updates to the same project are
// last-write-wins at the storage layer.
func (s *Store) Update(ctx context.Context, projectPath string, patch policy.SettingsPatch) (policy.NpmSecuritySettings, error) {
	id := project.ID(projectPath)

	merged := policy.ApplyPatch(s.Get(ctx, projectPath), patch)
	if err := s.store.Put(ctx, []string{"settings", id}, merged); err != nil {
		return policy.NpmSecuritySettings{}, err
	}

	s.mu.Lock()
	s.cache[id] = merged
	s.mu.Unlock()

	event.Publish(event.Event{
		Type: event.SettingsUpdated,
		Data: event.SettingsUpdatedData{
			ProjectPath: projectPath,
			Settings:    merged,
		},
	})
	return merged, nil
}

// SetAllowInstallScripts flips the sticky per-project install-script
// grant. Used when an operator chooses allow-project.
func (s *Store) SetAllowInstallScripts(ctx context.Context, projectPath string, allow bool) error {
	_, err := s.Update(ctx, projectPath, policy.SettingsPatch{AllowInstallScripts: &allow})
	return err
}

// invalidate drops a project's cached settings.
func (s *Store) invalidate(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
}
