// ABOUTME: ProfileStore keeps the single business profile record
// ABOUTME: Saves and loads the profile wholesale and notifies views after each commit

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/botdesk/internal/broadcast"
	"github.com/2389/botdesk/internal/kv"
)

// ProfileStore owns the BusinessProfile singleton.
type ProfileStore struct {
	area     Area
	notifier Notifier
	logger   *slog.Logger
}

// NewProfileStore creates a store over area. notifier may be nil.
// Pass nil logger for default.
func NewProfileStore(area Area, notifier Notifier, logger *slog.Logger) *ProfileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileStore{
		area:     area,
		notifier: notifier,
		logger:   logger.With("component", "profile", "view_id", area.ViewID()),
	}
}

// Save overwrites the stored profile with p.
func (s *ProfileStore) Save(ctx context.Context, p BusinessProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyBusinessProfile, err)
	}
	if err := s.area.Set(ctx, KeyBusinessProfile, raw); err != nil {
		s.logger.Warn("profile save failed", "error", err)
		return fmt.Errorf("save profile: %w: %w", ErrPersist, err)
	}

	s.logger.Debug("profile saved")
	if s.notifier != nil {
		s.notifier.Invalidate(s.area.ViewID(), broadcast.TopicProfile)
	}
	return nil
}

// Load returns the stored profile. ok is false when none is stored or the
// stored value cannot be read, in which case the blank profile is returned.
func (s *ProfileStore) Load(ctx context.Context) (p BusinessProfile, ok bool) {
	raw, err := s.area.Get(ctx, KeyBusinessProfile)
	if errors.Is(err, kv.ErrNotFound) {
		return BusinessProfile{}, false
	}
	if err != nil {
		s.logger.Warn("profile unavailable", "error", err)
		return BusinessProfile{}, false
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		s.logger.Warn("discarding unreadable profile", "error", err)
		return BusinessProfile{}, false
	}
	return p, true
}

// Reset saves the blank profile.
func (s *ProfileStore) Reset(ctx context.Context) error {
	return s.Save(ctx, BusinessProfile{})
}
