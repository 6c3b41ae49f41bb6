package service

import (
	"context"
	"time"

	"clipit/internal/storage"
	"clipit/pkg/types"
)

// DefaultRetentionInterval is how often the retention policy is applied
const DefaultRetentionInterval = time.Hour

// Retention bounds the history. Zero values disable a bound.
type Retention struct {
	DaysToKeep int
	MaxItems   int
	Interval   time.Duration
}

// SetRetention replaces the policy; the next pass uses it
func (s *ClipboardService) SetRetention(r Retention) {
	s.mu.Lock()
	s.retention = r
	s.mu.Unlock()
	s.log.Info("retention updated", "days_to_keep", r.DaysToKeep, "max_items", r.MaxItems)
}

func (s *ClipboardService) currentRetention() Retention {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retention
}

// Expired returns the entries the policy would drop: those older than
// DaysToKeep and those beyond the MaxItems newest.
func (r Retention) Expired(rs *storage.ResultSet, now time.Time) []types.Entry {
	var cutoff int64
	if r.DaysToKeep > 0 {
		cutoff = now.AddDate(0, 0, -r.DaysToKeep).Unix()
	}

	var expired []types.Entry
	for i, entry := range rs.Sort(storage.FieldID, true).All() {
		if (r.MaxItems > 0 && i >= r.MaxItems) || entry.CapturedAt < cutoff {
			expired = append(expired, entry)
		}
	}
	return expired
}

// ApplyRetention queues every expired entry for deferred deletion
func (s *ClipboardService) ApplyRetention(ctx context.Context) (int, error) {
	policy := s.currentRetention()
	if policy.DaysToKeep <= 0 && policy.MaxItems <= 0 {
		return 0, nil
	}

	rs, err := s.store.Fetch(ctx, storage.Filter{})
	if err != nil {
		return 0, &ClipboardError{Op: "ApplyRetention", Message: "failed to fetch entries", Err: err}
	}

	expired := policy.Expired(rs, s.now())
	if len(expired) > 0 {
		s.EnqueueForDeletion(expired...)
		s.log.Info("expired entries queued", "count", len(expired))
	}
	return len(expired), nil
}

func (s *ClipboardService) retentionLoop(ctx context.Context) {
	interval := s.currentRetention().Interval
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.ApplyRetention(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("retention pass failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
