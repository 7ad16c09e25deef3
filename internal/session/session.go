// Package session holds per-user conversational state and the mode
// detection heuristic that classifies each message into a register.
package session

import (
	"errors"
	"fmt"
)

// Mode is the conversational register assigned to a message.
type Mode string

const (
	ModeExpert   Mode = "expert"
	ModeCreative Mode = "creative"
	ModeTalk     Mode = "talk"

	// ModeUnset means no classification has happened yet.
	ModeUnset Mode = ""
)

// ErrInvalidSession marks a validation failure on session fields.
var ErrInvalidSession = errors.New("invalid session")

// maxCacheMetrics bounds the per-session metrics map.
const maxCacheMetrics = 100

// UserSession is the state owned by one user's actor. It is mutated only
// by that actor (single writer), so it carries no locking.
type UserSession struct {
	UserID      string
	CurrentMode Mode

	// ModeHistory holds past classifications, oldest first, bounded to
	// historySize entries.
	ModeHistory []Mode

	cacheMetrics map[string]float64
	metricOrder  []string

	historySize int
}

// NewUserSession creates session state for a user.
func NewUserSession(userID string, historySize int) (*UserSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id must not be empty: %w", ErrInvalidSession)
	}
	if historySize <= 0 {
		return nil, fmt.Errorf("history size must be positive, got %d: %w", historySize, ErrInvalidSession)
	}
	return &UserSession{
		UserID:       userID,
		historySize:  historySize,
		cacheMetrics: make(map[string]float64),
	}, nil
}

// RecordMode appends a classified mode to the history, trimming the
// oldest entries so the history never exceeds its bound, and updates the
// current mode.
func (s *UserSession) RecordMode(m Mode) {
	s.ModeHistory = append(s.ModeHistory, m)
	if len(s.ModeHistory) > s.historySize {
		s.ModeHistory = s.ModeHistory[len(s.ModeHistory)-s.historySize:]
	}
	s.CurrentMode = m
}

// DominantMode returns the most frequent mode in the history and its
// occurrence count. Returns ModeUnset when the history is empty.
func (s *UserSession) DominantMode() (Mode, int) {
	counts := make(map[Mode]int, len(s.ModeHistory))
	for _, m := range s.ModeHistory {
		counts[m]++
	}
	best, bestCount := ModeUnset, 0
	for _, m := range s.ModeHistory {
		if counts[m] > bestCount {
			best, bestCount = m, counts[m]
		}
	}
	return best, bestCount
}

// RecordMetric stores a named metric on the session, evicting the oldest
// entry when the bounded map is full.
func (s *UserSession) RecordMetric(key string, value float64) {
	if _, exists := s.cacheMetrics[key]; !exists {
		s.metricOrder = append(s.metricOrder, key)
		if len(s.metricOrder) > maxCacheMetrics {
			oldest := s.metricOrder[0]
			s.metricOrder = s.metricOrder[1:]
			delete(s.cacheMetrics, oldest)
		}
	}
	s.cacheMetrics[key] = value
}

// Metric returns a stored metric value.
func (s *UserSession) Metric(key string) (float64, bool) {
	v, ok := s.cacheMetrics[key]
	return v, ok
}

// MetricCount reports how many metrics are stored.
func (s *UserSession) MetricCount() int {
	return len(s.cacheMetrics)
}
