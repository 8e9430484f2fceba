package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/metrics"
)

// DefaultMaxTreeDepth bounds the settings screen scan.
const DefaultMaxTreeDepth = 64

// SettingsMatcher decides whether the settings surface is currently showing
// one of this app's own screens (app info, accessibility entry, ...).
type SettingsMatcher struct {
	reader   domain.ScreenReader
	markers  []string
	maxDepth int
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewSettingsMatcher creates a matcher for the given brand/package markers.
// Markers are compared case-insensitively; empty markers are dropped.
func NewSettingsMatcher(
	reader domain.ScreenReader,
	markers []string,
	maxDepth int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SettingsMatcher {
	normalized := make([]string, 0, len(markers))
	for _, mk := range markers {
		mk = strings.ToLower(strings.TrimSpace(mk))
		if mk != "" {
			normalized = append(normalized, mk)
		}
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxTreeDepth
	}
	return &SettingsMatcher{
		reader:   reader,
		markers:  normalized,
		maxDepth: maxDepth,
		metrics:  m,
		logger:   logger,
	}
}

// Markers returns the normalized markers.
func (s *SettingsMatcher) Markers() []string {
	return append([]string(nil), s.markers...)
}

// Matches reports whether any node of the active window mentions a marker.
// It never fails: a missing window or unreadable node counts as no match.
func (s *SettingsMatcher) Matches(ctx context.Context) bool {
	root, err := s.reader.ActiveRoot(ctx)
	if err != nil || root == nil {
		s.logger.Debug("no readable active window", zap.Error(err))
		s.metrics.SettingsScans.WithLabelValues("no_match").Inc()
		return false
	}

	visited := make(map[string]struct{})
	matched := s.scan(ctx, root, 0, visited)
	if matched {
		s.metrics.SettingsScans.WithLabelValues("match").Inc()
	} else {
		s.metrics.SettingsScans.WithLabelValues("no_match").Inc()
	}
	return matched
}

func (s *SettingsMatcher) scan(ctx context.Context, n domain.Node, depth int, visited map[string]struct{}) bool {
	if depth > s.maxDepth || ctx.Err() != nil {
		return false
	}
	if key := n.Key(); key != "" {
		if _, seen := visited[key]; seen {
			return false
		}
		visited[key] = struct{}{}
	}

	if text, err := n.Text(); err == nil && s.containsMarker(text) {
		return true
	}
	if desc, err := n.Description(); err == nil && s.containsMarker(desc) {
		return true
	}

	count, err := n.ChildCount()
	if err != nil {
		return false
	}
	for i := 0; i < count; i++ {
		child, err := n.Child(i)
		if err != nil || child == nil {
			continue
		}
		if s.scan(ctx, child, depth+1, visited) {
			return true
		}
	}
	return false
}

func (s *SettingsMatcher) containsMarker(value string) bool {
	if value == "" {
		return false
	}
	value = strings.ToLower(value)
	for _, mk := range s.markers {
		if strings.Contains(value, mk) {
			return true
		}
	}
	return false
}
