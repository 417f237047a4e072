// Package featureflags evaluates FEATURE_FLAGS rollouts.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Known flags. Unset flags are off.
const (
	AnimeMetadata     = "anime_metadata"
	PushNotifications = "push_notifications"
	FollowingFeed     = "following_feed"
)

// Known lists the flags the API consults.
var Known = []string{AnimeMetadata, PushNotifications, FollowingFeed}

// rule is one parsed flag value. percent is 0..100; on and off parse to the
// two ends so evaluation has a single path.
type rule struct {
	raw     string
	percent int
}

func parseRule(value string) rule {
	r := rule{raw: value}
	switch value {
	case "on", "true", "1":
		r.percent = 100
	case "off", "false", "0":
	default:
		// Values that are neither boolean nor N% stay off.
		if n, ok := strings.CutSuffix(value, "%"); ok {
			if pct, err := strconv.Atoi(n); err == nil {
				r.percent = min(max(pct, 0), 100)
			}
		}
	}
	return r
}

// Manager evaluates flags from a comma-separated list such as
// "anime_metadata=on,push_notifications=25%,following_feed=off".
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw. Malformed pairs are skipped.
func NewManager(raw string) *Manager {
	rules := make(map[string]rule)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key, value = normalize(key), normalize(value)
		if !ok || key == "" || value == "" {
			continue
		}
		rules[key] = parseRule(value)
	}
	return &Manager{rules: rules}
}

// Enabled reports whether name is on for userID. A partial rollout is a
// stable bucket of users and never includes the anonymous user 0.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	name = normalize(name)
	r, ok := m.rules[name]
	switch {
	case !ok || r.percent == 0:
		return false
	case r.percent == 100:
		return true
	case userID == 0:
		return false
	}
	return bucket(name, userID) < r.percent
}

// Global reports whether name is on for everyone.
func (m *Manager) Global(name string) bool {
	return m.Enabled(name, 0)
}

// Raw returns the configured values as written.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.rules))
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates every known and configured flag for userID.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.rules)+len(Known))
	for _, name := range Known {
		out[name] = m.Enabled(name, userID)
	}
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write(strconv.AppendUint(nil, uint64(userID), 10))
	return int(h.Sum32() % 100)
}
