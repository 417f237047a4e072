package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, 1), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, 1), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,broken=abc%")

	assert.True(t, m.Enabled("always", 1))
	assert.True(t, m.Global("always"))
	assert.False(t, m.Enabled("never", 1))
	assert.False(t, m.Enabled("broken", 1))

	first := m.Enabled("canary", 42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", 42), "rollout must be deterministic per user")
	}
	assert.False(t, m.Enabled("canary", 0), "percentage rollout excludes anonymous users")

	on := 0
	for id := uint(1); id <= 1000; id++ {
		if m.Enabled("canary", id) {
			on++
		}
	}
	assert.InDelta(t, 250, on, 100)
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,Anime_Metadata=ON, following_feed = 20% ,push_notifications=off,=on")

	raw := m.Raw()
	assert.Equal(t, map[string]string{
		AnimeMetadata:     "on",
		FollowingFeed:     "20%",
		PushNotifications: "off",
	}, raw)

	snap := m.Snapshot(123)
	assert.Len(t, snap, 3)
	assert.True(t, snap[AnimeMetadata])
	assert.False(t, snap[PushNotifications])
}

func TestSnapshotIncludesUnsetKnownFlags(t *testing.T) {
	snap := NewManager("beta_banner=on").Snapshot(5)
	assert.Equal(t, map[string]bool{
		AnimeMetadata:     false,
		PushNotifications: false,
		FollowingFeed:     false,
		"beta_banner":     true,
	}, snap)
}

func TestPercentClamped(t *testing.T) {
	m := NewManager("over=150%,under=-5%")
	assert.True(t, m.Enabled("over", 9))
	assert.False(t, m.Enabled("under", 9))
	assert.Equal(t, "150%", m.Raw()["over"])
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled(AnimeMetadata, 1))
}
