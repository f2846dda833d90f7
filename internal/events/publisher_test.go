package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/changewatch/internal/domain"
	"github.com/notifyhub/changewatch/internal/events"
)

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "watch.checked", events.RoutingKey(domain.WatchEvent{Kind: domain.EventChecked}))
	assert.Equal(t, "watch.deleted", events.RoutingKey(domain.WatchEvent{Kind: domain.EventDeleted}))
}

func TestEncode(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := domain.WatchEvent{
		Kind:     domain.EventUpdated,
		WatchID:  "w1",
		Watch:    domain.Watch{ID: "w1", URL: "https://example.com", Paused: true},
		Revision: 7,
		At:       at,
	}

	body, err := events.Encode(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "updated", decoded["kind"])
	assert.Equal(t, "w1", decoded["watch_id"])
	assert.EqualValues(t, 7, decoded["revision"])
	watch := decoded["watch"].(map[string]any)
	assert.Equal(t, "https://example.com", watch["url"])
	assert.Equal(t, true, watch["paused"])
}

func TestEncodeDeletedCarriesOnlyID(t *testing.T) {
	body, err := events.Encode(domain.WatchEvent{
		Kind:    domain.EventDeleted,
		WatchID: "w1",
		Watch:   domain.Watch{ID: "w1", URL: "https://example.com"},
	})
	require.NoError(t, err)

	var decoded struct {
		Watch domain.Watch `json:"watch"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "w1", decoded.Watch.ID)
	assert.Empty(t, decoded.Watch.URL)
}
