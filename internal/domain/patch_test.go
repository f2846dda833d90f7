package domain_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/changewatch/internal/domain"
)

func TestDecodeWatchPatch(t *testing.T) {
	t.Run("partial fields", func(t *testing.T) {
		p, err := domain.DecodeWatchPatch(strings.NewReader(`{"title":"Docs","paused":true}`))
		require.NoError(t, err)
		require.NotNil(t, p.Title)
		require.NotNil(t, p.Paused)
		assert.Equal(t, "Docs", *p.Title)
		assert.True(t, *p.Paused)
		assert.Nil(t, p.URL)
		assert.False(t, p.Empty())
	})

	tests := []struct {
		name string
		body string
		want error
	}{
		{"unknown field", `{"titel":"typo"}`, domain.ErrSchema},
		{"wrong type", `{"paused":"yes"}`, domain.ErrSchema},
		{"trailing data", `{"title":"a"}{"title":"b"}`, domain.ErrSchema},
		{"negative interval", `{"check_interval_seconds":-1}`, domain.ErrSchema},
		{"bad url", `{"url":"not a url"}`, domain.ErrInvalidURL},
		{"not json", `title=x`, domain.ErrSchema},
		{"explicit null", `{"paused":null}`, domain.ErrSchema},
		{"null beside a value", `{"title":"a","proxy":null}`, domain.ErrSchema},
		{"top-level null", `null`, domain.ErrSchema},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.DecodeWatchPatch(strings.NewReader(tc.body))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecodeCreateWatchRequest(t *testing.T) {
	req, err := domain.DecodeCreateWatchRequest(strings.NewReader(
		`{"url":"https://example.com/page","title":"Page","tags":["docs"],"check_interval_seconds":60}`))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", req.URL)
	assert.Equal(t, "Page", req.Title)
	assert.Equal(t, []string{"docs"}, req.Tags)
	assert.Equal(t, 60, req.CheckIntervalSeconds)

	_, err = domain.DecodeCreateWatchRequest(strings.NewReader(`{"url":"https://example.com","colour":"red"}`))
	assert.ErrorIs(t, err, domain.ErrSchema)

	_, err = domain.DecodeCreateWatchRequest(strings.NewReader(`{"url":"https://example.com","title":null}`))
	assert.ErrorIs(t, err, domain.ErrSchema)

	_, err = domain.DecodeCreateWatchRequest(strings.NewReader(`{"url":"ftp://example.com"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidURL)
}

func TestPatchFromMap(t *testing.T) {
	p, err := domain.PatchFromMap(map[string]any{"notification_muted": true})
	require.NoError(t, err)
	require.NotNil(t, p.Muted)
	assert.True(t, *p.Muted)

	_, err = domain.PatchFromMap(map[string]any{"bogus": 1})
	assert.ErrorIs(t, err, domain.ErrSchema)
}

func TestWatchPatch_Apply(t *testing.T) {
	w := domain.Watch{URL: "https://example.com", Title: "old"}
	title := "new"
	tags := []string{" News ", "news", "Tech"}
	domain.WatchPatch{Title: &title, Tags: &tags}.Apply(&w)

	assert.Equal(t, "new", w.Title)
	assert.Equal(t, []string{"news", "tech"}, w.Tags)
	assert.Equal(t, "https://example.com", w.URL)
}

func TestValidateURL(t *testing.T) {
	valid := []string{"https://example.com", "http://example.com/path?q=1", "  https://example.com/  "}
	for _, u := range valid {
		assert.NoError(t, domain.ValidateURL(u), u)
	}
	invalid := []string{"", "example.com", "ftp://example.com", "https://", "javascript:alert(1)"}
	for _, u := range invalid {
		assert.ErrorIs(t, domain.ValidateURL(u), domain.ErrInvalidURL, u)
	}
}

func TestWatch_State(t *testing.T) {
	w := domain.Watch{}
	assert.Equal(t, domain.StateIdle, w.State(false))
	assert.Equal(t, domain.StateQueued, w.State(true))

	w.Paused = true
	assert.Equal(t, domain.StatePaused, w.State(false))
	assert.Equal(t, domain.StateQueued, w.State(true))

	w.Checking = true
	assert.Equal(t, domain.StateChecking, w.State(true))
}
