package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/changewatch/internal/domain"
	"github.com/notifyhub/changewatch/internal/queue"
	"github.com/notifyhub/changewatch/internal/registry"
	"github.com/notifyhub/changewatch/internal/repository"
	"github.com/notifyhub/changewatch/internal/service"
	"github.com/notifyhub/changewatch/internal/status"
)

type proxies map[string]bool

func (p proxies) Has(name string) bool { return p[name] }
func (p proxies) Names() []string {
	out := []string{}
	for n := range p {
		out = append(out, n)
	}
	return out
}

func newService() (*service.WatchService, *registry.Registry, *queue.RecheckQueue) {
	q := queue.New()
	reg := registry.New(registry.Options{
		DefaultThreshold: time.Hour,
		Proxies:          proxies{"eu": true},
		Pending:          q,
	})
	reporter := status.NewReporter(reg, q, status.Policy{}, time.Now())
	return service.NewWatchService(reg, q, reporter, zap.NewNop()), reg, q
}

func TestWatchService_CreateQueuesImmediateCheck(t *testing.T) {
	svc, _, q := newService()

	v, err := svc.Create(domain.CreateWatchRequest{
		URL:         "https://example.com",
		WatchExtras: domain.WatchExtras{Title: "Example", Tags: []string{"News"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, domain.StateQueued, v.State)
	assert.Equal(t, []string{"news"}, v.Tags)

	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, queue.Item{WatchID: v.ID, Priority: domain.PriorityImmediate, SkipIfUnchanged: true}, pending[0])
}

func TestWatchService_CreateValidation(t *testing.T) {
	svc, _, q := newService()

	_, err := svc.Create(domain.CreateWatchRequest{URL: "ftp://example.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidURL)

	_, err = svc.Create(domain.CreateWatchRequest{URL: "https://example.com", WatchExtras: domain.WatchExtras{Proxy: "mars"}})
	assert.ErrorIs(t, err, domain.ErrInvalidProxy)

	assert.Equal(t, 0, q.Size())
}

func TestWatchService_CreateAfterShutdownStillRegisters(t *testing.T) {
	svc, reg, q := newService()
	q.Shutdown()

	v, err := svc.Create(domain.CreateWatchRequest{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, v.State)
	assert.Equal(t, 1, reg.Len())
}

func TestWatchService_PauseMuteAndState(t *testing.T) {
	svc, _, q := newService()
	v, err := svc.Create(domain.CreateWatchRequest{URL: "https://example.com"})
	require.NoError(t, err)
	_, _ = q.TryDequeue()

	require.NoError(t, svc.SetPaused(v.ID, true))
	require.NoError(t, svc.SetMuted(v.ID, true))
	got, err := svc.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePaused, got.State)
	assert.True(t, got.Muted)

	require.NoError(t, svc.SetPaused(v.ID, false))
	require.NoError(t, svc.SetMuted(v.ID, false))
	got, _ = svc.Get(v.ID)
	assert.Equal(t, domain.StateIdle, got.State)
	assert.False(t, got.Muted)

	assert.ErrorIs(t, svc.SetPaused("missing", true), domain.ErrNotFound)
}

func TestWatchService_RecheckIgnoresPause(t *testing.T) {
	svc, _, q := newService()
	v, _ := svc.Create(domain.CreateWatchRequest{URL: "https://example.com"})
	_, _ = q.TryDequeue()
	require.NoError(t, svc.SetPaused(v.ID, true))

	require.NoError(t, svc.Recheck(v.ID))
	assert.True(t, q.Contains(v.ID))

	assert.ErrorIs(t, svc.Recheck("missing"), domain.ErrNotFound)
}

func TestWatchService_RecheckAllByTag(t *testing.T) {
	svc, _, q := newService()
	for _, tc := range []struct {
		url  string
		tags []string
	}{
		{"https://a.example", []string{"prices"}},
		{"https://b.example", []string{"news"}},
		{"https://c.example", []string{"prices", "news"}},
	} {
		_, err := svc.Create(domain.CreateWatchRequest{URL: tc.url, WatchExtras: domain.WatchExtras{Tags: tc.tags}})
		require.NoError(t, err)
	}
	for q.Size() > 0 {
		_, _ = q.TryDequeue()
	}

	n, err := svc.RecheckAll("prices")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, q.Size())

	n, err = svc.RecheckAll("")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, q.Size(), "re-queued watches coalesce")
}

func TestWatchService_ListAndUpdate(t *testing.T) {
	svc, _, _ := newService()
	v, err := svc.Create(domain.CreateWatchRequest{URL: "https://example.com", WatchExtras: domain.WatchExtras{Title: "old"}})
	require.NoError(t, err)

	title := "new"
	updated, err := svc.Update(v.ID, domain.WatchPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Title)

	list := svc.List("")
	require.Contains(t, list, v.ID)
	assert.Equal(t, "new", list[v.ID].Title)
	assert.Equal(t, "https://example.com", list[v.ID].URL)

	bad := "eu-west"
	_, err = svc.Update(v.ID, domain.WatchPatch{Proxy: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidProxy)
}

func TestWatchService_DeleteDropsPending(t *testing.T) {
	svc, _, q := newService()
	v, _ := svc.Create(domain.CreateWatchRequest{URL: "https://example.com"})
	require.True(t, q.Contains(v.ID))

	require.NoError(t, svc.Delete(v.ID))
	assert.False(t, q.Contains(v.ID))
	assert.ErrorIs(t, svc.Delete(v.ID), domain.ErrNotFound)
}

func TestWatchService_Hydrate(t *testing.T) {
	svc, reg, _ := newService()
	created := time.Now().Add(-time.Hour).UTC()
	repo := repository.NewMockWatchRepository(
		domain.Watch{ID: "a", URL: "https://a.example", CreatedAt: created},
		domain.Watch{ID: "b", URL: "https://b.example", CreatedAt: created.Add(time.Second)},
	)

	n, err := svc.Hydrate(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, reg.Len())

	repo.ListErr = errors.New("db down")
	_, err = svc.Hydrate(context.Background(), repo)
	assert.Error(t, err)
}

func TestWatchService_SystemInfo(t *testing.T) {
	svc, _, _ := newService()
	_, _ = svc.Create(domain.CreateWatchRequest{URL: "https://example.com"})

	info := svc.SystemInfo()
	assert.Equal(t, 1, info.WatchCount)
	assert.Equal(t, 1, info.QueueSize)
	assert.NotNil(t, info.OverdueWatchIDs)
	assert.Empty(t, info.OverdueWatchIDs)
}
