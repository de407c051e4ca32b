package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows       []Entry
	lastLimit  int32
	lastOffset int32
}

func (s *stubTimelineRepo) Window(_ context.Context, _ TimelineFilters, limit, offset int32) ([]Entry, error) {
	s.lastLimit = limit
	s.lastOffset = offset
	end := int(offset) + int(limit)
	if int(offset) >= len(s.rows) {
		return nil, nil
	}
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func (s *stubTimelineRepo) All(context.Context, TimelineFilters) ([]Entry, error) {
	return s.rows, nil
}

func entryAt(id int64, action string, at string) Entry {
	t, _ := time.Parse(time.RFC3339, at)
	return Entry{
		ID:         id,
		ActorID:    1,
		ActorName:  "Dana",
		Action:     action,
		Entity:     "role",
		EntityID:   "7",
		OccurredAt: t,
	}
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []Entry{
		entryAt(3, "role.update", "2026-03-10T10:00:00Z"),
		entryAt(2, "role.update", "2026-03-09T09:00:00Z"),
		entryAt(1, "role.create", "2026-03-08T08:00:00Z"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)
	// One extra row is requested to detect the next page.
	require.Equal(t, int32(3), repo.lastLimit)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.PrevPage)
}

func TestTimelineDefaultsAndCaps(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Equal(t, int32(21), repo.lastLimit)

	_, err = svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, int32(51), repo.lastLimit)
}

func TestTimelineWithoutRepository(t *testing.T) {
	svc := NewService(nil)

	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	entries := []Entry{
		entryAt(1, "permission.grant", "2026-03-08T08:00:00Z"),
	}
	entries[0].Meta = map[string]any{"permission": "reports.view"}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, entries))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "occurred_at")
	require.Contains(t, lines[1], "permission.grant")
	require.Contains(t, lines[1], "reports.view")
}
