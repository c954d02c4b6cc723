package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaki95/draft-builder/internal/storage"
	"github.com/jaki95/draft-builder/internal/timeline"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	return NewManager(store)
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t)

	d, id := m.Create(1080, 1920)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1080, d.Width)
	assert.Equal(t, 1920, d.Height)

	got, err := m.Get(id)
	require.NoError(t, err)
	assert.Same(t, d, got)

	_, err = m.Get("unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrCreate(t *testing.T) {
	m := newTestManager(t)

	_, id := m.Create(1080, 1920)

	gotID, d := m.GetOrCreate(id, 640, 480)
	assert.Equal(t, id, gotID)
	assert.Equal(t, 1080, d.Width)

	newID, fresh := m.GetOrCreate("", 640, 480)
	assert.NotEqual(t, id, newID)
	assert.Equal(t, 640, fresh.Width)

	// An unknown id falls back to creation under a new id.
	otherID, _ := m.GetOrCreate("missing", 640, 480)
	assert.NotEqual(t, "missing", otherID)
}

func TestCopy(t *testing.T) {
	m := newTestManager(t)

	source, id := m.Create(1080, 1920)
	seg := timeline.NewSegment()
	seg.Material = source.MaterialFor("a.mp4", timeline.MaterialVideo)
	seg.Duration = 5 * time.Second
	require.NoError(t, source.AddSegment("main", timeline.TrackVideo, seg, timeline.OverlapReject))

	d, newID, err := m.Copy(id, "")
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)
	require.Len(t, d.Tracks, 1)
	require.Len(t, d.Tracks[0].Segments, 1)

	// The copy is independent of the source.
	d.Tracks[0].Segments[0].TargetStart = 9 * time.Second
	assert.Equal(t, time.Duration(0), seg.TargetStart)
}

func TestCopyCollision(t *testing.T) {
	m := newTestManager(t)

	_, idA := m.Create(1080, 1920)

	_, _, err := m.Copy(idA, idA)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// The failed copy left the cache unchanged.
	assert.Len(t, m.List(), 1)
}

func TestCopyUnknownSource(t *testing.T) {
	m := newTestManager(t)

	_, _, err := m.Copy("missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloneNotFound(t *testing.T) {
	m := newTestManager(t)

	_, _, err := m.Clone("some_draft", "/nonexistent/root")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = m.Clone("missing_draft", t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloneRoundTrip(t *testing.T) {
	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	m := NewManager(store)

	// Persist a draft to act as the external source project.
	original := timeline.NewDraft("dfd_source", 1080, 1920)
	seg := timeline.NewSegment()
	seg.Text = "cloned text"
	seg.Duration = 2 * time.Second
	require.NoError(t, original.AddSegment("text_main", timeline.TrackText, seg, timeline.OverlapReject))
	_, err = store.WriteDraft(original)
	require.NoError(t, err)

	d, id, err := m.Clone("dfd_source", store.Root())
	require.NoError(t, err)
	assert.NotEqual(t, "dfd_source", id)
	require.Len(t, d.Tracks, 1)
	assert.Equal(t, "cloned text", d.Tracks[0].Segments[0].Text)

	// The clone is registered and its folder exists under the new id.
	_, err = m.Get(id)
	assert.NoError(t, err)
	assert.True(t, store.DraftExists(id))
}

func TestListOrder(t *testing.T) {
	m := newTestManager(t)

	_, first := m.Create(100, 100)
	time.Sleep(5 * time.Millisecond)
	_, second := m.Create(100, 100)
	time.Sleep(5 * time.Millisecond)

	// Touch the first draft so it becomes the most recent.
	_, err := m.Get(first)
	require.NoError(t, err)

	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, first, infos[0].ID)
	assert.Equal(t, second, infos[1].ID)
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)

	_, id := m.Create(100, 100)
	require.NoError(t, m.Delete(id))

	_, err := m.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(id), ErrNotFound)
}

func TestLock(t *testing.T) {
	m := newTestManager(t)

	_, id := m.Create(100, 100)
	unlock, err := m.Lock(id)
	require.NoError(t, err)
	unlock()

	_, err = m.Lock("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewDraftIDUnique(t *testing.T) {
	a := NewDraftID()
	b := NewDraftID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "dfd_")
}

func TestCopyConcurrentSameID(t *testing.T) {
	m := newTestManager(t)
	_, sourceID := m.Create(1080, 1920)

	var wg sync.WaitGroup
	var succeeded, collided atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := m.Copy(sourceID, "contended")
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrAlreadyExists):
				collided.Add(1)
			}
		}()
	}
	wg.Wait()

	// Exactly one copy wins the id; the rest see the collision.
	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(7), collided.Load())

	_, err := m.Get("contended")
	assert.NoError(t, err)
}
