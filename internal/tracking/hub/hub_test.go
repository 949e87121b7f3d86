package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastfare/internal/tracking/domain"
)

var errFull = errors.New("buffer full")

type fakeSub struct {
	id string

	mu     sync.Mutex
	frames []string
	fail   bool
	closed bool
}

func newFakeSub(id string) *fakeSub { return &fakeSub{id: id} }

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return errFull
	}
	f.frames = append(f.frames, string(msg))
	return nil
}

func (f *fakeSub) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSub) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

func (f *fakeSub) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestOpenDeclareJoinStates(t *testing.T) {
	h := New(nil)
	s := newFakeSub("c1")

	sess := h.Open(s, domain.RoleUnknown, "")
	assert.Equal(t, domain.SessionConnected, sess.State)

	require.NoError(t, h.Declare("c1", domain.RoleDriver, "d1"))
	got, ok := h.Session("c1")
	require.True(t, ok)
	assert.Equal(t, domain.SessionRoleDeclared, got.State)
	assert.Equal(t, "d1", got.DeclaredDriverID)

	joined, err := h.Join("c1", domain.DriverTopic("d1"), nil)
	require.NoError(t, err)
	assert.True(t, joined)

	got, _ = h.Session("c1")
	assert.Equal(t, domain.SessionInTopics, got.State)
	assert.Equal(t, []domain.Topic{domain.DriverTopic("d1")}, got.Topics)

	require.NoError(t, h.Leave("c1", domain.DriverTopic("d1")))
	got, _ = h.Session("c1")
	assert.Equal(t, domain.SessionRoleDeclared, got.State)
	assert.Empty(t, got.Topics)
}

func TestJoinIsIdempotentAndSeedsOnce(t *testing.T) {
	h := New(nil)
	s := newFakeSub("c1")
	h.Open(s, domain.RoleSubscriber, "")

	seeds := 0
	seed := func() []byte { seeds++; return []byte("snapshot") }

	joined, err := h.Join("c1", domain.GlobalTopic(), seed)
	require.NoError(t, err)
	assert.True(t, joined)

	joined, err = h.Join("c1", domain.GlobalTopic(), seed)
	require.NoError(t, err)
	assert.False(t, joined)

	assert.Equal(t, 1, seeds)
	assert.Equal(t, []string{"snapshot"}, s.received())
	assert.Equal(t, 1, h.Members(domain.GlobalTopic()))
}

func TestJoinUnknownSessionAndInvalidTopic(t *testing.T) {
	h := New(nil)

	_, err := h.Join("nope", domain.GlobalTopic(), nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	h.Open(newFakeSub("c1"), domain.RoleSubscriber, "")
	_, err = h.Join("c1", domain.ShipmentTopic(""), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTopic)
}

func TestSnapshotPrecedesLiveUpdates(t *testing.T) {
	h := New(nil)
	s := newFakeSub("c1")
	h.Open(s, domain.RoleSubscriber, "")

	_, err := h.Join("c1", domain.GlobalTopic(), func() []byte { return []byte("snapshot") })
	require.NoError(t, err)
	h.Publish(domain.GlobalTopic(), []byte("update"))

	assert.Equal(t, []string{"snapshot", "update"}, s.received())
}

func TestPublishRoutesOnlyToTopicMembers(t *testing.T) {
	h := New(nil)
	dash := newFakeSub("dash")
	track := newFakeSub("track")
	other := newFakeSub("other")
	for _, s := range []*fakeSub{dash, track, other} {
		h.Open(s, domain.RoleSubscriber, "")
	}
	_, _ = h.Join("dash", domain.GlobalTopic(), nil)
	_, _ = h.Join("track", domain.ShipmentTopic("AWB123"), nil)
	_, _ = h.Join("other", domain.ShipmentTopic("AWB999"), nil)

	assert.Equal(t, 1, h.Publish(domain.GlobalTopic(), []byte("g")))
	assert.Equal(t, 1, h.Publish(domain.ShipmentTopic("AWB123"), []byte("s")))
	assert.Equal(t, 0, h.Publish(domain.DriverTopic("d1"), []byte("d")))

	assert.Equal(t, []string{"g"}, dash.received())
	assert.Equal(t, []string{"s"}, track.received())
	assert.Empty(t, other.received())
}

func TestFailedSendPrunesOnlyThatSubscriber(t *testing.T) {
	var pruned []string
	h := New(nil, WithPruneHook(func(id string, _ error) { pruned = append(pruned, id) }))

	good := newFakeSub("good")
	bad := newFakeSub("bad")
	bad.fail = true
	h.Open(good, domain.RoleSubscriber, "")
	h.Open(bad, domain.RoleSubscriber, "")
	for _, id := range []string{"good", "bad"} {
		_, _ = h.Join(id, domain.GlobalTopic(), nil)
		_, _ = h.Join(id, domain.DriverTopic("d1"), nil)
	}

	assert.Equal(t, 1, h.Publish(domain.GlobalTopic(), []byte("x")))

	assert.True(t, bad.isClosed())
	assert.False(t, good.isClosed())
	assert.Equal(t, []string{"bad"}, pruned)
	assert.Equal(t, 1, h.Members(domain.GlobalTopic()))
	assert.Equal(t, 1, h.Members(domain.DriverTopic("d1")))

	// still registered until its connection closes
	assert.Equal(t, 2, h.Sessions())
	assert.Equal(t, 1, h.Publish(domain.DriverTopic("d1"), []byte("y")))
	assert.Equal(t, []string{"x", "y"}, good.received())
}

func TestFailedSeedPrunesJoiner(t *testing.T) {
	h := New(nil)
	s := newFakeSub("c1")
	s.fail = true
	h.Open(s, domain.RoleSubscriber, "")

	joined, err := h.Join("c1", domain.GlobalTopic(), func() []byte { return []byte("snap") })
	assert.Error(t, err)
	assert.False(t, joined)
	assert.True(t, s.isClosed())
	assert.Zero(t, h.Members(domain.GlobalTopic()))
}

func TestBroadcastReachesEverySession(t *testing.T) {
	h := New(nil)
	a := newFakeSub("a")
	b := newFakeSub("b")
	h.Open(a, domain.RoleDriver, "d1")
	h.Open(b, domain.RoleUnknown, "")
	_, _ = h.Join("a", domain.DriverTopic("d1"), nil)

	assert.Equal(t, 2, h.Broadcast([]byte("status")))
	assert.Equal(t, []string{"status"}, a.received())
	assert.Equal(t, []string{"status"}, b.received())
}

func TestCloseRemovesEverywhereAndIsIdempotent(t *testing.T) {
	h := New(nil)
	h.Open(newFakeSub("c1"), domain.RoleDriver, "d1")
	_, _ = h.Join("c1", domain.GlobalTopic(), nil)
	_, _ = h.Join("c1", domain.ShipmentTopic("AWB1"), nil)

	sess, ok := h.Close("c1")
	require.True(t, ok)
	assert.Equal(t, domain.SessionClosed, sess.State)
	assert.Equal(t, "d1", sess.DeclaredDriverID)
	assert.Len(t, sess.Topics, 2)

	assert.Zero(t, h.Sessions())
	assert.Zero(t, h.Members(domain.GlobalTopic()))
	assert.Zero(t, h.Members(domain.ShipmentTopic("AWB1")))

	_, ok = h.Close("c1")
	assert.False(t, ok)
}

func TestConcurrentJoinPublishClose(t *testing.T) {
	h := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		s := newFakeSub(string(rune('a' + i)))
		h.Open(s, domain.RoleSubscriber, "")
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.Join(s.ID(), domain.GlobalTopic(), func() []byte { return []byte("snap") })
			h.Close(s.ID())
		}()
		go func() {
			defer wg.Done()
			h.Publish(domain.GlobalTopic(), []byte("u"))
		}()
	}
	wg.Wait()
	assert.Zero(t, h.Sessions())
}

func TestPrunedSessionIsPrunedOnce(t *testing.T) {
	var mu sync.Mutex
	pruned := 0
	h := New(nil, WithPruneHook(func(string, error) {
		mu.Lock()
		pruned++
		mu.Unlock()
	}))

	good := newFakeSub("good")
	bad := newFakeSub("bad")
	bad.fail = true
	h.Open(good, domain.RoleSubscriber, "")
	h.Open(bad, domain.RoleDriver, "d1")

	assert.Equal(t, 1, h.Broadcast([]byte("a")))
	assert.Equal(t, 1, h.Broadcast([]byte("b")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Broadcast([]byte("c"))
		}()
	}
	wg.Wait()

	mu.Lock()
	assert.Equal(t, 1, pruned)
	mu.Unlock()
	assert.Equal(t, 2, h.Sessions())

	_, err := h.Join("bad", domain.GlobalTopic(), nil)
	assert.ErrorIs(t, err, ErrSessionPruned)
	assert.Zero(t, h.Members(domain.GlobalTopic()))

	// a pruned session still closes normally
	_, ok := h.Close("bad")
	assert.True(t, ok)
	assert.Equal(t, 1, h.Sessions())
}
