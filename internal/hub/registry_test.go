package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	id   string
	fail error

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakePeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string   { return p.id }
func (p *fakePeer) Addr() string { return "fake:" + p.id }

func (p *fakePeer) Deliver(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	if p.closed {
		return errors.New("closed")
	}
	p.frames = append(p.frames, frame)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.frames))
	for _, f := range p.frames {
		out = append(out, string(f))
	}
	return out
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	a := newFakePeer("a")

	r.Register(a)
	r.Register(a)
	req.Equal(1, r.Len())
	req.True(r.Contains(a))

	_, removed := r.Unregister(a)
	req.True(removed)
	_, removed = r.Unregister(a)
	req.False(removed)
	req.Equal(0, r.Len())

	// Unregistering a peer that never joined leaves others in place
	b := newFakePeer("b")
	r.Register(b)
	issuer, removed := r.Unregister(newFakePeer("ghost"))
	req.False(removed)
	req.Empty(issuer)
	req.Equal(1, r.Len())
	req.True(r.Contains(b))
}

func TestRegistry_SnapshotKeepsRegistrationOrder(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	peers := []*fakePeer{newFakePeer("z"), newFakePeer("m"), newFakePeer("a"), newFakePeer("q")}
	for _, p := range peers {
		r.Register(p)
	}
	r.Unregister(peers[1])

	snapshot := r.Snapshot()
	req.Equal([]Peer{peers[0], peers[2], peers[3]}, snapshot)

	// The snapshot is a copy
	r.Unregister(peers[0])
	req.Len(snapshot, 3)
	req.Len(r.Snapshot(), 2)
}

func TestRegistry_Issuer(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	a := newFakePeer("a")

	req.False(r.UpdateIssuer(a, "alice"))

	r.Register(a)
	name, ok := r.Issuer(a)
	req.True(ok)
	req.Empty(name)

	req.True(r.UpdateIssuer(a, "alice"))
	issuer, removed := r.Unregister(a)
	req.True(removed)
	req.Equal("alice", issuer)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := newFakePeer(string(rune('A' + i)))
			r.Register(p)
			_ = r.Snapshot()
			r.UpdateIssuer(p, "x")
		}()
	}
	wg.Wait()
	req.Equal(50, r.Len())
}
