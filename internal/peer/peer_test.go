package peer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
)

type fakeConn struct {
	mu     sync.Mutex
	toPeer chan Frame // frames this side "sends" that the remote would read
	toUs   chan Frame // frames queued for us to "read"
	closed bool
}

func newFakeConnPair() (*fakeConn, *fakeConn) {
	ab := make(chan Frame, 16)
	ba := make(chan Frame, 16)
	return &fakeConn{toPeer: ab, toUs: ba}, &fakeConn{toPeer: ba, toUs: ab}
}

func (c *fakeConn) WriteFrame(f Frame) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return assertAnError
	}
	c.toPeer <- f
	return nil
}

func (c *fakeConn) ReadFrame() (Frame, error) {
	f, ok := <-c.toUs
	if !ok {
		return Frame{}, assertAnError
	}
	return f, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.toPeer)
	}
	return nil
}

var assertAnError = &closedError{}

type closedError struct{}

func (e *closedError) Error() string { return "peer: connection closed" }

type recordingHandler struct {
	mu       sync.Mutex
	frames   []Frame
	disconns []string
}

func (h *recordingHandler) HandleFrame(peerName string, f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, f)
}
func (h *recordingHandler) HandleDisconnect(peerName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconns = append(h.disconns, peerName)
}

func (h *recordingHandler) waitForFrame(t *testing.T) Frame {
	t.Helper()
	for i := 0; i < 100; i++ {
		h.mu.Lock()
		n := len(h.frames)
		h.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.frames)
	return h.frames[len(h.frames)-1]
}

func TestPeer_SendDeliversAcrossAdoptedConnection(t *testing.T) {
	connA, connB := newFakeConnPair()
	handlerA := &recordingHandler{}
	handlerB := &recordingHandler{}

	a := NewPeer("b.example", handlerA)
	b := NewPeer("a.example", handlerB)
	a.Adopt(connA)
	b.Adopt(connB)

	require.NoError(t, a.Send(Frame{Kind: FrameAvatarSet, Player: model.Local("alice"), Avatar: []byte("x")}))

	got := handlerB.waitForFrame(t)
	assert.Equal(t, FrameAvatarSet, got.Kind)
	assert.Equal(t, []byte("x"), got.Avatar)
}

func TestPeer_SendFailsWhenNotOnline(t *testing.T) {
	p := NewPeer("remote.example", &recordingHandler{})
	err := p.Send(Frame{Kind: FrameAvatarSet})
	assert.Error(t, err)
}

func TestPeer_DisconnectMovesToOfflineWithBackoff(t *testing.T) {
	connA, _ := newFakeConnPair()
	handler := &recordingHandler{}
	p := NewPeer("remote.example", handler)
	p.Adopt(connA)
	assert.Equal(t, StateOnline, p.State())

	connA.Close()

	deadline := time.Now().Add(time.Second)
	for p.State() != StateOffline && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, StateOffline, p.State())
	assert.False(t, p.ReadyToRetry(time.Now()))
	assert.True(t, p.ReadyToRetry(time.Now().Add(time.Minute)))
}

func TestPeer_KillIsTerminal(t *testing.T) {
	p := NewPeer("remote.example", &recordingHandler{})
	p.Kill()
	assert.True(t, p.Dead())
	assert.Error(t, p.Send(Frame{Kind: FrameAvatarSet}))
}

func TestFrame_EncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{
		Kind:   FrameAvatarSet,
		Player: model.Local("alice"),
		Avatar: []byte{1, 2, 3},
	}
	data, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, f.Kind, got.Kind)
	assert.Equal(t, f.Player, got.Player)
	assert.Equal(t, f.Avatar, got.Avatar)
}
