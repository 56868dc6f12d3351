package headset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mindwave.report/internal/blink"
	"github.com/banshee-data/mindwave.report/internal/history"
	"github.com/banshee-data/mindwave.report/internal/serialport"
	"github.com/banshee-data/mindwave.report/internal/testutil"
	"github.com/banshee-data/mindwave.report/internal/thinkgear"
	"github.com/banshee-data/mindwave.report/internal/timeutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const waitFor = 2 * time.Second
const tick = 2 * time.Millisecond

type delivered struct {
	sample thinkgear.Sample
	blink  *blink.Event
}

type collector struct {
	mu  sync.Mutex
	got []delivered
}

func (c *collector) handle(s thinkgear.Sample, ev *blink.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, delivered{s, ev})
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func (c *collector) all() []delivered {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]delivered(nil), c.got...)
}

func newTestHeadset(t *testing.T) (*Headset, *serialport.TestableSerialPort, *serialport.MockPortOpener, *timeutil.MockClock) {
	t.Helper()
	port := serialport.NewTestableSerialPort()
	opener := serialport.NewMockPortOpener(port)
	clock := timeutil.NewMockClock(epoch)
	h := New(Options{
		Path:         "/dev/rfcomm0",
		Opener:       opener.Open,
		Clock:        clock,
		PollTimeout:  5 * time.Millisecond,
		FrameTimeout: 100 * time.Millisecond,
		ErrorBackoff: 5 * time.Millisecond,
	})
	t.Cleanup(func() { h.Close() })
	return h, port, opener, clock
}

func TestConnectDisconnect(t *testing.T) {
	h, port, opener, _ := newTestHeadset(t)

	assert.False(t, h.Connected())
	assert.ErrorIs(t, h.Disconnect(), ErrNotConnected)

	require.NoError(t, h.Connect(context.Background()))
	assert.True(t, h.Connected())
	assert.Equal(t, "/dev/rfcomm0", opener.LastCall().Path)
	assert.ErrorIs(t, h.Connect(context.Background()), ErrAlreadyConnected)
	assert.Len(t, opener.OpenCalls, 1)

	st := h.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, epoch, st.ConnectedAt)
	assert.Equal(t, "9600 8N1", st.Port)

	require.NoError(t, h.Disconnect())
	assert.False(t, h.Connected())
	assert.True(t, port.IsClosed())
	assert.False(t, h.Status().Connected)
}

func TestConnectFailure(t *testing.T) {
	h, _, opener, _ := newTestHeadset(t)
	opener.Error = errors.New("no such device")

	err := h.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnect)
	assert.Contains(t, err.Error(), "no such device")
	assert.False(t, h.Connected())
}

func TestContextCancelStopsLoop(t *testing.T) {
	h, port, _, _ := newTestHeadset(t)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, h.Connect(ctx))
	cancel()

	require.Eventually(t, func() bool { return !h.Connected() }, waitFor, tick)
	assert.True(t, port.IsClosed())
}

func TestSamplesDispatchedInOrder(t *testing.T) {
	h, port, _, _ := newTestHeadset(t)
	var c collector
	h.Subscribe(c.handle)
	require.NoError(t, h.Connect(context.Background()))

	var stream []byte
	for i := 0; i < 20; i++ {
		stream = append(stream, 0x01, 0x02, 0x7F) // noise before each frame
		stream = append(stream, testutil.Frame(t, testutil.Payload(uint8(i), 0, 0))...)
	}
	port.AddReadData(stream)

	require.Eventually(t, func() bool { return c.len() == 20 }, waitFor, tick)
	for i, d := range c.all() {
		assert.Equal(t, uint8(i), d.sample.Attention, "sample %d out of order", i)
		assert.Equal(t, uint8(100-i), d.sample.Meditation)
		assert.Nil(t, d.blink)
		assert.Equal(t, epoch, d.sample.ReceivedAt)
	}

	att := h.HistoryChannel(history.Attention)
	require.Len(t, att, 20)
	assert.Equal(t, 19.0, att[19])
	assert.Equal(t, uint64(20), h.Stats().Frames)
	assert.Equal(t, uint64(len(stream)), h.Stats().Bytes)
	assert.Equal(t, epoch, h.Status().LastSampleAt)
}

func TestCorruptFramesAreCounted(t *testing.T) {
	h, port, _, _ := newTestHeadset(t)
	var c collector
	h.Subscribe(c.handle)
	require.NoError(t, h.Connect(context.Background()))

	bad := testutil.Frame(t, testutil.Payload(1, 0, 0))
	bad[len(bad)-1] ^= 0xFF
	var stream []byte
	stream = append(stream, 0xAA, 0xAA, 0x00) // zero length
	stream = append(stream, 0xAA, 0xAA, 0x21) // 33
	stream = append(stream, bad...)
	stream = append(stream, testutil.Frame(t, testutil.Payload(42, 0, 0))...)
	port.AddReadData(stream)

	require.Eventually(t, func() bool { return c.len() == 1 }, waitFor, tick)
	assert.Equal(t, uint8(42), c.all()[0].sample.Attention)

	st := h.Stats()
	assert.Equal(t, uint64(2), st.LengthErrors)
	assert.Equal(t, uint64(1), st.ChecksumErrors)
	assert.Equal(t, uint64(1), st.Frames)
}

func TestShortFrameIsAbandoned(t *testing.T) {
	h, port, _, clock := newTestHeadset(t)
	var c collector
	h.Subscribe(c.handle)
	require.NoError(t, h.Connect(context.Background()))

	full := testutil.Frame(t, testutil.Payload(7, 0, 0))
	port.AddReadData(full[:10])

	// the frame deadline follows the headset clock, not the wall clock
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, h.Stats().ShortFrames)

	require.Eventually(t, func() bool {
		clock.Advance(50 * time.Millisecond)
		return h.Stats().ShortFrames >= 1
	}, waitFor, tick)
	assert.Equal(t, 0, c.len())

	port.AddReadData(testutil.Frame(t, testutil.Payload(8, 0, 0)))
	require.Eventually(t, func() bool { return c.len() == 1 }, waitFor, tick)
	assert.Equal(t, uint8(8), c.all()[0].sample.Attention)
}

func TestBlinkClassification(t *testing.T) {
	h, port, _, clock := newTestHeadset(t)
	var c collector
	h.Subscribe(c.handle)
	require.NoError(t, h.Connect(context.Background()))

	assert.Nil(t, h.LastBlink())

	send := func(strength uint8, raw int16, want int) {
		t.Helper()
		port.AddReadData(testutil.Frame(t, testutil.Payload(50, strength, raw)))
		require.Eventually(t, func() bool { return c.len() == want }, waitFor, tick)
	}

	send(90, -5, 1)
	clock.Advance(300 * time.Millisecond)
	send(90, 12, 2)
	clock.Advance(1700 * time.Millisecond)
	send(90, 12, 3)
	clock.Advance(100 * time.Millisecond)
	send(0, -40, 4) // no blink in this frame

	got := c.all()
	require.NotNil(t, got[0].blink)
	assert.Equal(t, blink.Left, got[0].blink.Type)
	assert.Equal(t, epoch, got[0].blink.At)
	assert.Equal(t, blink.Both, got[1].blink.Type)
	assert.Equal(t, blink.Right, got[2].blink.Type)
	// the last classification carries forward to samples without a blink
	require.NotNil(t, got[3].blink)
	assert.Equal(t, blink.Right, got[3].blink.Type)

	last := h.LastBlink()
	require.NotNil(t, last)
	assert.Equal(t, blink.Right, last.Type)
	assert.Equal(t, epoch.Add(2*time.Second), last.At)
	assert.Equal(t, uint64(3), last.Seq)
	assert.Equal(t, uint64(3), h.Stats().Blinks)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	h, port, _, _ := newTestHeadset(t)

	release := make(chan struct{})
	var slow collector
	h.Subscribe(func(s thinkgear.Sample, ev *blink.Event) {
		<-release
		slow.handle(s, ev)
	})
	var fast collector
	h.Subscribe(fast.handle)
	require.NoError(t, h.Connect(context.Background()))

	var stream []byte
	for i := 0; i < 10; i++ {
		stream = append(stream, testutil.Frame(t, testutil.Payload(uint8(i), 0, 0))...)
	}
	port.AddReadData(stream)

	require.Eventually(t, func() bool { return fast.len() == 10 }, waitFor, tick)
	assert.Equal(t, 0, slow.len())
	assert.Equal(t, uint64(10), h.Stats().Frames)

	close(release)
	require.Eventually(t, func() bool { return slow.len() == 10 }, waitFor, tick)
	for i, d := range slow.all() {
		assert.Equal(t, uint8(i), d.sample.Attention)
	}
}

func TestUnsubscribe(t *testing.T) {
	h, port, _, _ := newTestHeadset(t)
	var a, b collector
	idA := h.Subscribe(a.handle)
	h.Subscribe(b.handle)
	assert.Equal(t, 2, h.Stats().Subscribers)
	require.NoError(t, h.Connect(context.Background()))

	port.AddReadData(testutil.Frame(t, testutil.Payload(1, 0, 0)))
	require.Eventually(t, func() bool { return a.len() == 1 && b.len() == 1 }, waitFor, tick)

	h.Unsubscribe(idA)
	h.Unsubscribe("not-a-subscriber")
	assert.Equal(t, 1, h.Stats().Subscribers)

	port.AddReadData(testutil.Frame(t, testutil.Payload(2, 0, 0)))
	require.Eventually(t, func() bool { return b.len() == 2 }, waitFor, tick)
	assert.Equal(t, 1, a.len())
}

func TestReadErrorRecovery(t *testing.T) {
	h, port, _, clock := newTestHeadset(t)
	var c collector
	h.Subscribe(c.handle)
	require.NoError(t, h.Connect(context.Background()))

	port.SetReadError(errors.New("input/output error"))
	require.Eventually(t, func() bool { return h.Stats().ReadErrors == 1 }, waitFor, tick)
	assert.Contains(t, h.Status().LinkError, "input/output error")
	assert.True(t, h.Connected())

	// the loop backs off on the headset clock before reading again
	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, waitFor, tick)
	port.AddReadData(testutil.Frame(t, testutil.Payload(5, 0, 0)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, c.len())

	clock.Advance(5 * time.Millisecond)
	require.Eventually(t, func() bool { return c.len() == 1 }, waitFor, tick)
	assert.Empty(t, h.Status().LinkError)
	assert.Equal(t, epoch.Add(5*time.Millisecond), c.all()[0].sample.ReceivedAt)
}

func TestReconnectResetsSession(t *testing.T) {
	h, port, opener, _ := newTestHeadset(t)
	var c collector
	h.Subscribe(c.handle)
	require.NoError(t, h.Connect(context.Background()))

	port.AddReadData(testutil.Frame(t, testutil.Payload(3, 0, 0)))
	require.Eventually(t, func() bool { return c.len() == 1 }, waitFor, tick)
	require.Len(t, h.History()[history.Attention], 1)
	require.NoError(t, h.Disconnect())

	// history is kept until the next session starts
	assert.Len(t, h.History()[history.Attention], 1)

	opener.Port = serialport.NewTestableSerialPort()
	require.NoError(t, h.Connect(context.Background()))
	assert.Empty(t, h.History()[history.Attention])
	assert.Zero(t, h.Stats().Frames)
	assert.Equal(t, 1, h.Stats().Subscribers)
}

func TestHistoryCapacity(t *testing.T) {
	port := serialport.NewTestableSerialPort()
	h := New(Options{
		Opener:          serialport.NewMockPortOpener(port).Open,
		PollTimeout:     5 * time.Millisecond,
		HistoryCapacity: 5,
	})
	defer h.Close()
	require.NoError(t, h.Connect(context.Background()))

	var stream []byte
	for i := 0; i < 8; i++ {
		stream = append(stream, testutil.Frame(t, testutil.Payload(uint8(i), 0, 0))...)
	}
	port.AddReadData(stream)

	require.Eventually(t, func() bool { return h.Stats().Frames == 8 }, waitFor, tick)
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, h.HistoryChannel(history.Attention))
}

func TestCloseDrainsSubscribers(t *testing.T) {
	h, port, _, _ := newTestHeadset(t)
	var c collector
	h.Subscribe(func(s thinkgear.Sample, ev *blink.Event) {
		time.Sleep(time.Millisecond)
		c.handle(s, ev)
	})
	require.NoError(t, h.Connect(context.Background()))

	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, testutil.Frame(t, testutil.Payload(uint8(i), 0, 0))...)
	}
	port.AddReadData(stream)
	require.Eventually(t, func() bool { return h.Stats().Frames == 5 }, waitFor, tick)

	require.NoError(t, h.Close())
	assert.Equal(t, 5, c.len())
	assert.Equal(t, 0, h.Stats().Subscribers)
}

func TestSessionHooks(t *testing.T) {
	port := serialport.NewTestableSerialPort()
	var (
		mu         sync.Mutex
		connected  []Status
		endedStats []Stats
	)
	h := New(Options{
		Path:        "/dev/rfcomm1",
		Opener:      serialport.NewMockPortOpener(port).Open,
		Clock:       timeutil.NewMockClock(epoch),
		PollTimeout: 5 * time.Millisecond,
		OnConnect: func(st Status) {
			mu.Lock()
			defer mu.Unlock()
			connected = append(connected, st)
		},
		OnDisconnect: func(st Status, stats Stats) {
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, st.Connected)
			endedStats = append(endedStats, stats)
		},
	})
	defer h.Close()

	require.NoError(t, h.Connect(context.Background()))
	port.AddReadData(testutil.Frame(t, testutil.Payload(9, 0, 0)))
	require.Eventually(t, func() bool { return h.Stats().Frames == 1 }, waitFor, tick)
	require.NoError(t, h.Disconnect())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, connected, 1)
	assert.Equal(t, "/dev/rfcomm1", connected[0].Path)
	assert.Equal(t, epoch, connected[0].ConnectedAt)
	require.Len(t, endedStats, 1)
	assert.Equal(t, uint64(1), endedStats[0].Frames)
}

func TestDisconnectWaitsForSubscriberBacklog(t *testing.T) {
	port := serialport.NewTestableSerialPort()
	release := make(chan struct{})
	var (
		c       collector
		mu      sync.Mutex
		handled []int
	)
	h := New(Options{
		Opener:      serialport.NewMockPortOpener(port).Open,
		Clock:       timeutil.NewMockClock(epoch),
		PollTimeout: 5 * time.Millisecond,
		OnDisconnect: func(Status, Stats) {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, c.len())
		},
	})
	defer h.Close()
	h.Subscribe(func(s thinkgear.Sample, ev *blink.Event) {
		<-release
		c.handle(s, ev)
	})
	require.NoError(t, h.Connect(context.Background()))

	const frames = 50
	var stream []byte
	for i := 0; i < frames; i++ {
		stream = append(stream, testutil.Frame(t, testutil.Payload(uint8(i), 0, 0))...)
	}
	port.AddReadData(stream)
	require.Eventually(t, func() bool { return h.Stats().Frames == frames }, waitFor, tick)

	disconnected := make(chan error, 1)
	go func() { disconnected <- h.Disconnect() }()
	select {
	case <-disconnected:
		t.Fatal("Disconnect returned while samples were still queued")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-disconnected:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Disconnect did not return after the backlog drained")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{frames}, handled)
}
