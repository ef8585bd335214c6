package frame

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/reedgrid/internal/monitoring"
	"github.com/banshee-data/reedgrid/internal/timeutil"
)

// chanSource is a LineSource fed directly by the test.
type chanSource struct {
	ch        chan string
	err       error
	closeOnce sync.Once
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan string)}
}

func (s *chanSource) Lines() <-chan string { return s.ch }
func (s *chanSource) Err() error           { return s.err }

func (s *chanSource) Close() error {
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}

// closeWith ends the stream with err as the transport cause.
func (s *chanSource) closeWith(err error) {
	s.err = err
	s.Close()
}

func (s *chanSource) send(lines ...string) {
	for _, l := range lines {
		s.ch <- l
	}
}

const (
	rowA = "1,0,0,0,0,0,0,0"
	rowB = "0,0,0,0,0,0,0,1"
)

// repeat returns n copies of line.
func repeat(line string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = line
	}
	return out
}

// pushAll feeds lines through a and collects completed frames.
func pushAll(a *Assembler, lines ...string) []Frame {
	var frames []Frame
	for _, l := range lines {
		if f, ok := a.Push(l); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

func recordEvents(t *testing.T) (Option, func() []Event) {
	t.Helper()
	var (
		mu     sync.Mutex
		events []Event
	)
	opt := WithEventHandler(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	return opt, func() []Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]Event(nil), events...)
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func TestPush_CompletesOnTerminatedEighthRow(t *testing.T) {
	a := NewAssembler(nil)
	lines := append(repeat(rowA, 7), rowB+".")

	frames := pushAll(a, lines...)

	require.Len(t, frames, 1)
	want := mustFrame(t,
		"10000000", "10000000", "10000000", "10000000",
		"10000000", "10000000", "10000000", "00000001",
	)
	if diff := cmp.Diff(want, frames[0]); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Idle, a.State())
	assert.Zero(t, a.Pending())
	assert.Equal(t, int64(1), a.Stats().Frames)
	assert.Zero(t, a.Stats().Resets)
}

func TestPush_ShortLineDiscardsAccumulatedRows(t *testing.T) {
	opt, events := recordEvents(t)
	a := NewAssembler(nil, opt)

	// Five good rows, a truncated line, then three more rows and a
	// terminator: the old rows must not be stitched onto the new ones.
	lines := append(repeat(rowA, 5), "1,0,0,0,0,0,0")
	lines = append(lines, repeat(rowB, 2)...)
	lines = append(lines, rowB+".")
	assert.Empty(t, pushAll(a, lines...))

	got := events()
	require.Len(t, got, 2)
	assert.Equal(t, MalformedLine, got[0].Kind)
	assert.Equal(t, 5, got[0].Rows)
	assert.ErrorIs(t, got[0].Err, ErrMalformedLine)
	assert.Equal(t, TerminatorMisalignment, got[1].Kind)
	assert.Equal(t, 3, got[1].Rows)

	// Eight fresh lines complete a frame.
	frames := pushAll(a, append(repeat(rowB, 7), rowA+".")...)
	require.Len(t, frames, 1)
	assert.Equal(t, "00000001", frames[0][0].String())
	assert.Equal(t, "10000000", frames[0][7].String())
}

func TestPush_InvalidCellResets(t *testing.T) {
	opt, events := recordEvents(t)
	a := NewAssembler(nil, opt)

	lines := append(repeat(rowA, 6), "1,0,0,0,0,2,0,0", rowA+".")
	assert.Empty(t, pushAll(a, lines...))

	got := events()
	require.Len(t, got, 2)
	assert.Equal(t, InvalidCellValue, got[0].Kind)
	assert.Equal(t, 6, got[0].Rows)
	var ce *CellError
	require.ErrorAs(t, got[0].Err, &ce)
	assert.Equal(t, 5, ce.Column)
	assert.Equal(t, TerminatorMisalignment, got[1].Kind)
	assert.Equal(t, int64(1), a.Stats().InvalidCellValues)
}

func TestPush_InvalidCellOnTerminatorLine(t *testing.T) {
	opt, events := recordEvents(t)
	a := NewAssembler(nil, opt)

	lines := append(repeat(rowA, 7), "0,0,0,3,0,0,0,1.")
	assert.Empty(t, pushAll(a, lines...))
	assert.Equal(t, []EventKind{InvalidCellValue}, kinds(events()))
	assert.Equal(t, Idle, a.State())
}

func TestPush_EarlyTerminatorResets(t *testing.T) {
	opt, events := recordEvents(t)
	a := NewAssembler(nil, opt)

	lines := append(repeat(rowA, 5), rowB+".")
	assert.Empty(t, pushAll(a, lines...))

	got := events()
	require.Len(t, got, 1)
	assert.Equal(t, TerminatorMisalignment, got[0].Kind)
	assert.Equal(t, 6, got[0].Rows)
	assert.Equal(t, Idle, a.State())
	assert.Zero(t, a.Pending())
}

func TestPush_EightRowsWithoutTerminatorResets(t *testing.T) {
	opt, events := recordEvents(t)
	a := NewAssembler(nil, opt)

	assert.Empty(t, pushAll(a, repeat(rowA, 8)...))
	assert.Equal(t, []EventKind{TerminatorMisalignment}, kinds(events()))
	assert.Zero(t, a.Pending())

	frames := pushAll(a, append(repeat(rowB, 7), rowB+".")...)
	require.Len(t, frames, 1)
	assert.Equal(t, 8, frames[0].Count())
}

func TestPush_EmptyLinesAreIgnored(t *testing.T) {
	opt, events := recordEvents(t)
	a := NewAssembler(nil, opt)

	lines := []string{rowA, "", rowA, rowA, "\r", rowA, rowA, "   ", rowA, rowA, "", rowB + "."}
	frames := pushAll(a, lines...)

	require.Len(t, frames, 1)
	assert.Empty(t, events())
	assert.Equal(t, int64(4), a.Stats().EmptyLines)
	assert.Equal(t, "00000001", frames[0][7].String())
}

func TestPush_EmptyLineKeepsPendingRows(t *testing.T) {
	a := NewAssembler(nil)

	pushAll(a, rowA, rowA, rowA)
	assert.Equal(t, 3, a.Pending())
	pushAll(a, "")
	assert.Equal(t, 3, a.Pending())
	assert.Equal(t, Accumulating, a.State())
}

func TestPush_BareSentinelIsMalformed(t *testing.T) {
	opt, events := recordEvents(t)
	a := NewAssembler(nil, opt)

	assert.Empty(t, pushAll(a, append(repeat(rowA, 8)[:7], ".")...))
	assert.Equal(t, []EventKind{MalformedLine}, kinds(events()))
}

func TestPush_CRLFLines(t *testing.T) {
	a := NewAssembler(nil)
	lines := append(repeat(rowA+"\r\n", 7), rowB+".\r\n")
	assert.Len(t, pushAll(a, lines...), 1)
}

func TestPush_ResyncIsIdempotent(t *testing.T) {
	garbage := []string{
		"1,0,0,0,0,0,0",
		"1,1,1,1,1,1,1,1,1",
		"hello",
		"1,0,0,0,0,2,0,0",
		"0,0,0,0,0,0,0,1.",
		".",
		"1,0,0,0,x,0,0,0",
		"1,0,0,0,0,0,0,0.",
	}
	good := []string{
		"1,1,0,0,0,0,0,0",
		"0,1,1,0,0,0,0,0",
		"0,0,1,1,0,0,0,0",
		"0,0,0,1,1,0,0,0",
		"0,0,0,0,1,1,0,0",
		"0,0,0,0,0,1,1,0",
		"0,0,0,0,0,0,1,1",
		"1,0,0,0,0,0,0,1.",
	}
	want := mustFrame(t,
		"11000000", "01100000", "00110000", "00011000",
		"00001100", "00000110", "00000011", "10000001",
	)

	for n := 0; n <= 40; n += 5 {
		a := NewAssembler(nil)
		var lines []string
		for i := 0; i < n; i++ {
			lines = append(lines, garbage[i%len(garbage)])
		}
		lines = append(lines, good...)

		frames := pushAll(a, lines...)
		require.Len(t, frames, 1, "after %d garbage lines", n)
		if diff := cmp.Diff(want, frames[0]); diff != "" {
			t.Errorf("after %d garbage lines (-want +got):\n%s", n, diff)
		}
	}
}

func TestPush_ConsecutiveFrames(t *testing.T) {
	a := NewAssembler(nil)
	var lines []string
	for i := 0; i < 3; i++ {
		lines = append(lines, repeat(rowA, 7)...)
		lines = append(lines, rowB+".")
	}
	frames := pushAll(a, lines...)
	assert.Len(t, frames, 3)
	assert.Equal(t, int64(3), a.Stats().Frames)
	assert.Equal(t, int64(24), a.Stats().Lines)
}

func TestNextFrame_ReturnsFramesInOrderThenStreamClosed(t *testing.T) {
	src := newChanSource()
	a := NewAssembler(src)
	defer a.Close()

	go func() {
		src.send(append(repeat(rowA, 7), rowA+".")...)
		src.send(append(repeat(rowB, 7), rowB+".")...)
		src.send(rowA, rowA) // partial frame is never surfaced
		src.Close()
	}()

	ctx := context.Background()
	f1, err := a.NextFrame(ctx)
	require.NoError(t, err)
	assert.True(t, f1.At(0, 0))

	f2, err := a.NextFrame(ctx)
	require.NoError(t, err)
	assert.True(t, f2.At(0, 7))

	_, err = a.NextFrame(ctx)
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestNextFrame_TransportError(t *testing.T) {
	src := newChanSource()
	a := NewAssembler(src)
	cause := errors.New("input/output error")

	go func() {
		src.send(rowA, rowA)
		src.closeWith(cause)
	}()

	_, err := a.NextFrame(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrStreamClosed)
}

func TestNextFrame_ContextCancelled(t *testing.T) {
	src := newChanSource()
	a := NewAssembler(src)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := a.NextFrame(ctx)
		errCh <- err
	}()

	src.send(rowA)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("NextFrame did not return after cancel")
	}
}

func TestNextFrame_CloseUnblocks(t *testing.T) {
	src := newChanSource()
	a := NewAssembler(src)

	errCh := make(chan error, 1)
	go func() {
		_, err := a.NextFrame(context.Background())
		errCh <- err
	}()

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(time.Second):
		t.Fatal("NextFrame did not return after Close")
	}
}

func TestNextFrame_ReadTimeoutResets(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	opt, events := recordEvents(t)
	src := newChanSource()
	a := NewAssembler(src, WithClock(clock), WithReadTimeout(2*time.Second), opt)
	defer a.Close()

	type result struct {
		f   Frame
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		f, err := a.NextFrame(context.Background())
		resCh <- result{f, err}
	}()

	src.send(rowA, rowA, rowA)
	require.Eventually(t, func() bool {
		return a.Stats().Lines == 3 && clock.Waiters() == 1
	}, time.Second, time.Millisecond)

	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool {
		return a.Stats().ReadTimeouts == 1
	}, time.Second, time.Millisecond)

	// Had the three stale rows survived, the eight below would overflow and
	// no frame would complete.
	src.send(append(repeat(rowB, 7), rowA+".")...)

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		assert.Equal(t, strings.Repeat("00000001\n", 7)+"10000000", res.f.String())
	case <-time.After(time.Second):
		t.Fatal("NextFrame did not complete after timeout resync")
	}

	got := events()
	require.Len(t, got, 1)
	assert.Equal(t, ReadTimeout, got[0].Kind)
	assert.Equal(t, 3, got[0].Rows)
	assert.False(t, got[0].Idle())
	assert.Zero(t, a.Stats().IdleTimeouts)
}

func TestNextFrame_IdleTimeoutIsTagged(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	opt, events := recordEvents(t)
	src := newChanSource()
	a := NewAssembler(src, WithClock(clock), WithReadTimeout(5*time.Second), opt)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := a.NextFrame(ctx)
		errCh <- err
	}()

	for i := 1; i <= 2; i++ {
		require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
		clock.Advance(5 * time.Second)
		require.Eventually(t, func() bool { return a.Stats().ReadTimeouts == int64(i) }, time.Second, time.Millisecond)
	}
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	stats := a.Stats()
	assert.Equal(t, int64(2), stats.IdleTimeouts)
	assert.Equal(t, int64(2), stats.Resets)
	require.Len(t, events(), 2)
	for _, ev := range events() {
		assert.True(t, ev.Idle())
		assert.Zero(t, ev.Rows)
	}
}
