package serialmux

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"sync"

	"go.bug.st/serial"
)

// maxLineBytes caps a single line. A board row is 16 bytes; anything near this
// size is noise and will be rejected by the assembler anyway.
const maxLineBytes = 4096

// OverlongLine is delivered in place of a line longer than maxLineBytes. It
// has a single field, so the assembler rejects it as malformed and resyncs.
const OverlongLine = "<overlong line>"

// LineReader scans newline terminated lines from a serial port on its own
// goroutine and delivers them on a channel, so the consumer can wait on a
// line, a deadline and cancellation at the same time. It owns the port.
type LineReader struct {
	port  SerialPorter
	lines chan string
	done  chan struct{}

	mu      sync.Mutex
	err     error
	closing bool

	closeOnce sync.Once
	closeErr  error
}

// NewLineReader starts scanning port.
func NewLineReader(port SerialPorter) *LineReader {
	r := &LineReader{
		port:  port,
		lines: make(chan string),
		done:  make(chan struct{}),
	}
	go r.scan()
	return r
}

func (r *LineReader) scan() {
	defer close(r.lines)

	br := bufio.NewReaderSize(r.port, maxLineBytes)
	for {
		line, ok, err := readLine(br)
		if ok {
			select {
			case r.lines <- line:
			case <-r.done:
				return
			}
		}
		if err != nil {
			r.mu.Lock()
			if !r.closing && !isClosedErr(err) {
				r.err = err
			}
			r.mu.Unlock()
			return
		}
	}
}

// readLine returns the next line without its line ending; ok is false when
// nothing was read. A line that does not fit the buffer is consumed through
// its newline and returned as OverlongLine.
func readLine(br *bufio.Reader) (line string, ok bool, err error) {
	b, err := br.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = br.ReadSlice('\n')
		}
		return OverlongLine, true, err
	}
	if len(b) == 0 {
		return "", false, err
	}
	b = bytes.TrimSuffix(b, []byte{'\n'})
	b = bytes.TrimSuffix(b, []byte{'\r'})
	return string(b), true, err
}

// Lines returns the channel of scanned lines, without their trailing newline.
// It is closed when the port reaches end of stream, fails, or is closed.
func (r *LineReader) Lines() <-chan string { return r.lines }

// Err returns the read error that ended the stream, or nil when the stream
// ended because the port was closed or reached EOF. It is only meaningful
// once Lines has been closed.
func (r *LineReader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close stops scanning and closes the port. A Read blocked in the port
// returns, which ends the scanning goroutine.
func (r *LineReader) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closing = true
		r.mu.Unlock()
		close(r.done)
		r.closeErr = r.port.Close()
	})
	return r.closeErr
}

// isClosedErr reports whether err means the port went away in an orderly
// way rather than failed.
func isClosedErr(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, ErrPortClosed) {
		return true
	}
	var pe *serial.PortError
	if errors.As(err, &pe) && pe.Code() == serial.PortClosed {
		return true
	}
	return false
}
