package assistant

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// ErrStreamIdle is returned when the backend stops producing frames for
	// longer than the configured idle timeout.
	ErrStreamIdle = errors.New("ERR_STREAM_IDLE: no frames received before idle timeout")

	// ErrStreamTruncated is returned when the connection ends before a done
	// or error frame arrives.
	ErrStreamTruncated = errors.New("ERR_STREAM_TRUNCATED: stream ended without a terminal frame")
)

// Stream reads frames off a live turn-send response. Frames arrive as
// newline-delimited records of the form
//
//	event: chunk
//	data: {"type":"chunk","text":"..."}
//
// separated by blank lines. Only data lines carry payloads; event lines and
// comments are skipped. Recv is not safe for concurrent use.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	idle    time.Duration
	logf    func(format string, args ...interface{})

	watchdog  *time.Timer
	idleFired atomic.Bool
	closed    atomic.Bool
	terminal  bool
	skipped   int
}

func newStream(body io.ReadCloser, idle time.Duration, logf func(string, ...interface{})) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{body: body, scanner: sc, idle: idle, logf: logf}
}

// Recv returns the next decoded frame. After a done or error frame has been
// delivered, or once the stream is closed, Recv returns io.EOF. Malformed
// data lines are logged and skipped rather than failing the stream.
func (s *Stream) Recv() (Frame, error) {
	if s.terminal || s.closed.Load() {
		return Frame{}, io.EOF
	}
	s.armWatchdog()
	defer s.disarmWatchdog()

	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "event:") || strings.HasPrefix(line, ":") {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			s.skip(line, nil)
			continue
		}
		payload = strings.TrimSpace(payload)

		var frame Frame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			s.skip(line, err)
			continue
		}
		if frame.Type == "" {
			s.skip(line, errors.New("missing frame type"))
			continue
		}
		if frame.Terminal() {
			s.terminal = true
		}
		return frame, nil
	}

	if s.idleFired.Load() {
		return Frame{}, ErrStreamIdle
	}
	if s.closed.Load() {
		return Frame{}, io.EOF
	}
	if err := s.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, ErrStreamTruncated
}

// Skipped reports how many malformed lines were dropped so far.
func (s *Stream) Skipped() int {
	return s.skipped
}

// Close tears down the underlying connection. Safe to call more than once
// and concurrently with a blocked Recv, which then returns io.EOF.
func (s *Stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.body.Close()
}

func (s *Stream) skip(line string, err error) {
	s.skipped++
	if s.logf != nil {
		if err != nil {
			s.logf("stream: skipping malformed frame %q: %v", line, err)
		} else {
			s.logf("stream: skipping unrecognized line %q", line)
		}
	}
}

func (s *Stream) armWatchdog() {
	if s.idle <= 0 {
		return
	}
	s.watchdog = time.AfterFunc(s.idle, func() {
		s.idleFired.Store(true)
		s.body.Close()
	})
}

func (s *Stream) disarmWatchdog() {
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
}
