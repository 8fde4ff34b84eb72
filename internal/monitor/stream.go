package monitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/genricoloni/nowpanel/internal/domain"
	"go.uber.org/zap"
)

// EventMediaUpdate is the only event name the stream source reacts to
const EventMediaUpdate = "media-update"

// maxLineSize bounds one NDJSON line, inline data: covers can be large
const maxLineSize = 8 << 20

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// JSONStreamMonitor reads one JSON event per line from a stream, either
// {"event":"media-update","payload":{...}} or the bare payload.
// Sends block so every decoded snapshot reaches the consumer in order.
type JSONStreamMonitor struct {
	logger *zap.Logger
	input  io.Reader
	events chan domain.MediaSnapshot

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewStdinMonitor reads events from the process standard input
func NewStdinMonitor(logger *zap.Logger) *JSONStreamMonitor {
	return NewJSONStreamMonitor(logger, os.Stdin)
}

func NewJSONStreamMonitor(logger *zap.Logger, input io.Reader) *JSONStreamMonitor {
	return &JSONStreamMonitor{
		logger: logger.Named("stream"),
		input:  input,
		events: make(chan domain.MediaSnapshot, 10),
		done:   make(chan struct{}),
	}
}

// Start reads until the stream ends, ctx is cancelled or Stop is called.
// The events channel is closed when reading ends.
func (m *JSONStreamMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("stream monitor already started")
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	defer cancel()
	defer close(m.done)
	defer close(m.events)

	m.logger.Info("Reading media events from stream")

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	// The scanner cannot be interrupted, so it runs apart from the send loop
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(m.input)
		sc.Buffer(make([]byte, 64*1024), maxLineSize)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-runCtx.Done():
				scanErr <- nil
				return
			}
		}
		scanErr <- sc.Err()
	}()

	lineNo := 0
	for {
		select {
		case <-runCtx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("reading event stream: %w", err)
				}
				m.logger.Info("Event stream ended")
				return nil
			}
			lineNo++

			snap, ok, err := decodeEvent(line)
			if err != nil {
				m.logger.Warn("Skipping undecodable event", zap.Int("line", lineNo), zap.Error(err))
				continue
			}
			if !ok {
				continue
			}

			select {
			case m.events <- snap:
			case <-runCtx.Done():
				return nil
			}
		}
	}
}

// Stop cancels reading and waits for Start to return
func (m *JSONStreamMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	started, cancel := m.started, m.cancel
	m.mu.Unlock()

	if !started {
		return nil
	}
	cancel()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *JSONStreamMonitor) Events() <-chan domain.MediaSnapshot {
	return m.events
}

// decodeEvent parses one line. ok is false for blank lines and for events
// other than media-update.
func decodeEvent(line []byte) (snap domain.MediaSnapshot, ok bool, err error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return snap, false, nil
	}

	if line[0] != '{' {
		return snap, false, errors.New("event is not a JSON object")
	}

	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return snap, false, err
	}

	raw := json.RawMessage(line)
	if env.Event != "" || env.Payload != nil {
		if env.Event != EventMediaUpdate {
			return snap, false, nil
		}
		raw = env.Payload
	}

	// Fields are decoded one by one so a mistyped field only blanks itself
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return snap, false, fmt.Errorf("invalid payload: %w", err)
	}

	return domain.MediaSnapshot{
		Title:  stringField(fields, "title"),
		Artist: stringField(fields, "artist"),
		Album:  stringField(fields, "album"),
		Cover:  stringField(fields, "cover"),
		Status: parseStreamStatus(stringField(fields, "status")),
	}, true, nil
}

// stringField returns the string at key. Missing, null and non-string
// values are all empty.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func parseStreamStatus(s string) domain.PlayerStatus {
	switch domain.PlayerStatus(s) {
	case domain.StatusPlaying, domain.StatusPaused, domain.StatusStopped:
		return domain.PlayerStatus(s)
	}
	return ""
}
