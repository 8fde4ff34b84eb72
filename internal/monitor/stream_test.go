package monitor

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/genricoloni/nowpanel/internal/domain"
	"go.uber.org/zap"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		expectOK  bool
		expectErr bool
		expected  domain.MediaSnapshot
	}{
		{
			name:     "Envelope",
			line:     `{"event":"media-update","payload":{"title":"Song A","artist":"Artist X","cover":null}}`,
			expectOK: true,
			expected: domain.MediaSnapshot{Title: "Song A", Artist: "Artist X"},
		},
		{
			name:     "Bare Payload",
			line:     `{"title":"Hello","artist":"Adele","cover":"https://img.example/hello.jpg","status":"Playing"}`,
			expectOK: true,
			expected: domain.MediaSnapshot{
				Title:  "Hello",
				Artist: "Adele",
				Cover:  "https://img.example/hello.jpg",
				Status: domain.StatusPlaying,
			},
		},
		{
			name:     "Missing And Mistyped Fields",
			line:     `{"title":42,"artist":null,"status":"Rewinding"}`,
			expectOK: true,
		},
		{
			name:     "Empty Payload",
			line:     `{"event":"media-update","payload":{}}`,
			expectOK: true,
		},
		{
			name: "Other Event Ignored",
			line: `{"event":"volume-change","payload":{"volume":3}}`,
		},
		{
			name: "Blank Line",
			line: "   ",
		},
		{
			name:      "Not JSON",
			line:      "title=Song A",
			expectErr: true,
		},
		{
			name:      "Not An Object",
			line:      `["Song A"]`,
			expectErr: true,
		},
		{
			name:      "Truncated",
			line:      `{"title":"Song`,
			expectErr: true,
		},
		{
			name:      "Payload Not An Object",
			line:      `{"event":"media-update","payload":"Song A"}`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, ok, err := decodeEvent([]byte(tt.line))

			if tt.expectErr != (err != nil) {
				t.Fatalf("expectErr=%v, got %v", tt.expectErr, err)
			}
			if ok != tt.expectOK {
				t.Fatalf("expected ok=%v, got %v", tt.expectOK, ok)
			}
			if snap != tt.expected {
				t.Errorf("want %+v, got %+v", tt.expected, snap)
			}
		})
	}
}

func collect(t *testing.T, events <-chan domain.MediaSnapshot) []domain.MediaSnapshot {
	t.Helper()
	var got []domain.MediaSnapshot
	timeout := time.After(time.Second)
	for {
		select {
		case snap, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, snap)
		case <-timeout:
			t.Fatal("Timeout: events channel was not closed")
		}
	}
}

func TestJSONStreamMonitor_ReadsUntilEOF(t *testing.T) {
	input := strings.Join([]string{
		`{"event":"media-update","payload":{"title":"One","artist":"A"}}`,
		`garbage`,
		``,
		`{"event":"heartbeat"}`,
		`{"title":"Two","artist":"B"}`,
	}, "\n")

	mon := NewJSONStreamMonitor(zap.NewNop(), strings.NewReader(input))

	errCh := make(chan error, 1)
	go func() { errCh <- mon.Start(context.Background()) }()

	got := collect(t, mon.Events())
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 snapshots, got %d: %+v", len(got), got)
	}
	if got[0].Title != "One" || got[1].Title != "Two" {
		t.Errorf("snapshots out of order: %+v", got)
	}

	if err := mon.Stop(context.Background()); err != nil {
		t.Errorf("stop after EOF failed: %v", err)
	}
	if err := mon.Start(context.Background()); err == nil {
		t.Error("expected error on second start")
	}
}

func TestJSONStreamMonitor_StopWhileBlocked(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	mon := NewJSONStreamMonitor(zap.NewNop(), pr)
	errCh := make(chan error, 1)
	go func() { errCh <- mon.Start(context.Background()) }()

	if _, err := io.WriteString(pw, `{"title":"Live","artist":"Band"}`+"\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	select {
	case snap := <-mon.Events():
		if snap.Title != "Live" {
			t.Errorf("expected Live, got %q", snap.Title)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout: snapshot not delivered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := mon.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Start should return nil on stop, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestJSONStreamMonitor_ReadError(t *testing.T) {
	mon := NewJSONStreamMonitor(zap.NewNop(), failingReader{})
	if err := mon.Start(context.Background()); err == nil {
		t.Fatal("expected read error")
	}
	if _, open := <-mon.Events(); open {
		t.Error("events channel should be closed")
	}
}

func TestJSONStreamMonitor_StopBeforeStart(t *testing.T) {
	mon := NewJSONStreamMonitor(zap.NewNop(), strings.NewReader(""))
	if err := mon.Stop(context.Background()); err != nil {
		t.Errorf("expected no-op stop, got %v", err)
	}
}
