//go:build linux

package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/genricoloni/nowpanel/internal/domain"
	"github.com/genricoloni/nowpanel/internal/monitor/mocks"
	"github.com/godbus/dbus/v5"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const spotify = "org.mpris.MediaPlayer2.spotify"

// idleBus answers every property read with an error
type idleBus struct{}

func (idleBus) Close() error                             { return nil }
func (idleBus) AddMatchSignal(...dbus.MatchOption) error { return nil }
func (idleBus) Signal(chan<- *dbus.Signal)               {}
func (idleBus) ListNames() ([]string, error)             { return nil, nil }
func (idleBus) GetNameOwner(string) (string, error)      { return "", errors.New("idle") }
func (idleBus) GetProperty(string, string, string) (dbus.Variant, error) {
	return dbus.MakeVariant(""), errors.New("idle")
}

func newTestMonitor(conn DBusClient) *MprisMonitor {
	mon := newMprisMonitor(zap.NewNop(), func() (DBusClient, error) { return conn, nil })
	mon.conn = conn
	return mon
}

func propertiesChanged(sender string, props map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Name:   sigPropertiesChanged,
		Sender: sender,
		Body:   []interface{}{mprisPlayerIface, props, []string{}},
	}
}

func receive(t *testing.T, mon *MprisMonitor) domain.MediaSnapshot {
	t.Helper()
	select {
	case snap := <-mon.Events():
		return snap
	case <-time.After(time.Second):
		t.Fatal("Timeout: snapshot was not emitted")
	}
	return domain.MediaSnapshot{}
}

func TestFetchPlayerMetadata(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(*mocks.MockDBusClient)
		expectError bool
		expected    *domain.MediaSnapshot
	}{
		{
			name: "Full Metadata",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(spotify, mprisObjectPath, propMetadata).
					Return(dbus.MakeVariant(map[string]dbus.Variant{
						"xesam:title":  dbus.MakeVariant("Under Pressure"),
						"xesam:artist": dbus.MakeVariant([]string{"Queen", "David Bowie"}),
						"xesam:album":  dbus.MakeVariant("Hot Space"),
						"mpris:artUrl": dbus.MakeVariant("https://i.scdn.co/image/abc"),
					}), nil)
				m.EXPECT().GetProperty(spotify, mprisObjectPath, propStatus).
					Return(dbus.MakeVariant("Playing"), nil)
			},
			expected: &domain.MediaSnapshot{
				Title:  "Under Pressure",
				Artist: "Queen, David Bowie",
				Album:  "Hot Space",
				Cover:  "https://i.scdn.co/image/abc",
				Status: domain.StatusPlaying,
			},
		},
		{
			name: "Bus Error",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(spotify, mprisObjectPath, propMetadata).
					Return(dbus.Variant{}, errors.New("connection timeout"))
			},
			expectError: true,
		},
		{
			name: "Metadata Is Not A Map",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(spotify, mprisObjectPath, propMetadata).
					Return(dbus.MakeVariant(12345), nil)
			},
		},
		{
			name: "Status Has Wrong Type",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(spotify, mprisObjectPath, propMetadata).
					Return(dbus.MakeVariant(map[string]dbus.Variant{}), nil)
				m.EXPECT().GetProperty(spotify, mprisObjectPath, propStatus).
					Return(dbus.MakeVariant(7), nil)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			client := mocks.NewMockDBusClient(ctrl)
			tt.setupMock(client)

			mon := newTestMonitor(client)
			err := mon.fetchPlayerMetadata(spotify)

			if tt.expectError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}

			select {
			case snap := <-mon.Events():
				if tt.expected == nil {
					t.Errorf("Unexpected snapshot emitted: %+v", snap)
				} else if snap != *tt.expected {
					t.Errorf("Snapshot mismatch:\nwant %+v\ngot  %+v", *tt.expected, snap)
				}
			default:
				if tt.expected != nil {
					t.Error("Expected snapshot was not emitted")
				}
			}
		})
	}
}

func TestDetectExistingPlayers(t *testing.T) {
	tests := []struct {
		name             string
		setupMock        func(*mocks.MockDBusClient)
		expectError      bool
		expectedEvents   int
		expectedMappings map[string]string
	}{
		{
			name: "Spotify And VLC",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames().Return([]string{
					"org.freedesktop.DBus",
					spotify,
					"org.mpris.MediaPlayer2.vlc",
					"com.example.OtherApp",
				}, nil)
				m.EXPECT().GetNameOwner(spotify).Return(":1.100", nil)
				m.EXPECT().GetNameOwner("org.mpris.MediaPlayer2.vlc").Return(":1.200", nil)

				m.EXPECT().GetProperty(spotify, mprisObjectPath, propMetadata).
					Return(dbus.MakeVariant(map[string]dbus.Variant{"xesam:title": dbus.MakeVariant("Song A")}), nil)
				m.EXPECT().GetProperty(spotify, mprisObjectPath, propStatus).
					Return(dbus.MakeVariant("Playing"), nil)
				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.vlc", mprisObjectPath, propMetadata).
					Return(dbus.MakeVariant(map[string]dbus.Variant{"xesam:title": dbus.MakeVariant("Video B")}), nil)
				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.vlc", mprisObjectPath, propStatus).
					Return(dbus.MakeVariant("Paused"), nil)
			},
			expectedEvents: 2,
			expectedMappings: map[string]string{
				":1.100": spotify,
				":1.200": "org.mpris.MediaPlayer2.vlc",
			},
		},
		{
			name: "ListNames Fails",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames().Return(nil, errors.New("bus error"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			client := mocks.NewMockDBusClient(ctrl)
			tt.setupMock(client)

			mon := newTestMonitor(client)
			err := mon.detectExistingPlayers()

			if tt.expectError != (err != nil) {
				t.Errorf("expectError=%v, got %v", tt.expectError, err)
			}
			if len(mon.players) != len(tt.expectedMappings) {
				t.Errorf("Mapping count mismatch: want %d, got %d", len(tt.expectedMappings), len(mon.players))
			}
			for unique, name := range tt.expectedMappings {
				if mon.players[unique] != name {
					t.Errorf("Mapping mismatch for %s: want %s, got %s", unique, name, mon.players[unique])
				}
			}
			if got := len(mon.Events()); got != tt.expectedEvents {
				t.Errorf("Expected %d snapshots, got %d", tt.expectedEvents, got)
			}
		})
	}
}

func TestHandleSignal(t *testing.T) {
	mon := newTestMonitor(idleBus{})
	mon.players[":1.100"] = spotify

	mon.handleSignal(propertiesChanged(":1.100", map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
			"xesam:title":  dbus.MakeVariant("Bohemian Rhapsody"),
			"xesam:artist": dbus.MakeVariant([]string{"Queen"}),
			"mpris:artUrl": dbus.MakeVariant("file:///tmp/cover.png"),
		}),
		"PlaybackStatus": dbus.MakeVariant("Playing"),
	}))

	snap := receive(t, mon)
	want := domain.MediaSnapshot{
		Title:  "Bohemian Rhapsody",
		Artist: "Queen",
		Cover:  "file:///tmp/cover.png",
		Status: domain.StatusPlaying,
	}
	if snap != want {
		t.Errorf("want %+v, got %+v", want, snap)
	}
}

func TestHandleSignal_Ignored(t *testing.T) {
	tests := []struct {
		name   string
		signal *dbus.Signal
	}{
		{
			name:   "Wrong Signal Name",
			signal: &dbus.Signal{Name: "org.freedesktop.DBus.SomeOtherSignal"},
		},
		{
			name: "Wrong Interface",
			signal: &dbus.Signal{
				Name: sigPropertiesChanged,
				Body: []interface{}{"org.mpris.MediaPlayer2", map[string]dbus.Variant{}, []string{}},
			},
		},
		{
			name:   "Short Body",
			signal: &dbus.Signal{Name: sigPropertiesChanged, Body: []interface{}{mprisPlayerIface}},
		},
		{
			name:   "Unrelated Property",
			signal: propertiesChanged(":1.1", map[string]dbus.Variant{"Volume": dbus.MakeVariant(0.5)}),
		},
		{
			name:   "Metadata Is Not A Map",
			signal: propertiesChanged(":1.1", map[string]dbus.Variant{"Metadata": dbus.MakeVariant(12345)}),
		},
		{
			name: "Status Is Not A String",
			signal: propertiesChanged(":1.1", map[string]dbus.Variant{
				"PlaybackStatus": dbus.MakeVariant([]string{"Playing"}),
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon := newTestMonitor(idleBus{})
			mon.handleSignal(tt.signal)

			if n := len(mon.Events()); n != 0 {
				t.Errorf("expected no snapshot, got %d", n)
			}
		})
	}
}

func TestHandleSignal_FillsMissingProperties(t *testing.T) {
	tests := []struct {
		name      string
		props     map[string]dbus.Variant
		setupMock func(*mocks.MockDBusClient)
		expected  domain.MediaSnapshot
	}{
		{
			name:  "Status Change Reads Metadata",
			props: map[string]dbus.Variant{"PlaybackStatus": dbus.MakeVariant("Paused")},
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(":1.7", mprisObjectPath, propMetadata).
					Return(dbus.MakeVariant(map[string]dbus.Variant{
						"xesam:title":  dbus.MakeVariant("Teardrop"),
						"xesam:artist": dbus.MakeVariant("Massive Attack"),
					}), nil)
			},
			expected: domain.MediaSnapshot{Title: "Teardrop", Artist: "Massive Attack", Status: domain.StatusPaused},
		},
		{
			name: "Metadata Change Reads Status",
			props: map[string]dbus.Variant{
				"Metadata": dbus.MakeVariant(map[string]dbus.Variant{"xesam:title": dbus.MakeVariant("Angel")}),
			},
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(":1.7", mprisObjectPath, propStatus).
					Return(dbus.MakeVariant("Stopped"), nil)
			},
			expected: domain.MediaSnapshot{Title: "Angel", Status: domain.StatusStopped},
		},
		{
			name:  "Failed Read Leaves Fields Empty",
			props: map[string]dbus.Variant{"PlaybackStatus": dbus.MakeVariant("Playing")},
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(":1.7", mprisObjectPath, propMetadata).
					Return(dbus.Variant{}, errors.New("gone"))
			},
			expected: domain.MediaSnapshot{Status: domain.StatusPlaying},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			client := mocks.NewMockDBusClient(ctrl)
			tt.setupMock(client)

			mon := newTestMonitor(client)
			mon.handleSignal(propertiesChanged(":1.7", tt.props))

			if snap := receive(t, mon); snap != tt.expected {
				t.Errorf("want %+v, got %+v", tt.expected, snap)
			}
		})
	}
}

func TestHandleNameOwnerChanged(t *testing.T) {
	tests := []struct {
		name          string
		existing      map[string]string
		body          []interface{}
		expected      map[string]string
		expectStopped bool
	}{
		{
			name:     "Player Appears",
			existing: map[string]string{},
			body:     []interface{}{spotify, "", ":1.50"},
			expected: map[string]string{":1.50": spotify},
		},
		{
			name:          "Last Player Vanishes",
			existing:      map[string]string{":1.50": spotify},
			body:          []interface{}{spotify, ":1.50", ""},
			expected:      map[string]string{},
			expectStopped: true,
		},
		{
			name:     "One Of Two Players Vanishes",
			existing: map[string]string{":1.50": spotify, ":1.60": "org.mpris.MediaPlayer2.vlc"},
			body:     []interface{}{spotify, ":1.50", ""},
			expected: map[string]string{":1.60": "org.mpris.MediaPlayer2.vlc"},
		},
		{
			name:     "Ownership Transfer",
			existing: map[string]string{":1.50": spotify},
			body:     []interface{}{spotify, ":1.50", ":1.51"},
			expected: map[string]string{":1.51": spotify},
		},
		{
			name:     "Non-MPRIS Service Ignored",
			existing: map[string]string{},
			body:     []interface{}{"com.example.service", "", ":1.99"},
			expected: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon := newTestMonitor(idleBus{})
			for k, v := range tt.existing {
				mon.players[k] = v
			}

			mon.handleNameOwnerChanged(&dbus.Signal{Name: sigNameOwnerChanged, Body: tt.body})

			if len(mon.players) != len(tt.expected) {
				t.Fatalf("want players %v, got %v", tt.expected, mon.players)
			}
			for k, v := range tt.expected {
				if mon.players[k] != v {
					t.Errorf("want %s -> %s, got %s", k, v, mon.players[k])
				}
			}

			if tt.expectStopped {
				if snap := receive(t, mon); snap != (domain.MediaSnapshot{Status: domain.StatusStopped}) {
					t.Errorf("expected empty stopped snapshot, got %+v", snap)
				}
			} else if n := len(mon.Events()); n != 0 {
				t.Errorf("expected no snapshot, got %d", n)
			}
		})
	}
}

func TestEmit_KeepsNewest(t *testing.T) {
	mon := newTestMonitor(idleBus{})
	capacity := cap(mon.events)

	for i := 0; i <= capacity; i++ {
		mon.emit(domain.MediaSnapshot{Title: string(rune('a' + i))})
	}

	if got := len(mon.Events()); got != capacity {
		t.Fatalf("expected a full buffer of %d, got %d", capacity, got)
	}
	first := <-mon.Events()
	if first.Title != "b" {
		t.Errorf("expected the oldest snapshot to be dropped, head is %q", first.Title)
	}
	var last domain.MediaSnapshot
	for len(mon.Events()) > 0 {
		last = <-mon.Events()
	}
	if want := string(rune('a' + capacity)); last.Title != want {
		t.Errorf("expected newest snapshot %q at the tail, got %q", want, last.Title)
	}
}

func TestPlayerName(t *testing.T) {
	mon := newTestMonitor(idleBus{})
	mon.players[":1.100"] = spotify

	if got := mon.playerName(":1.100"); got != spotify {
		t.Errorf("expected %s, got %s", spotify, got)
	}
	if got := mon.playerName(":1.999"); got != ":1.999" {
		t.Errorf("expected fallback to unique name, got %s", got)
	}
}

func TestMprisMonitor_StartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockDBusClient(ctrl)

	listening := make(chan struct{})
	client.EXPECT().AddMatchSignal(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	client.EXPECT().AddMatchSignal(gomock.Any(), gomock.Any()).Return(errors.New("denied"))
	client.EXPECT().Signal(gomock.Any())
	client.EXPECT().ListNames().DoAndReturn(func() ([]string, error) {
		close(listening)
		return nil, nil
	})
	client.EXPECT().Close().Return(nil)

	mon := newMprisMonitor(zap.NewNop(), func() (DBusClient, error) { return client, nil })

	started := make(chan error, 1)
	go func() { started <- mon.Start(context.Background()) }()

	select {
	case <-listening:
	case <-time.After(time.Second):
		t.Fatal("Timeout: monitor never started listening")
	}

	if err := mon.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := <-started; err != nil {
		t.Errorf("Start should return nil after Stop, got %v", err)
	}
	if _, open := <-mon.Events(); open {
		t.Error("events channel should be closed after Stop")
	}
	if err := mon.Start(context.Background()); err == nil {
		t.Error("expected error restarting a stopped monitor")
	}
}

func TestMprisMonitor_StartErrors(t *testing.T) {
	t.Run("Dial Fails", func(t *testing.T) {
		mon := newMprisMonitor(zap.NewNop(), func() (DBusClient, error) {
			return nil, errors.New("no session bus")
		})
		if err := mon.Start(context.Background()); err == nil {
			t.Fatal("expected dial error")
		}
		if mon.running {
			t.Error("monitor should not be running after a failed start")
		}
	})

	t.Run("Match Rule Rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := mocks.NewMockDBusClient(ctrl)
		client.EXPECT().AddMatchSignal(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("denied"))
		client.EXPECT().Close().Return(nil)

		mon := newMprisMonitor(zap.NewNop(), func() (DBusClient, error) { return client, nil })
		if err := mon.Start(context.Background()); err == nil {
			t.Fatal("expected match rule error")
		}
	})
}
