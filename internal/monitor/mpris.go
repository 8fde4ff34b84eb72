//go:build linux

package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/nowpanel/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	mprisPrefix      = "org.mpris.MediaPlayer2."
	mprisObjectPath  = "/org/mpris/MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
	propMetadata     = mprisPlayerIface + ".Metadata"
	propStatus       = mprisPlayerIface + ".PlaybackStatus"

	sigPropertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
	sigNameOwnerChanged  = "org.freedesktop.DBus.NameOwnerChanged"

	dropLogInterval = 5 * time.Second
)

// MprisMonitor turns MPRIS player signals on the session bus into snapshots.
// When the consumer falls behind the oldest queued snapshot is dropped, the
// newest always gets through.
type MprisMonitor struct {
	logger *zap.Logger
	dial   func() (DBusClient, error)
	events chan domain.MediaSnapshot

	mu      sync.RWMutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	conn    DBusClient
	// players maps unique bus names to well-known player names
	players map[string]string
	wg      sync.WaitGroup

	emitMu      sync.Mutex
	dropped     int
	lastDropLog time.Time
}

// NewMprisMonitor creates a monitor for the user's session bus
func NewMprisMonitor(logger *zap.Logger) *MprisMonitor {
	return newMprisMonitor(logger, dialSessionBus)
}

func newMprisMonitor(logger *zap.Logger, dial func() (DBusClient, error)) *MprisMonitor {
	return &MprisMonitor{
		logger:  logger.Named("mpris"),
		dial:    dial,
		events:  make(chan domain.MediaSnapshot, 10),
		players: make(map[string]string),
	}
}

// Start connects to the bus and blocks until ctx is cancelled or Stop is called
func (m *MprisMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return errors.New("monitor already stopped")
	}
	if m.running {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running, m.cancel = true, cancel
	m.mu.Unlock()
	defer cancel()

	conn, err := m.dial()
	if err != nil {
		m.reset()
		return fmt.Errorf("session bus connection failed: %w", err)
	}

	if err := subscribe(conn, m.logger); err != nil {
		m.closeConn(conn)
		m.reset()
		return err
	}

	m.mu.Lock()
	if runCtx.Err() != nil {
		// Stopped while dialing
		m.mu.Unlock()
		m.closeConn(conn)
		m.reset()
		return nil
	}
	m.conn = conn
	m.wg.Add(1)
	m.mu.Unlock()

	go m.listen(runCtx)

	m.logger.Info("MPRIS monitor started")
	<-runCtx.Done()
	m.logger.Info("MPRIS monitor stopped")
	return nil
}

// Stop ends monitoring and closes the events channel. A stopped monitor
// cannot be restarted.
func (m *MprisMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
	m.mu.Unlock()

	// Producers must be gone before the channel closes
	waited := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return fmt.Errorf("waiting for MPRIS listener: %w", ctx.Err())
	}
	close(m.events)

	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn != nil {
		m.closeConn(conn)
	}

	m.logger.Info("MPRIS monitor shutdown complete")
	return nil
}

// Events returns the snapshot stream
func (m *MprisMonitor) Events() <-chan domain.MediaSnapshot {
	return m.events
}

func (m *MprisMonitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.cancel = nil
}

func (m *MprisMonitor) closeConn(conn DBusClient) {
	if err := conn.Close(); err != nil {
		m.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
	}
}

// subscribe installs the match rules for player property changes and player
// lifecycle. Losing lifecycle tracking is not fatal.
func subscribe(conn DBusClient, logger *zap.Logger) error {
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisObjectPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("failed to add match signal: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		logger.Warn("Player lifecycle tracking disabled", zap.Error(err))
	}
	return nil
}

// listen reports the players already running, then follows bus signals
func (m *MprisMonitor) listen(ctx context.Context) {
	defer m.wg.Done()

	signals := make(chan *dbus.Signal, 10)
	m.client().Signal(signals)

	if err := m.detectExistingPlayers(); err != nil {
		m.logger.Warn("Failed to detect existing players", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				m.logger.Warn("D-Bus signal channel closed")
				return
			}
			if sig == nil {
				continue
			}
			if sig.Name == sigNameOwnerChanged {
				m.handleNameOwnerChanged(sig)
				continue
			}
			m.handleSignal(sig)
		}
	}
}

func (m *MprisMonitor) client() DBusClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

// detectExistingPlayers registers every MPRIS player on the bus and emits
// its current state
func (m *MprisMonitor) detectExistingPlayers() error {
	conn := m.client()
	names, err := conn.ListNames()
	if err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	found := 0
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		found++

		if owner, err := conn.GetNameOwner(name); err == nil {
			m.trackPlayer(owner, name)
		}
		if err := m.fetchPlayerMetadata(name); err != nil {
			m.logger.Warn("Failed to fetch initial metadata",
				zap.String("player", name),
				zap.Error(err))
		}
	}

	m.logger.Info("Player detection complete", zap.Int("count", found))
	return nil
}

// fetchPlayerMetadata reads the full state of one player and emits it
func (m *MprisMonitor) fetchPlayerMetadata(dest string) error {
	conn := m.client()

	v, err := conn.GetProperty(dest, mprisObjectPath, propMetadata)
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}
	metadata, ok := v.Value().(map[string]dbus.Variant)
	if !ok {
		// Idle players may publish an empty or mistyped value
		m.logger.Debug("Metadata is not a map, skipping", zap.String("player", dest))
		return nil
	}

	v, err = conn.GetProperty(dest, mprisObjectPath, propStatus)
	if err != nil {
		return fmt.Errorf("failed to get playback status: %w", err)
	}
	status, ok := v.Value().(string)
	if !ok {
		return errors.New("invalid playback status format")
	}

	m.emit(snapshotFromMetadata(metadata, status))
	return nil
}

// handleNameOwnerChanged follows players appearing and leaving the bus
func (m *MprisMonitor) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}
	name, ok := sig.Body[0].(string)
	if !ok || !strings.HasPrefix(name, mprisPrefix) {
		return
	}
	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	switch {
	case oldOwner == "" && newOwner != "":
		m.trackPlayer(newOwner, name)
		m.logger.Info("MPRIS player appeared", zap.String("player", name))
		if err := m.fetchPlayerMetadata(name); err != nil {
			m.logger.Warn("Failed to fetch metadata from new player",
				zap.String("player", name),
				zap.Error(err))
		}

	case oldOwner != "" && newOwner == "":
		remaining := m.forgetPlayer(oldOwner)
		m.logger.Info("MPRIS player vanished",
			zap.String("player", name),
			zap.Int("remaining", remaining))
		if remaining == 0 {
			// Nothing left to show, let the panel fall back to placeholders
			m.emit(domain.MediaSnapshot{Status: domain.StatusStopped})
		}

	case oldOwner != "" && newOwner != "":
		m.forgetPlayer(oldOwner)
		m.trackPlayer(newOwner, name)
	}
}

// handleSignal emits a snapshot for a player whose metadata or status changed
func (m *MprisMonitor) handleSignal(sig *dbus.Signal) {
	if sig.Name != sigPropertiesChanged || len(sig.Body) < 2 {
		return
	}
	if iface, ok := sig.Body[0].(string); !ok || iface != mprisPlayerIface {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	metaVar, hasMeta := changed["Metadata"]
	statusVar, hasStatus := changed["PlaybackStatus"]
	if !hasMeta && !hasStatus {
		return
	}

	var (
		metadata map[string]dbus.Variant
		status   string
	)
	if hasMeta {
		if metadata, ok = metaVar.Value().(map[string]dbus.Variant); !ok {
			m.logger.Warn("Invalid metadata format in signal, ignoring")
			return
		}
	}
	if hasStatus {
		if status, ok = statusVar.Value().(string); !ok {
			m.logger.Warn("Invalid playback status format in signal, ignoring")
			return
		}
	}

	// A snapshot is always complete, so fill in whatever the signal omitted
	conn := m.client()
	if !hasStatus {
		if v, err := conn.GetProperty(sig.Sender, mprisObjectPath, propStatus); err == nil {
			status, _ = v.Value().(string)
		}
	}
	if !hasMeta {
		if v, err := conn.GetProperty(sig.Sender, mprisObjectPath, propMetadata); err == nil {
			metadata, _ = v.Value().(map[string]dbus.Variant)
		}
	}

	snap := snapshotFromMetadata(metadata, status)
	m.logger.Debug("Player properties changed",
		zap.String("player", m.playerName(sig.Sender)),
		zap.String("title", snap.Title),
		zap.String("status", string(snap.Status)))
	m.emit(snap)
}

// emit queues snap, evicting the oldest queued snapshot when the buffer is full
func (m *MprisMonitor) emit(snap domain.MediaSnapshot) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	select {
	case m.events <- snap:
		return
	default:
	}

	select {
	case <-m.events:
		m.dropped++
	default:
	}
	select {
	case m.events <- snap:
	default:
		m.dropped++
	}

	if now := time.Now(); now.Sub(m.lastDropLog) >= dropLogInterval {
		m.logger.Warn("Events channel full, dropped stale snapshots", zap.Int("dropped", m.dropped))
		m.lastDropLog = now
		m.dropped = 0
	}
}

func (m *MprisMonitor) trackPlayer(unique, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[unique] = name
}

// forgetPlayer removes a player and returns how many remain
func (m *MprisMonitor) forgetPlayer(unique string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, unique)
	return len(m.players)
}

// playerName resolves a unique bus name, falling back to the name itself
func (m *MprisMonitor) playerName(unique string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name, ok := m.players[unique]; ok {
		return name
	}
	return unique
}

// snapshotFromMetadata maps MPRIS metadata to a snapshot. A nil map yields a
// snapshot carrying only the status.
func snapshotFromMetadata(metadata map[string]dbus.Variant, status string) domain.MediaSnapshot {
	snap := domain.MediaSnapshot{Status: parseStatus(status)}

	snap.Title = stringValue(metadata, "xesam:title")
	snap.Album = stringValue(metadata, "xesam:album")
	snap.Cover = stringValue(metadata, "mpris:artUrl")

	if v, ok := metadata["xesam:artist"]; ok {
		switch artists := v.Value().(type) {
		case []string:
			snap.Artist = strings.Join(artists, ", ")
		case string:
			// Non-compliant players send a plain string
			snap.Artist = artists
		}
	}
	return snap
}

func stringValue(metadata map[string]dbus.Variant, key string) string {
	v, ok := metadata[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

// parseStatus maps a PlaybackStatus value, unknown values are left empty
func parseStatus(status string) domain.PlayerStatus {
	switch status {
	case "Playing":
		return domain.StatusPlaying
	case "Paused":
		return domain.StatusPaused
	case "Stopped":
		return domain.StatusStopped
	default:
		return ""
	}
}
