//go:build !linux

package monitor

import (
	"context"
	"errors"

	"github.com/genricoloni/nowpanel/internal/domain"
	"go.uber.org/zap"
)

// MprisMonitor is unavailable off Linux, use the stdin source instead
type MprisMonitor struct {
	logger *zap.Logger
	events chan domain.MediaSnapshot
}

func NewMprisMonitor(logger *zap.Logger) *MprisMonitor {
	events := make(chan domain.MediaSnapshot)
	close(events)
	return &MprisMonitor{logger: logger, events: events}
}

func (m *MprisMonitor) Start(ctx context.Context) error {
	return errors.New("MPRIS monitoring is only supported on Linux, set source to \"stdin\"")
}

func (m *MprisMonitor) Stop(ctx context.Context) error {
	return nil
}

func (m *MprisMonitor) Events() <-chan domain.MediaSnapshot {
	return m.events
}
