package kms

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Encoder switches the display output on and off.
type Encoder struct {
	dev    *Device
	id     uint32
	typ    DisplayType
	number uint32

	// hdmiMonitor is set from the EDID when the connector is probed.
	hdmiMonitor atomic.Bool
}

func newEncoder(dev *Device, d *Display) *Encoder {
	return &Encoder{dev: dev, id: dev.allocID(), typ: d.Type, number: d.Number}
}

func (e *Encoder) ID() uint32        { return e.id }
func (e *Encoder) Type() DisplayType { return e.typ }
func (e *Encoder) Name() string      { return fmt.Sprintf("[ENCODER:%d:%s]", e.id, e.typ) }

// HDMIMonitor reports whether the sink advertised HDMI support. DVI sinks
// get no infoframes.
func (e *Encoder) HDMIMonitor() bool { return e.hdmiMonitor.Load() }

func (e *Encoder) power(ctx context.Context, on bool) {
	if err := e.dev.fw.SetDisplayPower(ctx, e.number, on); err != nil {
		slog.Warn("fkms: set display power failed", "display", e.number, "on", on, "error", err)
	}
}

func (e *Encoder) enable(ctx context.Context) {
	e.power(ctx, true)
	slog.Debug("fkms: encoder enable", "encoder", e.Name())
}

func (e *Encoder) disable(ctx context.Context) {
	e.power(ctx, false)
	slog.Debug("fkms: encoder disable", "encoder", e.Name())
}
