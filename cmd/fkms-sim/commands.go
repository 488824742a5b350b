package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/tinyrange/fkms/internal/chipset"
	"github.com/tinyrange/fkms/internal/config"
	"github.com/tinyrange/fkms/internal/format"
	"github.com/tinyrange/fkms/internal/kms"
	"github.com/tinyrange/fkms/internal/mailbox"
	"github.com/tinyrange/fkms/internal/modes"
	"github.com/tinyrange/fkms/internal/smi"
	"github.com/tinyrange/fkms/internal/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

func runModes(ctx context.Context, cfg config.Config, hw bool) error {
	p, err := newPlatform(cfg, hw)
	if err != nil {
		return err
	}
	defer p.Close()
	dev, err := p.bind(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer dev.Unbind()

	t := newTable(os.Stdout, "DISPLAY", "CONNECTOR", "MODE", "HZ", "CLOCK", "STATUS")
	for _, disp := range dev.Displays() {
		conn := disp.Connector
		conn.Probe(ctx)
		preferred, _ := conn.PreferredMode()
		name := fmt.Sprintf("%d %s", disp.Number, kms.DisplayName(disp.Number))
		for _, m := range conn.ProbedModes() {
			mode, status := m.Name, m.Status.String()
			if m == preferred {
				mode = bold(mode + "*")
			}
			if m.Status != modes.StatusOK {
				status = dim(status)
			}
			t.add(name, conn.Type().String(), mode,
				fmt.Sprint(m.VRefresh()), fmt.Sprintf("%d kHz", m.Clock), status)
		}
		if disp.Encoder.HDMIMonitor() {
			slog.Info("fkms-sim: HDMI sink", "display", disp.String(), "edid_bytes", len(conn.EDID()))
		}
	}
	return t.write(os.Stdout)
}

// framebuffers returns two w x h XRGB8888 buffers at distinct bus
// addresses.
func framebuffers(w, h uint32) [2]*kms.Framebuffer {
	var fbs [2]*kms.Framebuffer
	for i := range fbs {
		fbs[i] = &kms.Framebuffer{
			Width:   w,
			Height:  h,
			Format:  format.DRM_FORMAT_XRGB8888,
			Pitches: [4]uint32{w * 4},
			Addr:    0x3c000000 + uint32(i)*0x01000000,
		}
	}
	return fbs
}

func runFlip(ctx context.Context, cfg config.Config, frames int, interval time.Duration) error {
	p, err := newPlatform(cfg, false)
	if err != nil {
		return err
	}
	defer p.Close()

	var events atomic.Int64
	dev, err := p.bind(ctx, cfg, func(*kms.Event) { events.Add(1) })
	if err != nil {
		return err
	}
	defer dev.Unbind()

	// Enable every display in one commit.
	s := dev.NewAtomicState()
	buffers := make(map[*kms.Display][2]*kms.Framebuffer)
	for _, disp := range dev.Displays() {
		conn := disp.Connector
		conn.Probe(ctx)
		mode, ok := conn.PreferredMode()
		if !ok {
			slog.Warn("fkms-sim: no usable mode, skipping", "display", disp.String())
			continue
		}
		fbs := framebuffers(uint32(mode.HDisplay), uint32(mode.VDisplay))
		buffers[disp] = fbs

		s.ConnectorState(conn).Crtc = disp.Crtc
		cs := s.CrtcState(disp.Crtc)
		cs.Active = true
		cs.Mode = mode
		ps := s.PlaneState(disp.Primary())
		ps.Crtc = disp.Crtc
		ps.FB = fbs[0]
		ps.SrcW, ps.SrcH = fbs[0].Width<<16, fbs[0].Height<<16
		ps.CrtcW, ps.CrtcH = fbs[0].Width, fbs[0].Height
		slog.Info("fkms-sim: modeset", "display", disp.String(), "mode", mode.Name, "refresh", mode.VRefresh())
	}
	if len(buffers) == 0 {
		return errors.New("no display has a usable mode")
	}
	if err := dev.Commit(ctx, s, kms.CommitAllowModeset); err != nil {
		return fmt.Errorf("modeset: %w", err)
	}

	total := int64(frames * len(buffers))
	bar := progressbar.DefaultSilent(total)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		bar = progressbar.Default(total, "flipping")
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	ticks, stopTicks := context.WithCancel(gctx)
	defer stopTicks()
	g.Go(func() error { return vblankLoop(ticks, p.cs, interval) })

	flippers, fctx := errgroup.WithContext(gctx)
	for disp, fbs := range buffers {
		flippers.Go(func() error {
			for i := 1; i <= frames; i++ {
				ev := kms.NewEvent(uint64(i))
				if err := dev.PageFlip(fctx, disp.Crtc, fbs[i%2], ev, 0); err != nil {
					return fmt.Errorf("%s: flip %d: %w", disp, i, err)
				}
				select {
				case <-ev.Done():
				case <-fctx.Done():
					return fctx.Err()
				}
				bar.Add(1)
			}
			return nil
		})
	}
	err = flippers.Wait()
	stopTicks()
	if gerr := g.Wait(); err == nil {
		err = gerr
	}
	bar.Finish()
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	off := dev.NewAtomicState()
	for disp := range buffers {
		off.CrtcState(disp.Crtc).Active = false
	}
	if err := dev.Commit(ctx, off, kms.CommitAllowModeset); err != nil {
		return fmt.Errorf("disable: %w", err)
	}

	handled, spurious := p.cs.Lines().Stats(p.irq)
	t := newTable(os.Stdout, "DISPLAY", "VBLANKS", "FIRMWARE FRAMES", "FLIPS/S")
	for _, disp := range dev.Displays() {
		count, _ := disp.Crtc.VblankCount()
		rate := float64(frames) / elapsed.Seconds()
		t.add(disp.String(), fmt.Sprint(count), fmt.Sprint(p.emu.Frames(disp.Number)), fmt.Sprintf("%.1f", rate))
	}
	if err := t.write(os.Stdout); err != nil {
		return err
	}
	slog.Info("fkms-sim: done", "events", events.Load(), "interrupts", handled, "spurious", spurious, "elapsed", elapsed)
	return nil
}

func vblankLoop(ctx context.Context, cs *chipset.Chipset, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := cs.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("vblank: %w", err)
			}
		}
	}
}

func runRegs(cfg config.Config, hw bool) error {
	p, err := newPlatform(cfg, hw)
	if err != nil {
		return err
	}
	defer p.Close()

	t := newTable(os.Stdout, "REGISTER", "OFFSET", "VALUE", "")
	for _, r := range []struct {
		name   string
		offset uint32
	}{
		{"SMICS", smi.SMICS},
		{"SMIDSW0", smi.SMIDSW0},
		{"SMIDSW1", smi.SMIDSW1},
	} {
		v := p.Registers.Read32(r.offset)
		var note string
		switch {
		case r.offset == smi.SMICS && v&smi.SMICS_INTERRUPTS != 0:
			note = bold("interrupt pending")
		case r.offset != smi.SMICS && smi.IsNewProtocol(v):
			note = "per-display doorbell"
		}
		t.add(r.name, fmt.Sprintf("%#04x", r.offset), fmt.Sprintf("%#08x", v), note)
	}
	return t.write(os.Stdout)
}

func runTrace(path string) error {
	t := newTable(os.Stdout, "TIME", "KIND", "SOURCE", "BYTES", "TAGS")
	var first time.Time
	err := trace.EachFile(path, func(e trace.Entry) error {
		if first.IsZero() {
			first = e.Time
		}
		var detail string
		switch e.Kind {
		case trace.KindRequest, trace.KindResponse:
			var tags []string
			if err := mailbox.WalkRequest(e.Data, func(rt mailbox.RequestTag) error {
				tags = append(tags, rt.Tag.String())
				return nil
			}); err != nil {
				detail = dim(err.Error())
			} else {
				detail = strings.Join(tags, ",")
			}
			if e.Kind == trace.KindResponse && len(e.Data) >= 8 {
				detail += fmt.Sprintf(" status=%#x", binary.LittleEndian.Uint32(e.Data[4:8]))
			}
		default:
			detail = string(e.Data)
		}
		t.add(e.Time.Sub(first).String(), e.Kind.String(), e.Source, fmt.Sprint(len(e.Data)), detail)
		return nil
	})
	if err != nil {
		return fmt.Errorf("read trace: %w", err)
	}
	return t.write(os.Stdout)
}
