package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinyrange/fkms/internal/chipset"
	"github.com/tinyrange/fkms/internal/config"
	"github.com/tinyrange/fkms/internal/devices/fwemu"
	"github.com/tinyrange/fkms/internal/kms"
	"github.com/tinyrange/fkms/internal/mailbox"
	"github.com/tinyrange/fkms/internal/smi"
)

// platform is what a command binds the device to. emu and cs are nil on
// real hardware.
type platform struct {
	kms.Platform

	emu *fwemu.Emulator
	cs  *chipset.Chipset
	irq uint8

	closers []func() error
}

func newPlatform(cfg config.Config, hw bool) (*platform, error) {
	if hw {
		return hardwarePlatform(cfg)
	}
	return emulatedPlatform(cfg)
}

func emulatedPlatform(cfg config.Config) (*platform, error) {
	fw, err := cfg.Emulator.Firmware(cfg.Registers.Base)
	if err != nil {
		return nil, err
	}

	b := chipset.NewBuilder()
	emu := fwemu.New(fw, b.Lines().AllocateLine(cfg.IRQ))
	if err := b.RegisterDevice("fwemu", emu); err != nil {
		return nil, fmt.Errorf("register emulator: %w", err)
	}
	cs, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build chipset: %w", err)
	}
	if err := cs.Start(); err != nil {
		return nil, fmt.Errorf("start chipset: %w", err)
	}

	slog.Debug("fkms-sim: emulated firmware", "protocol", fw.Protocol, "displays", len(fw.Displays),
		"base", fmt.Sprintf("%#x", emu.Base()))
	return &platform{
		Platform: kms.Platform{
			Firmware:  emu,
			Registers: cs.Window(emu.Base()),
			IRQ:       cs.Lines().Line(cfg.IRQ),
		},
		emu:     emu,
		cs:      cs,
		irq:     cfg.IRQ,
		closers: []func() error{cs.Stop},
	}, nil
}

// hardwarePlatform talks to the firmware directly. Userspace cannot take
// the SMI interrupt, so vblank is never signalled.
func hardwarePlatform(cfg config.Config) (*platform, error) {
	vcio, err := mailbox.OpenVCIO(mailbox.DefaultVCIOPath)
	if err != nil {
		return nil, err
	}
	regs, err := smi.Map(cfg.Registers.Base, cfg.Registers.Size)
	if err != nil {
		vcio.Close()
		return nil, err
	}
	return &platform{
		Platform: kms.Platform{Firmware: vcio, Registers: regs},
		closers:  []func() error{regs.Close, vcio.Close},
	}, nil
}

func (p *platform) bind(ctx context.Context, cfg config.Config, onEvent func(*kms.Event)) (*kms.Device, error) {
	if p.cs != nil {
		if err := p.cs.Reset(); err != nil {
			return nil, fmt.Errorf("reset chipset: %w", err)
		}
	}
	return kms.Bind(ctx, kms.Config{
		MaxRefreshRate:  cfg.MaxRefreshRate,
		HDMIEvenTimings: cfg.HDMIEvenTimings,
		OnEvent:         onEvent,
	}, p.Platform)
}

func (p *platform) Close() {
	for _, fn := range p.closers {
		if err := fn(); err != nil {
			slog.Warn("fkms-sim: close platform", "error", err)
		}
	}
}
