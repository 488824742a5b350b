// Command fkms-sim drives the firmware KMS control plane against an
// emulated VideoCore firmware, or against the real one with -hw.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/tinyrange/fkms/internal/config"
	"github.com/tinyrange/fkms/internal/trace"
	"golang.org/x/term"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fkms-sim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Configuration file (default: one emulated HDMI display)")
	dbg := flag.Bool("debug", false, "Enable debug logging")
	traceFile := flag.String("trace", "", "Record firmware transactions to file")
	hw := flag.Bool("hw", false, "Use the real firmware through /dev/vcio and /dev/mem")
	frames := flag.Int("frames", 120, "Page flips per display for the flip command")
	interval := flag.Duration("interval", time.Second/60, "Emulated vblank interval")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <command> [args]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  modes         probe every connector and list its modes\n")
		fmt.Fprintf(os.Stderr, "  flip          modeset every display and page flip -frames times\n")
		fmt.Fprintf(os.Stderr, "  regs          dump the SMI interrupt registers\n")
		fmt.Fprintf(os.Stderr, "  trace <file>  decode a firmware transaction trace\n")
		fmt.Fprintf(os.Stderr, "  init [file]   write the effective configuration (default %s)\n\n", config.Filename)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return errors.New("no command given")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *dbg {
		cfg.Log.Level = "debug"
	}
	if *traceFile != "" {
		cfg.Trace.File = *traceFile
	}
	if err := setupLogging(cfg.Log); err != nil {
		return err
	}

	if cfg.Trace.File != "" {
		if err := trace.OpenFile(cfg.Trace.File); err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer func() {
			if err := trace.Close(); err != nil {
				slog.Error("fkms-sim: close trace file", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch args[0] {
	case "modes":
		return runModes(ctx, cfg, *hw)
	case "flip":
		if *hw {
			return errors.New("flip needs the emulated firmware to generate vblanks")
		}
		return runFlip(ctx, cfg, *frames, *interval)
	case "regs":
		return runRegs(cfg, *hw)
	case "trace":
		if len(args) != 2 {
			return errors.New("usage: trace <file>")
		}
		return runTrace(args[1])
	case "init":
		path := config.Filename
		if len(args) > 1 {
			path = args[1]
		}
		if err := config.Write(path, cfg); err != nil {
			return err
		}
		slog.Info("fkms-sim: configuration written", "path", path)
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func setupLogging(c config.LogConfig) error {
	level, err := config.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}

	json := c.Format == "json"
	if c.Format == "auto" {
		json = !term.IsTerminal(int(os.Stderr.Fd()))
	}
	if json {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}
	return nil
}
