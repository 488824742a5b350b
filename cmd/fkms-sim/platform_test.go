package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/tinyrange/fkms/internal/config"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestPlatformCloseLogsFailures(t *testing.T) {
	buf := captureLog(t)
	p := &platform{closers: []func() error{
		func() error { return errors.New("busy") },
		func() error { return nil },
	}}
	p.Close()

	out := buf.String()
	if strings.Count(out, "msg=") != 1 || !strings.Contains(out, `msg="fkms-sim: close platform"`) {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestEmulatedPlatformBind(t *testing.T) {
	buf := captureLog(t)
	cfg := config.Default()
	p, err := newPlatform(cfg, false)
	if err != nil {
		t.Fatalf("newPlatform: %v", err)
	}
	defer p.Close()

	dev, err := p.bind(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer dev.Unbind()
	if len(dev.Displays()) == 0 {
		t.Fatalf("no displays bound")
	}

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		i := strings.Index(line, "msg=")
		if i < 0 {
			continue
		}
		msg := strings.TrimPrefix(line[i+len("msg="):], `"`)
		prefix, _, ok := strings.Cut(msg, ": ")
		if !ok || strings.ContainsAny(prefix, " =") {
			t.Fatalf("log line without component prefix: %s", line)
		}
	}
}
