package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tinyrange/fkms/internal/devices/fwemu"
	"github.com/tinyrange/fkms/internal/edid"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if c.MaxRefreshRate != DefaultMaxRefreshRate {
		t.Errorf("MaxRefreshRate = %d", c.MaxRefreshRate)
	}
	if c.Registers.Base != 0x7e600000 || c.Registers.Size != 0x100 {
		t.Errorf("registers = %+v", c.Registers)
	}
	if c.Emulator.Protocol != "multi" || len(c.Emulator.Displays) != 1 {
		t.Errorf("emulator = %+v", c.Emulator)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlContent := `maxRefreshRate: 100
hdmiEvenTimings: true
log:
  level: debug
  format: json
trace:
  file: fkms.trace
emulator:
  protocol: legacy
  maxPixelClock: [340000000, 300000000]
  failDisplayID: true
  displays:
    - id: 0
      fixedVIC: 2
    - id: 2
      monitor:
        manufacturer: DEL
        name: panel
        preferredVIC: 16
        vics: [16, 4]
        hdmi: true
`
	path := filepath.Join(dir, Filename)
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write yaml: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.MaxRefreshRate != 100 || !c.HDMIEvenTimings {
		t.Errorf("unexpected top level %+v", c)
	}
	if c.Trace.File != "fkms.trace" {
		t.Errorf("trace file = %q", c.Trace.File)
	}
	level, err := ParseLevel(c.Log.Level)
	if err != nil || level != slog.LevelDebug {
		t.Errorf("level = %v, %v", level, err)
	}

	fw, err := c.Emulator.Firmware(c.Registers.Base)
	if err != nil {
		t.Fatalf("Firmware: %v", err)
	}
	if fw.Protocol != fwemu.ProtocolLegacy || !fw.FailDisplayID {
		t.Errorf("unexpected firmware %+v", fw)
	}
	if fw.MaxPixelClock[1] != 300000000 {
		t.Errorf("max pixel clock = %v", fw.MaxPixelClock)
	}
	if len(fw.Displays) != 2 {
		t.Fatalf("expected 2 displays, got %d", len(fw.Displays))
	}
	if tm := fw.Displays[0].Timing; tm == nil || tm.HDisplay != 720 || tm.VDisplay != 480 {
		t.Errorf("fixed timing = %+v", tm)
	}
	e, err := edid.Parse(fw.Displays[1].EDID)
	if err != nil {
		t.Fatalf("edid.Parse: %v", err)
	}
	if e.Manufacturer != "DEL" || !edid.DetectHDMIMonitor(e) {
		t.Errorf("unexpected EDID %+v", e)
	}
}

func TestValidateErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
	}{
		{"protocol", "emulator:\n  protocol: fancy\n"},
		{"level", "log:\n  level: loud\n"},
		{"format", "log:\n  format: xml\n"},
		{"duplicate", "emulator:\n  displays:\n    - id: 2\n    - id: 2\n"},
		{"range", "emulator:\n  displays:\n    - id: 9\n"},
		{"vic", "emulator:\n  displays:\n    - id: 1\n      fixedVIC: 250\n"},
		{"clocks", "emulator:\n  maxPixelClock: [1, 2, 3]\n"},
		{"syntax", "maxRefreshRate: [\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Fatalf("expected error for %q", tc.yaml)
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), Filename)
	want := Default()
	want.MaxRefreshRate = 60
	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.MaxRefreshRate != 60 || got.Emulator.Displays[0].Monitor.PreferredVIC != 16 {
		t.Fatalf("round trip lost values: %+v", got)
	}
}
