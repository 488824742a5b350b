package chipset

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
)

// testRegs is a 16 word register file.
type testRegs struct {
	mu    sync.Mutex
	base  uint64
	words [16]uint32
	polls int

	name     string
	log      *[]string
	resetErr error
}

func (r *testRegs) record(op string) {
	if r.log != nil {
		*r.log = append(*r.log, op+" "+r.name)
	}
}

func (r *testRegs) ReadMMIO(addr uint64, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	binary.LittleEndian.PutUint32(data, r.words[(addr-r.base)/4])
	return nil
}

func (r *testRegs) WriteMMIO(addr uint64, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.words[(addr-r.base)/4] = binary.LittleEndian.Uint32(data)
	return nil
}

func (r *testRegs) Poll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
	return nil
}

func (r *testRegs) Start() error { r.record("start"); return nil }
func (r *testRegs) Stop() error  { r.record("stop"); return nil }

func (r *testRegs) Reset() error {
	r.record("reset")
	if r.resetErr != nil {
		return r.resetErr
	}
	r.mu.Lock()
	r.words = [16]uint32{}
	r.mu.Unlock()
	return nil
}

func (r *testRegs) SupportsMmio() *MmioIntercept {
	return &MmioIntercept{
		Regions: []Region{{Address: r.base, Size: 64}},
		Handler: r,
	}
}

func (r *testRegs) SupportsPollDevice() *PollDevice {
	return &PollDevice{Handler: r}
}

func TestBuilderRejectsOverlap(t *testing.T) {
	b := NewBuilder()
	if err := b.RegisterDevice("a", &testRegs{base: 0x1000}); err != nil {
		t.Fatalf("RegisterDevice a: %v", err)
	}
	if err := b.RegisterDevice("b", &testRegs{base: 0x1020}); err == nil {
		t.Fatalf("expected overlap error")
	}
	if err := b.RegisterDevice("a", &testRegs{base: 0x2000}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	if err := b.RegisterDevice("", &testRegs{base: 0x3000}); err == nil {
		t.Fatalf("expected empty name error")
	}
}

func TestWindowDispatch(t *testing.T) {
	regs := &testRegs{base: 0x7e600000}
	b := NewBuilder()
	if err := b.RegisterDevice("smi", regs); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}
	cs, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	w := cs.Window(0x7e600000)
	w.Write32(0x14, 0xabcd0001)
	if got := w.Read32(0x14); got != 0xabcd0001 {
		t.Fatalf("Read32 = %#x", got)
	}
	if regs.words[5] != 0xabcd0001 {
		t.Fatalf("write did not reach device")
	}

	// Outside every region: logged, reads as zero.
	if got := cs.Window(0x1000).Read32(0); got != 0 {
		t.Fatalf("unmapped read = %#x", got)
	}

	if err := cs.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if regs.polls != 1 {
		t.Fatalf("expected one poll, got %d", regs.polls)
	}
}

func TestSharedLineFanOut(t *testing.T) {
	lines := NewLineSet()
	line := lines.AllocateLine(5)

	var calls []string
	if err := lines.RequestIRQ(5, "a", func() bool {
		calls = append(calls, "a")
		return false
	}); err != nil {
		t.Fatalf("RequestIRQ a: %v", err)
	}
	if err := lines.Line(5).RequestIRQ("b", func() bool {
		calls = append(calls, "b")
		return true
	}); err != nil {
		t.Fatalf("RequestIRQ b: %v", err)
	}
	if err := lines.RequestIRQ(5, "b", func() bool { return true }); err == nil {
		t.Fatalf("expected duplicate handler error")
	}

	line.SetLevel(true)
	// Level already high: no new edge.
	line.SetLevel(true)
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("unexpected handler calls %v", calls)
	}

	handled, spurious := lines.Stats(5)
	if handled != 1 || spurious != 0 {
		t.Fatalf("stats = %d/%d", handled, spurious)
	}

	lines.FreeIRQ(5, "b")
	line.SetLevel(false)
	line.PulseInterrupt()
	handled, spurious = lines.Stats(5)
	if handled != 1 || spurious != 1 {
		t.Fatalf("stats after free = %d/%d", handled, spurious)
	}
}

func TestLifecycleOrder(t *testing.T) {
	var log []string
	smiRegs := &testRegs{base: 0x7e600000, name: "smi", log: &log}
	aux := &testRegs{base: 0x7e215000, name: "aux", log: &log}
	b := NewBuilder()
	for _, dev := range []*testRegs{smiRegs, aux} {
		if err := b.RegisterDevice(dev.name, dev); err != nil {
			t.Fatalf("RegisterDevice %s: %v", dev.name, err)
		}
	}
	cs, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	cs.Window(smiRegs.base).Write32(0x14, 0xabcd0001)
	if err := cs.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := cs.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := cs.Window(smiRegs.base).Read32(0x14); got != 0 {
		t.Fatalf("doorbell survived reset: %#x", got)
	}
	if err := cs.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := "start aux,start smi,reset aux,reset smi,stop aux,stop smi"
	if got := strings.Join(log, ","); got != want {
		t.Fatalf("lifecycle order %q, want %q", got, want)
	}

	errStuck := errors.New("stuck")
	aux.resetErr = errStuck
	err = cs.Reset()
	if !errors.Is(err, errStuck) || !strings.Contains(err.Error(), `reset device "aux"`) {
		t.Fatalf("unexpected reset error %v", err)
	}
}
