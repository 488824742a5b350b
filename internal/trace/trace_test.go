package trace

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func TestTrace(t *testing.T) {
	buf := &Buffer{}
	func() {
		Open(buf)
		defer Close()

		Record(KindRequest, "test", []byte{1, 2, 3})
	}()

	var seen []Entry
	if err := NewReader(bytes.NewReader(buf.Bytes())).Each(func(e Entry) error {
		seen = append(seen, e)
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}

	if len(seen) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(seen))
	}
	if seen[0].Source != "test" || seen[0].Kind != KindRequest {
		t.Fatalf("unexpected entry %+v", seen[0])
	}
	if !bytes.Equal(seen[0].Data, []byte{1, 2, 3}) {
		t.Fatalf("unexpected data %v", seen[0].Data)
	}
}

func TestTraceTempFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.trace")
	func() {
		if err := OpenFile(name); err != nil {
			t.Fatalf("OpenFile: %v", err)
		}
		defer Close()

		Recordf(KindError, "mailbox", "call failed: %d", 5)
	}()

	var seen []string
	if err := EachFile(name, func(e Entry) error {
		seen = append(seen, string(e.Data))
		return nil
	}); err != nil {
		t.Fatalf("EachFile: %v", err)
	}
	if len(seen) != 1 || seen[0] != "call failed: 5" {
		t.Fatalf("unexpected entries %q", seen)
	}
}

func TestTraceConcurrentRecorders(t *testing.T) {
	buf := &Buffer{}
	Open(buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Record(KindEvent, fmt.Sprintf("src%d", i), []byte{byte(j)})
			}
		}(i)
	}
	wg.Wait()
	Close()

	count := 0
	if err := NewReader(bytes.NewReader(buf.Bytes())).Each(func(e Entry) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}
	if count != 400 {
		t.Fatalf("expected 400 entries, got %d", count)
	}
}

func TestRecordWithoutWriter(t *testing.T) {
	Close()
	if Enabled() {
		t.Fatalf("expected trace to be disabled")
	}
	// Must not panic.
	Record(KindRequest, "test", []byte("x"))
}
