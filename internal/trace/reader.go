package trace

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Entry is one decoded trace record.
type Entry struct {
	Time   time.Time
	Kind   Kind
	Source string
	Data   []byte
}

type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next entry, or io.EOF at the end of the stream.
func (r *Reader) Next() (Entry, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r.br, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("trace: read header: %w", err)
	}
	kind := Kind(binary.LittleEndian.Uint16(header[0:2]))
	if kind == KindInvalid {
		return Entry{}, fmt.Errorf("trace: invalid header")
	}
	sourceLen := binary.LittleEndian.Uint16(header[2:4])
	dataLen := binary.LittleEndian.Uint32(header[4:8])
	ts := int64(binary.LittleEndian.Uint64(header[8:16]))

	body := make([]byte, int(sourceLen)+int(dataLen))
	if _, err := io.ReadFull(r.br, body); err != nil {
		return Entry{}, fmt.Errorf("trace: read body: %w", err)
	}
	return Entry{
		Time:   time.Unix(0, ts),
		Kind:   kind,
		Source: string(body[:sourceLen]),
		Data:   body[sourceLen:],
	}, nil
}

// Each calls fn for every entry in order.
func (r *Reader) Each(fn func(Entry) error) error {
	for {
		e, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// EachFile reads the trace stored in filename.
func EachFile(filename string, fn func(Entry) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return NewReader(f).Each(fn)
}
