// Package codec defines the fixed little-endian account layouts used for
// snapshot persistence and byte-level state comparison. Every layout opens
// with an 8-byte type discriminator and a version byte; Decode rejects
// anything it does not recognize rather than guessing.
package codec

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const layoutVersion = byte(1)

var (
	ErrShortBuffer      = errors.New("buffer too short for layout")
	ErrBadDiscriminator = errors.New("discriminator does not match layout")
	ErrBadVersion       = errors.New("unsupported layout version")
	ErrMarketTooLong    = errors.New("market identifier exceeds field width")
	ErrTooManySteps     = errors.New("step count exceeds layout capacity")
	ErrQueueTooLarge    = errors.New("queue tier exceeds layout capacity")
)

// Field widths shared across layouts.
const (
	marketFieldLen = 32
	maxQueueTier   = 1024
)

// discriminator derives the 8-byte layout tag from the account name.
func discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("verserisk:account:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

var (
	discPosition       = discriminator("position")
	discPositionHealth = discriminator("position_health")
	discChainState     = discriminator("chain_state")
	discQueue          = discriminator("liquidation_queue")
	discGlobalConfig   = discriminator("global_config")
)

// writer appends fixed-width little-endian fields.
type writer struct {
	buf []byte
}

func newWriter(disc [8]byte, capacity int) *writer {
	w := &writer{buf: make([]byte, 0, capacity)}
	w.buf = append(w.buf, disc[:]...)
	w.buf = append(w.buf, layoutVersion)
	return w
}

func (w *writer) i64(v int64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}

func (w *writer) i32(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

func (w *writer) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) byte(v byte) {
	w.buf = append(w.buf, v)
}

func (w *writer) bool(v bool) {
	if v {
		w.byte(1)
	} else {
		w.byte(0)
	}
}

func (w *writer) bytes32(v [32]byte) {
	w.buf = append(w.buf, v[:]...)
}

func (w *writer) uuid(v uuid.UUID) {
	w.buf = append(w.buf, v[:]...)
}

// market writes a NUL-padded fixed-width market identifier.
func (w *writer) market(id string) error {
	if len(id) > marketFieldLen {
		return fmt.Errorf("market %q: %w", id, ErrMarketTooLong)
	}
	var field [marketFieldLen]byte
	copy(field[:], id)
	w.buf = append(w.buf, field[:]...)
	return nil
}

// reader consumes fixed-width little-endian fields, tracking one error.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte, disc [8]byte) *reader {
	r := &reader{buf: buf}
	if len(buf) < 9 {
		r.err = ErrShortBuffer
		return r
	}
	if [8]byte(buf[:8]) != disc {
		r.err = ErrBadDiscriminator
		return r
	}
	if buf[8] != layoutVersion {
		r.err = fmt.Errorf("version %d: %w", buf[8], ErrBadVersion)
		return r
	}
	r.off = 9
	return r
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = ErrShortBuffer
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) i64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (r *reader) i32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bool() bool {
	return r.byte() != 0
}

func (r *reader) bytes32() [32]byte {
	var out [32]byte
	if b := r.take(32); b != nil {
		copy(out[:], b)
	}
	return out
}

func (r *reader) uuid() uuid.UUID {
	var out uuid.UUID
	if b := r.take(16); b != nil {
		copy(out[:], b)
	}
	return out
}

func (r *reader) market() string {
	b := r.take(marketFieldLen)
	if b == nil {
		return ""
	}
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}

// finish fails on trailing bytes so truncated or concatenated buffers are
// caught instead of silently decoded.
func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("%d trailing bytes", len(r.buf)-r.off)
	}
	return nil
}
