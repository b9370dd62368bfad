// Package strref implements the string accessor from spec.md §4.C: a
// fixed-size value type that holds either a small string inline or a
// pointer into the string store, with a byte-exact layout so persistent
// handles read by a later run stay valid.
package strref

import (
	"fmt"

	"github.com/seriesdb/seriesdb/pkg/strstore"
)

// InlineCap is the compile-time inline-capacity bound. spec.md suggests 14
// bytes for a 16-byte accessor; this package follows that suggestion
// exactly, since the layout is part of the persistent ABI and "cannot
// change without a format version bump" (spec.md §9).
const InlineCap = 14

// Accessor is a 16-byte value: 1 tag byte, 1 length byte, 14 payload bytes
// (inline string bytes, or an 8-byte strstore.Ptr left-aligned in the
// payload when pooled). Two accessors compare equal with Equal iff they
// represent the same string content.
type Accessor struct {
	tag     tag
	length  uint8
	payload [InlineCap]byte
}

type tag uint8

const (
	tagInline tag = iota
	tagPooled
)

// New constructs an accessor over s, inlining when it fits and returning
// ok=false otherwise (the caller must intern s via a strstore.Store and
// call NewPooled with the resulting pointer).
func New(s string) (a Accessor, ok bool) {
	if len(s) > InlineCap {
		return Accessor{}, false
	}
	a.tag = tagInline
	a.length = uint8(len(s))
	copy(a.payload[:], s)
	return a, true
}

// NewPooled constructs an accessor referencing a string already interned in
// a strstore.Store at ptr, with the given length.
func NewPooled(ptr strstore.Ptr, length int) Accessor {
	var a Accessor
	a.tag = tagPooled
	a.length = uint8(min(length, 255))
	a.payload[0] = byte(ptr >> 56)
	a.payload[1] = byte(ptr >> 48)
	a.payload[2] = byte(ptr >> 40)
	a.payload[3] = byte(ptr >> 32)
	a.payload[4] = byte(ptr >> 24)
	a.payload[5] = byte(ptr >> 16)
	a.payload[6] = byte(ptr >> 8)
	a.payload[7] = byte(ptr)
	return a
}

// Of interns s in store if necessary and returns the accessor for it,
// inlining short strings without touching the store at all.
func Of(store *strstore.Store, s string) (Accessor, error) {
	if a, ok := New(s); ok {
		return a, nil
	}
	ptr, err := store.FindOrAdd(s)
	if err != nil {
		return Accessor{}, err
	}
	return NewPooled(ptr, len(s)), nil
}

// IsInline reports whether the accessor stores its bytes inline.
func (a Accessor) IsInline() bool { return a.tag == tagInline }

// Len returns the string's length.
func (a Accessor) Len() int { return int(a.length) }

// Ptr returns the pooled pointer. Only meaningful when !IsInline().
func (a Accessor) Ptr() strstore.Ptr {
	var p strstore.Ptr
	for i := 0; i < 8; i++ {
		p = p<<8 | strstore.Ptr(a.payload[i])
	}
	return p
}

// ToView resolves the accessor to its full string content. Inline
// accessors resolve without touching store (which may be nil in that
// case); pooled accessors require a non-nil store.
func (a Accessor) ToView(store *strstore.Store) string {
	if a.tag == tagInline {
		return string(a.payload[:a.length])
	}
	return store.MustGet(a.Ptr())
}

// Equal reports whether a and b represent the same string content. Two
// inline accessors compare byte-for-byte without the store; two pooled
// accessors compare by pointer (sound because strstore pointers are
// content-addressed); an inline and a pooled accessor are never equal,
// since any string short enough to inline is never interned pooled by Of.
func (a Accessor) Equal(b Accessor) bool {
	if a.tag != b.tag || a.length != b.length {
		return false
	}
	if a.tag == tagInline {
		return a.payload == b.payload
	}
	return a.Ptr() == b.Ptr()
}

// MarshalBinary and UnmarshalBinary give Accessor a stable, byte-exact wire
// form (tag, length, 14-byte payload) so gob — and anything else that uses
// encoding.BinaryMarshaler — can serialize it without reaching into its
// unexported fields. This is the same 16-byte layout the in-memory value
// uses; persist.go relies on that to round-trip accessors through the heap.
func (a Accessor) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 2+InlineCap)
	buf[0] = byte(a.tag)
	buf[1] = a.length
	copy(buf[2:], a.payload[:])
	return buf, nil
}

func (a *Accessor) UnmarshalBinary(data []byte) error {
	if len(data) != 2+InlineCap {
		return fmt.Errorf("strref: invalid accessor encoding (want %d bytes, got %d)", 2+InlineCap, len(data))
	}
	a.tag = tag(data[0])
	a.length = data[1]
	copy(a.payload[:], data[2:])
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
