package memory

import "errors"

var (
	ErrConsumed = errors.New("buffer already consumed")
	ErrBorrowed = errors.New("cannot consume a borrowed buffer")
)

// Buffer is a tagged byte range. The zero value is the absent buffer.
type Buffer struct {
	data    []byte
	owned   bool
	present bool
}

// Borrow returns a borrowed view of b. No copy is made and ownership stays
// with the caller. A nil slice yields the absent buffer.
func Borrow(b []byte) Buffer {
	return Buffer{data: b, present: b != nil}
}

// Own wraps b as an owned buffer, transferring ownership to the receiver.
// A nil slice is stored as a present zero-length buffer so that an owned
// result is never confused with "no buffer".
func Own(b []byte) Buffer {
	if b == nil {
		b = []byte{}
	}
	return Buffer{data: b, owned: true, present: true}
}

// Read returns the bytes of a present buffer. It returns false for the
// absent buffer.
func (b Buffer) Read() ([]byte, bool) {
	if !b.present {
		return nil, false
	}
	return b.data, true
}

// Consume reclaims the bytes of an owned buffer and resets b to the absent
// buffer, so a second Consume fails with ErrConsumed.
func (b *Buffer) Consume() ([]byte, error) {
	if !b.present {
		return nil, ErrConsumed
	}
	if !b.owned {
		return nil, ErrBorrowed
	}
	data := b.data
	*b = Buffer{}
	return data, nil
}

// Len returns the number of bytes in the buffer. The absent buffer has length 0.
func (b Buffer) Len() int {
	return len(b.data)
}

// IsNil reports whether b is the absent buffer.
func (b Buffer) IsNil() bool {
	return !b.present
}

// IsOwned reports whether b owns its bytes.
func (b Buffer) IsOwned() bool {
	return b.owned
}

// Reset drops whatever b holds and makes it the absent buffer.
func (b *Buffer) Reset() {
	*b = Buffer{}
}
