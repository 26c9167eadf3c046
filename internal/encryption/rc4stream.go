package encryption

import (
	"fmt"
	"io"
)

// RC4Stream is a seekable RC4 cipher over an already derived key
type RC4Stream struct {
	key      []byte
	state    State
	position int64
}

// NewRC4Stream schedules key and returns a stream positioned at 0
func NewRC4Stream(key []byte) (*RC4Stream, error) {
	r := &RC4Stream{key: append([]byte(nil), key...)}
	if err := r.state.Reset(r.key); err != nil {
		return nil, err
	}
	return r, nil
}

// SetPosition re-schedules the key and discards keystream bytes up to position
func (r *RC4Stream) SetPosition(position int64) error {
	if position < 0 {
		return fmt.Errorf("position cannot be negative")
	}
	if err := r.state.Reset(r.key); err != nil {
		return fmt.Errorf("failed to reschedule rc4 key: %w", err)
	}
	r.state.Discard(position)
	r.position = position
	return nil
}

// Position returns the current stream position
func (r *RC4Stream) Position() int64 {
	return r.position
}

func (r *RC4Stream) Algorithm() string {
	return "RC4"
}

// BlockSize is 1, RC4 produces the key stream byte by byte
func (r *RC4Stream) BlockSize() int {
	return 1
}

// XORKeyStream XORs src with the key stream into dst
func (r *RC4Stream) XORKeyStream(dst, src []byte) {
	r.state.XORKeyStream(dst, src)
	r.position += int64(len(src))
}

// Encrypt encrypts data in place
func (r *RC4Stream) Encrypt(data []byte) {
	r.XORKeyStream(data, data)
}

// Decrypt decrypts data in place (same as encrypt for RC4)
func (r *RC4Stream) Decrypt(data []byte) {
	r.Encrypt(data)
}

func (r *RC4Stream) EncryptReader(reader io.Reader) io.Reader {
	return WrapReader(reader, r)
}

func (r *RC4Stream) DecryptReader(reader io.Reader) io.Reader {
	return r.EncryptReader(reader)
}

func (r *RC4Stream) EncryptWriter(w io.Writer) io.Writer {
	return WrapWriter(w, r)
}
