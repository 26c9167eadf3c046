package encryption

import "io"

// StreamCipher provides basic XOR key stream encryption
type StreamCipher interface {
	// XORKeyStream XORs src with the key stream into dst
	XORKeyStream(dst, src []byte)
}

// SeekableCipher can reposition its key stream
type SeekableCipher interface {
	// SetPosition rewinds and discards up to position
	SetPosition(position int64) error
	// Position returns the current stream position
	Position() int64
}

// CipherInfo provides metadata about a cipher
type CipherInfo interface {
	Algorithm() string
	BlockSize() int
}

// Cipher is what NewCipher hands out
type Cipher interface {
	SeekableCipher
	CipherInfo
	// Encrypt encrypts data in place
	Encrypt(data []byte)
	// Decrypt decrypts data in place
	Decrypt(data []byte)
	EncryptReader(r io.Reader) io.Reader
	DecryptReader(r io.Reader) io.Reader
	EncryptWriter(w io.Writer) io.Writer
}
