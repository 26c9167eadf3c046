package encryption

import (
	"io"
)

// FlowEnc binds one cipher to one payload of a known size
type FlowEnc struct {
	cipher  Cipher
	encType EncType
	size    int64
}

// NewFlowEnc creates a FlowEnc for a payload of size bytes
func NewFlowEnc(secret []byte, encType string, size int64) (*FlowEnc, error) {
	f := &FlowEnc{
		encType: EncType(encType),
		size:    size,
	}
	if f.encType == "" {
		f.encType = EncTypeRC4
	}

	c, err := NewCipher(f.encType, secret, size)
	if err != nil {
		return nil, err
	}
	f.cipher = c
	return f, nil
}

// SetPosition sets the stream position for seeking
func (f *FlowEnc) SetPosition(position int64) error {
	return f.cipher.SetPosition(position)
}

// Encrypt encrypts data in place
func (f *FlowEnc) Encrypt(data []byte) {
	f.cipher.Encrypt(data)
}

// Decrypt decrypts data in place
func (f *FlowEnc) Decrypt(data []byte) {
	f.cipher.Decrypt(data)
}

// EncryptReader wraps a reader with encryption
func (f *FlowEnc) EncryptReader(r io.Reader) io.Reader {
	return f.cipher.EncryptReader(r)
}

// DecryptReader wraps a reader with decryption
func (f *FlowEnc) DecryptReader(r io.Reader) io.Reader {
	return f.cipher.DecryptReader(r)
}

// EncryptWriter wraps a writer with encryption
func (f *FlowEnc) EncryptWriter(w io.Writer) io.Writer {
	return f.cipher.EncryptWriter(w)
}

// GetEncType returns the encryption type
func (f *FlowEnc) GetEncType() EncType {
	return f.encType
}

// Size returns the payload size the key was derived for
func (f *FlowEnc) Size() int64 {
	return f.size
}
