package encryption

import (
	"io"
	"sync"
)

const chunkSize = 64 * 1024

// chunkPool holds scratch buffers for cipher writers
var chunkPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, chunkSize)
		return &buf
	},
}

// GetChunk gets a buffer from the pool
func GetChunk() *[]byte {
	return chunkPool.Get().(*[]byte)
}

// PutChunk returns a buffer to the pool
func PutChunk(buf *[]byte) {
	chunkPool.Put(buf)
}

type cipherReader struct {
	r  io.Reader
	sc StreamCipher
}

// WrapReader returns a reader that XORs everything read from r with the key stream
func WrapReader(r io.Reader, sc StreamCipher) io.Reader {
	return &cipherReader{r: r, sc: sc}
}

func (cr *cipherReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.sc.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

type cipherWriter struct {
	w  io.Writer
	sc StreamCipher
}

// WrapWriter returns a writer that XORs p with the key stream before writing to w.
// The caller's slice is left untouched.
func WrapWriter(w io.Writer, sc StreamCipher) io.Writer {
	return &cipherWriter{w: w, sc: sc}
}

func (cw *cipherWriter) Write(p []byte) (int, error) {
	bufPtr := GetChunk()
	defer PutChunk(bufPtr)
	buf := *bufPtr

	written := 0
	for written < len(p) {
		n := len(p) - written
		if n > len(buf) {
			n = len(buf)
		}
		cw.sc.XORKeyStream(buf[:n], p[written:written+n])
		m, err := cw.w.Write(buf[:n])
		written += m
		if err != nil {
			return written, err
		}
		if m < n {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}
