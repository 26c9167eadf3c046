package encryption

import (
	"errors"
	"strconv"
)

// MaxKeySize is the longest key the key schedule can index.
const MaxKeySize = 256

// ErrInvalidKey is matched by every key size failure
var ErrInvalidKey = errors.New("invalid rc4 key")

// KeySizeError reports a key whose length is outside 1..MaxKeySize
type KeySizeError int

func (k KeySizeError) Error() string {
	return "rc4: invalid key size " + strconv.Itoa(int(k))
}

// Is lets errors.Is(err, ErrInvalidKey) match a KeySizeError
func (k KeySizeError) Is(target error) bool {
	return target == ErrInvalidKey
}

// State is the RC4 permutation table plus its two cursors.
// A State is owned by a single operation and is not safe for concurrent use.
type State struct {
	s    [256]byte
	i, j uint8
}

// Schedule runs the key-scheduling pass and returns a fresh State
func Schedule(key []byte) (*State, error) {
	st := &State{}
	if err := st.Reset(key); err != nil {
		return nil, err
	}
	return st, nil
}

// Reset rebuilds the permutation from key and rewinds both cursors
func (st *State) Reset(key []byte) error {
	k := len(key)
	if k < 1 || k > MaxKeySize {
		return KeySizeError(k)
	}

	for n := 0; n < 256; n++ {
		st.s[n] = byte(n)
	}
	var j uint8
	for n := 0; n < 256; n++ {
		j += st.s[n] + key[n%k]
		st.swap(uint8(n), j)
	}
	st.i, st.j = 0, 0
	return nil
}

func (st *State) swap(a, b uint8) {
	st.s[a], st.s[b] = st.s[b], st.s[a]
}

// Next advances the state by one step and returns one keystream byte
func (st *State) Next() byte {
	st.i++
	st.j += st.s[st.i]
	st.swap(st.i, st.j)
	return st.s[st.s[st.i]+st.s[st.j]]
}

// XORKeyStream sets dst to src XORed with the keystream.
// Dst and src must overlap entirely or not at all.
func (st *State) XORKeyStream(dst, src []byte) {
	if len(src) == 0 {
		return
	}
	_ = dst[len(src)-1]
	for p, v := range src {
		dst[p] = v ^ st.Next()
	}
}

// Discard advances the keystream by n bytes without producing output
func (st *State) Discard(n int64) {
	for ; n > 0; n-- {
		st.Next()
	}
}

// Cursors returns the current i and j indices
func (st *State) Cursors() (i, j uint8) {
	return st.i, st.j
}

// Permutation returns a copy of the permutation table
func (st *State) Permutation() [256]byte {
	return st.s
}

// IsPermutation reports whether p holds every byte value exactly once
func IsPermutation(p [256]byte) bool {
	var seen [256]bool
	for _, v := range p {
		if seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// Transform schedules key and returns data XORed with the keystream.
// Applying it twice with the same key returns the original bytes.
func Transform(key, data []byte) ([]byte, error) {
	st, err := Schedule(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	st.XORKeyStream(out, data)
	return out, nil
}

// TransformInPlace is Transform writing into data itself
func TransformInPlace(key, data []byte) error {
	st, err := Schedule(key)
	if err != nil {
		return err
	}
	st.XORKeyStream(data, data)
	return nil
}
