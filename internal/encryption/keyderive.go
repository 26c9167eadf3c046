package encryption

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
)

// EncType names a key derivation scheme in front of the RC4 engine
type EncType string

const (
	EncTypeRC4       EncType = "rc4"
	EncTypeRC4MD5    EncType = "rc4md5"
	EncTypeRC4PBKDF2 EncType = "rc4pbkdf2"
)

const (
	pbkdf2Salt       = "RC4-PBKDF2"
	pbkdf2Iterations = 1000
	pbkdf2KeyLen     = 32
)

// DeriveKey turns secret into the bytes handed to the key schedule.
// size is mixed in by rc4md5 so two files of different length never share a key stream.
func DeriveKey(encType EncType, secret []byte, size int64) ([]byte, error) {
	if len(secret) == 0 {
		return nil, KeySizeError(0)
	}
	switch encType {
	case EncTypeRC4, "":
		return append([]byte(nil), secret...), nil
	case EncTypeRC4MD5:
		sum := md5.Sum(append(append([]byte(nil), secret...), strconv.FormatInt(size, 10)...))
		return sum[:], nil
	case EncTypeRC4PBKDF2:
		return pbkdf2.Key(secret, []byte(pbkdf2Salt), pbkdf2Iterations, pbkdf2KeyLen, sha256.New), nil
	default:
		return nil, fmt.Errorf("unsupported encryption type: %s", encType)
	}
}
