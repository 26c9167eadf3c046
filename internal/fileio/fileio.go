// Package fileio reads keys and payloads from disk and persists results
// without ever leaving a partially written output behind.
package fileio

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/rc4-stream-go/internal/config"
	"github.com/rc4-stream-go/internal/encryption"
	"github.com/rc4-stream-go/internal/errors"
)

// OverflowMode decides what happens to keys longer than KeyPolicy.MaxSize
type OverflowMode string

const (
	OverflowReject   OverflowMode = "reject"
	OverflowTruncate OverflowMode = "truncate"
)

// KeyFormat describes how a key file is encoded
type KeyFormat string

const (
	KeyFormatRaw KeyFormat = "raw"
	KeyFormatHex KeyFormat = "hex"
)

// hex key files are text; anything past this cannot be a usable key
const maxHexKeyFile = 64 * 1024

// KeyPolicy bounds what ReadKey accepts
type KeyPolicy struct {
	MaxSize  int
	Overflow OverflowMode
	Format   KeyFormat
}

// DefaultKeyPolicy rejects anything the key schedule cannot index
var DefaultKeyPolicy = KeyPolicy{
	MaxSize:  encryption.MaxKeySize,
	Overflow: OverflowReject,
	Format:   KeyFormatRaw,
}

func (p KeyPolicy) maxSize() int {
	if p.MaxSize <= 0 || p.MaxSize > encryption.MaxKeySize {
		return encryption.MaxKeySize
	}
	return p.MaxSize
}

// ReadKey loads a key from path and applies p
func ReadKey(path string, p KeyPolicy) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("key file error", err)
	}
	defer f.Close()

	limit := int64(p.maxSize()) + 1
	if p.Format == KeyFormatHex {
		limit = maxHexKeyFile + 1
	}
	raw, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return nil, errors.NewIOError("key file error", err)
	}
	if p.Format == KeyFormatHex && len(raw) > maxHexKeyFile {
		return nil, errors.NewInvalidKey(
			fmt.Sprintf("hex key file larger than %d bytes", maxHexKeyFile),
			encryption.KeySizeError(len(raw)/2),
		)
	}

	key, err := decodeKey(raw, p.Format)
	if err != nil {
		return nil, err
	}
	return applyPolicy(key, p)
}

// ParseKey applies p to key material already in memory
func ParseKey(raw []byte, p KeyPolicy) ([]byte, error) {
	key, err := decodeKey(raw, p.Format)
	if err != nil {
		return nil, err
	}
	return applyPolicy(key, p)
}

func decodeKey(raw []byte, format KeyFormat) ([]byte, error) {
	switch format {
	case KeyFormatRaw, "":
		return raw, nil
	case KeyFormatHex:
		key, err := hex.DecodeString(string(bytes.TrimSpace(raw)))
		if err != nil {
			return nil, errors.NewInvalidKey("key is not valid hex", err)
		}
		return key, nil
	default:
		return nil, errors.NewInvalidKey(fmt.Sprintf("unknown key format %q", format), nil)
	}
}

func applyPolicy(key []byte, p KeyPolicy) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.NewInvalidKey("key file is empty", encryption.KeySizeError(0))
	}

	max := p.maxSize()
	if len(key) <= max {
		return key, nil
	}
	if p.Overflow == OverflowTruncate {
		log.Debug().Int("len", len(key)).Int("max", max).Msg("Truncating key")
		return key[:max], nil
	}
	return nil, errors.NewInvalidKey(
		fmt.Sprintf("key longer than %d bytes", max),
		encryption.KeySizeError(len(key)),
	)
}

// ReadData loads the whole payload at path; empty files are valid
func ReadData(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("input file error", err)
	}
	return data, nil
}

// WriteOutput writes data to path through a temporary file and a rename,
// so a failed write leaves no file at path.
func WriteOutput(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.NewIOError("output file error", err)
	}
	tmpName := tmp.Name()

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewIOError("output file error", err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("output file error", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("output file error", err)
	}
	return nil
}

// PolicyFromConfig converts the key section of the config
func PolicyFromConfig(c config.KeyConfig) KeyPolicy {
	return KeyPolicy{
		MaxSize:  c.MaxSize,
		Overflow: OverflowMode(c.Overflow),
		Format:   KeyFormat(c.Format),
	}
}
