package encryption

import (
	"fmt"
	"sort"
	"sync"
)

// CipherFactory creates a new cipher instance
type CipherFactory func(secret []byte, size int64) (Cipher, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[EncType]CipherFactory)
)

func init() {
	for _, t := range []EncType{EncTypeRC4, EncTypeRC4MD5, EncTypeRC4PBKDF2} {
		Register(t, derivedRC4(t))
	}
}

func derivedRC4(encType EncType) CipherFactory {
	return func(secret []byte, size int64) (Cipher, error) {
		key, err := DeriveKey(encType, secret, size)
		if err != nil {
			return nil, err
		}
		return NewRC4Stream(key)
	}
}

// Register adds a cipher factory to the registry
func Register(encType EncType, factory CipherFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[encType] = factory
}

// NewCipher creates a cipher using the registry. An empty type means plain rc4.
func NewCipher(encType EncType, secret []byte, size int64) (Cipher, error) {
	if encType == "" {
		encType = EncTypeRC4
	}

	registryMu.RLock()
	factory, ok := registry[encType]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported encryption type: %s", encType)
	}
	return factory(secret, size)
}

// ListRegistered returns all registered cipher types, sorted
func ListRegistered() []EncType {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]EncType, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Slice(types, func(a, b int) bool { return types[a] < types[b] })
	return types
}

// IsRegistered checks if an encryption type is registered
func IsRegistered(encType EncType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[encType]
	return ok
}
