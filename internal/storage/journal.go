package storage

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rc4-stream-go/internal/config"
)

// Entry describes one completed transform. The key itself is never stored.
type Entry struct {
	ID             uint64        `json:"id"`
	Time           time.Time     `json:"time"`
	Origin         string        `json:"origin"` // cli, http
	Source         string        `json:"source"`
	Target         string        `json:"target"`
	KeyFingerprint string        `json:"key_fingerprint"`
	Length         int64         `json:"length"`
	Duration       time.Duration `json:"duration"`
}

// Journal records and lists transform history
type Journal interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Fingerprint identifies a key without revealing it: 8 bytes of SHA-256, hex
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}

// Open returns the journal configured in c. A disabled journal is a no-op.
// A bolt journal reuses store when given one, otherwise it opens its own.
func Open(c *config.Config, store *Store) (Journal, error) {
	if !c.Journal.Enable {
		return NopJournal{}, nil
	}
	switch c.Journal.Driver {
	case "mysql":
		return OpenMySQLJournal(c.Journal.DSN)
	case "bolt", "":
		if store != nil {
			return NewBoltJournal(store, false), nil
		}
		own, err := OpenStore(c.DataDir, c.Journal.LockTimeout)
		if err != nil {
			return nil, err
		}
		return NewBoltJournal(own, true), nil
	default:
		return nil, fmt.Errorf("unsupported journal driver: %s", c.Journal.Driver)
	}
}

// NopJournal discards everything
type NopJournal struct{}

func (NopJournal) Record(context.Context, Entry) error        { return nil }
func (NopJournal) List(context.Context, int) ([]Entry, error) { return nil, nil }
func (NopJournal) Close() error                               { return nil }

// BoltJournal keeps entries in the journal bucket keyed by a big-endian
// sequence, so a reverse cursor walk yields newest first.
type BoltJournal struct {
	store     *Store
	ownsStore bool
}

// NewBoltJournal wraps store. With owns set, Close also closes the store.
func NewBoltJournal(store *Store, owns bool) *BoltJournal {
	return &BoltJournal{store: store, ownsStore: owns}
}

// Store exposes the underlying bbolt store
func (j *BoltJournal) Store() *Store {
	return j.store
}

func (j *BoltJournal) Record(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(BucketJournal)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		e.ID = seq
		if e.Time.IsZero() {
			e.Time = time.Now()
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		var k [8]byte
		binary.BigEndian.PutUint64(k[:], seq)
		return b.Put(k[:], data)
	})
}

// List returns at most limit entries, newest first. limit <= 0 means all.
func (j *BoltJournal) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []Entry
	err := j.store.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(BucketJournal).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("corrupt journal entry %x: %w", k, err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

func (j *BoltJournal) Close() error {
	if j.ownsStore {
		return j.store.Close()
	}
	return nil
}
