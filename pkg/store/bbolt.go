// Package store provides persistent backends for the outgoing ticket index
// counter (pkg/ticket.Store): a bbolt-backed implementation via lnd's kvdb
// wrapper for the single-node deployment, plus an in-memory double for
// tests.
package store

import (
	"encoding/binary"

	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/kvdb"
)

var indexBucket = []byte("outgoing-ticket-indexes")

// IndexRecord is one (channel, epoch) -> last issued index row, returned by
// ListIndexes for cmd/relaynode's "ticket ls" debug command.
type IndexRecord struct {
	ChannelID [32]byte
	Epoch     uint32
	LastIndex uint64
}

// indexKey packs the channel ID and epoch into the bbolt key, so every
// (channel, epoch) pair gets its own counter row (spec.md §3: epoch bumps
// invalidate the previous index sequence).
func indexKey(channelID [32]byte, epoch uint32) []byte {
	key := make([]byte, 32+4)
	copy(key, channelID[:])
	binary.BigEndian.PutUint32(key[32:], epoch)
	return key
}

// BboltStore persists outgoing ticket indexes in a bbolt database opened
// through lnd's kvdb wrapper, the same backend aliasmgr uses for its
// SCID allocation table.
type BboltStore struct {
	db kvdb.Backend
}

// NewBboltStore opens (or creates) a bbolt database at path and returns a
// Store backed by it.
func NewBboltStore(path string) (*BboltStore, error) {
	db, err := kvdb.Create(
		kvdb.BoltBackendName, path, true, kvdb.DefaultDBTimeout,
	)
	if err != nil {
		return nil, err
	}

	err = kvdb.Update(db, func(tx kvdb.RwTx) error {
		_, err := tx.CreateTopLevelBucket(indexBucket)
		return err
	}, func() {})
	if err != nil {
		return nil, err
	}

	return &BboltStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *BboltStore) Close() error {
	return s.db.Close()
}

// LastIndex implements pkg/ticket.Store.
func (s *BboltStore) LastIndex(channelID [32]byte, epoch uint32) (uint64, bool, error) {
	var (
		value uint64
		found bool
	)

	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(indexBucket)
		if bucket == nil {
			return errors.New("store: missing index bucket")
		}

		raw := bucket.Get(indexKey(channelID, epoch))
		if raw == nil {
			return nil
		}

		value = binary.BigEndian.Uint64(raw)
		found = true
		return nil
	}, func() {})

	return value, found, err
}

// PersistIndex implements pkg/ticket.Store.
func (s *BboltStore) PersistIndex(channelID [32]byte, epoch uint32, index uint64) error {
	return kvdb.Update(s.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(indexBucket)
		if bucket == nil {
			return errors.New("store: missing index bucket")
		}

		var raw [8]byte
		binary.BigEndian.PutUint64(raw[:], index)
		return bucket.Put(indexKey(channelID, epoch), raw[:])
	}, func() {})
}

// ListIndexes returns every (channel, epoch) -> last index row currently
// persisted, used by cmd/relaynode's "ticket ls" debug command.
func (s *BboltStore) ListIndexes() ([]IndexRecord, error) {
	var out []IndexRecord

	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(indexBucket)
		if bucket == nil {
			return errors.New("store: missing index bucket")
		}

		return bucket.ForEach(func(k, v []byte) error {
			if len(k) != 36 || len(v) != 8 {
				return nil
			}
			var rec IndexRecord
			copy(rec.ChannelID[:], k[:32])
			rec.Epoch = binary.BigEndian.Uint32(k[32:])
			rec.LastIndex = binary.BigEndian.Uint64(v)
			out = append(out, rec)
			return nil
		})
	}, func() {})

	return out, err
}
