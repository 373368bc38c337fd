package storage

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key does not exist. Both backends
// normalise their native miss errors to this sentinel so callers can use
// errors.Is without knowing the backend.
var ErrNotFound = errors.New("storage: key not found")

// Batch accumulates writes that Database.Write applies as one atomic commit.
// A batch is single-use and bound to the database that created it.
type Batch interface {
	Put(key []byte, value []byte)
}

// Database is a generic interface for an ordered key-value store. Keys are
// iterated in lexicographic byte order, which the loan store relies on for its
// big-endian numeric suffixes.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// Iterate walks every key with the given prefix, in ascending order or,
	// when reverse is set, descending order. Returning false from fn stops the
	// walk early.
	Iterate(prefix []byte, reverse bool, fn func(key, value []byte) bool) error
	NewBatch() Batch
	// Write commits a batch created by NewBatch, all keys or none.
	Write(Batch) error
	Close() error
}

// --- In-Memory DB (for tests) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Iterate(prefix []byte, reverse bool, fn func(key, value []byte) bool) error {
	db.mu.RLock()
	keys := make([]string, 0, len(db.data))
	for k := range db.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	db.mu.RUnlock()

	sort.Strings(keys)
	if reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	for _, k := range keys {
		value, err := db.Get([]byte(k))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		if !fn([]byte(k), value) {
			return nil
		}
	}
	return nil
}

type memBatch struct {
	keys   [][]byte
	values [][]byte
}

func (b *memBatch) Put(key, value []byte) {
	b.keys = append(b.keys, append([]byte(nil), key...))
	b.values = append(b.values, append([]byte(nil), value...))
}

// NewBatch returns an empty write batch.
func (db *MemDB) NewBatch() Batch { return &memBatch{} }

// Write applies a batch under one lock acquisition.
func (db *MemDB) Write(batch Batch) error {
	b, ok := batch.(*memBatch)
	if !ok {
		return errors.New("storage: foreign batch")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for i, key := range b.keys {
		db.data[string(key)] = append([]byte(nil), b.values[i]...)
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() error { return nil }

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Has reports whether the key exists.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Iterate walks all keys under the prefix in the requested order.
func (ldb *LevelDB) Iterate(prefix []byte, reverse bool, fn func(key, value []byte) bool) error {
	iter := ldb.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	if reverse {
		for ok := iter.Last(); ok; ok = iter.Prev() {
			key := append([]byte(nil), iter.Key()...)
			value := append([]byte(nil), iter.Value()...)
			if !fn(key, value) {
				break
			}
		}
	} else {
		for iter.Next() {
			key := append([]byte(nil), iter.Key()...)
			value := append([]byte(nil), iter.Value()...)
			if !fn(key, value) {
				break
			}
		}
	}
	return iter.Error()
}

type levelBatch struct {
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key, value []byte) {
	b.batch.Put(key, value)
}

// NewBatch returns an empty write batch.
func (ldb *LevelDB) NewBatch() Batch {
	return &levelBatch{batch: new(leveldb.Batch)}
}

// Write commits the batch atomically.
func (ldb *LevelDB) Write(batch Batch) error {
	b, ok := batch.(*levelBatch)
	if !ok {
		return errors.New("storage: foreign batch")
	}
	return ldb.db.Write(b.batch, nil)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}
