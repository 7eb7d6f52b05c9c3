// Package memdb implements database.Database over goleveldb's in-memory
// storage engine. It is the reference store used by tests and by any peer
// that doesn't need crash-durable persistence; a disk-backed deployment
// would point goleveldb at storage.OpenFile instead of storage.NewMemStorage,
// with no other code change, since both satisfy the same leveldb.DB API.
package memdb

import (
	"github.com/syndtr/goleveldb/leveldb"
	ldbiterator "github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ava-labs/fedimint/database"
)

// Database wraps a goleveldb *leveldb.DB opened against in-memory storage.
type Database struct {
	db     *leveldb.DB
	closed bool
}

// New opens a fresh, empty in-memory database.
func New() (*Database, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

// OpenFile opens (creating if absent) a crash-durable database backed by
// goleveldb's on-disk storage engine at path, satisfying the same
// database.Database contract as New's in-memory store.
func OpenFile(path string) (*Database, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

func (d *Database) Has(key []byte) (bool, error) {
	if d.closed {
		return false, database.ErrClosed
	}
	return d.db.Has(key, nil)
}

func (d *Database) Get(key []byte) ([]byte, error) {
	if d.closed {
		return nil, database.ErrClosed
	}
	v, err := d.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, database.ErrNotFound
	}
	return v, err
}

func (d *Database) Put(key, value []byte) error {
	if d.closed {
		return database.ErrClosed
	}
	return d.db.Put(key, value, nil)
}

func (d *Database) Delete(key []byte) error {
	if d.closed {
		return database.ErrClosed
	}
	return d.db.Delete(key, nil)
}

func (d *Database) NewBatch() database.Batch {
	return &batch{db: d.db}
}

func (d *Database) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	it := d.db.NewIterator(util.BytesPrefix(prefix), nil)
	return &dbIterator{it: it}
}

func (d *Database) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

type batch struct {
	db    *leveldb.DB
	inner leveldb.Batch
}

func (b *batch) Put(key, value []byte) { b.inner.Put(key, value) }
func (b *batch) Delete(key []byte)     { b.inner.Delete(key) }
func (b *batch) Len() int              { return b.inner.Len() }
func (b *batch) Write() error          { return b.db.Write(&b.inner, nil) }
func (b *batch) Reset()                { b.inner.Reset() }

type dbIterator struct {
	it ldbiterator.Iterator
}

func (i *dbIterator) Next() bool    { return i.it.Next() }
func (i *dbIterator) Key() []byte   { return i.it.Key() }
func (i *dbIterator) Value() []byte { return i.it.Value() }
func (i *dbIterator) Error() error  { return i.it.Error() }
func (i *dbIterator) Release()      { i.it.Release() }
