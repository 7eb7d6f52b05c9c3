// Package prefixdb composes a database.Database that namespaces every key
// under a fixed prefix, the way vms/components/archive wraps a raw database
// with prefixdb.New([]byte("archive"), db). dir/main wraps the node's store
// once under "fedimint/"; the per-namespace one-byte prefixes inside it are
// written by consensus/status, mint/reference and wallet/reference
// themselves, not by this package.
package prefixdb

import (
	"github.com/ava-labs/fedimint/database"
)

// Database namespaces every key under prefix before delegating to the
// underlying store.
type Database struct {
	prefix []byte
	db     database.Database
}

// New wraps db so every key is transparently prefixed.
func New(prefix []byte, db database.Database) *Database {
	p := make([]byte, len(prefix))
	copy(p, prefix)
	return &Database{prefix: p, db: db}
}

func (d *Database) key(k []byte) []byte {
	full := make([]byte, 0, len(d.prefix)+len(k))
	full = append(full, d.prefix...)
	full = append(full, k...)
	return full
}

func (d *Database) Has(key []byte) (bool, error) { return d.db.Has(d.key(key)) }

func (d *Database) Get(key []byte) ([]byte, error) { return d.db.Get(d.key(key)) }

func (d *Database) Put(key, value []byte) error { return d.db.Put(d.key(key), value) }

func (d *Database) Delete(key []byte) error { return d.db.Delete(d.key(key)) }

func (d *Database) NewBatch() database.Batch {
	return &batch{prefix: d.prefix, inner: d.db.NewBatch()}
}

func (d *Database) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	it := d.db.NewIteratorWithPrefix(d.key(prefix))
	return &iterator{it: it, prefixLen: len(d.prefix)}
}

func (d *Database) Close() error { return d.db.Close() }

type batch struct {
	prefix []byte
	inner  database.Batch
}

func (b *batch) key(k []byte) []byte {
	full := make([]byte, 0, len(b.prefix)+len(k))
	full = append(full, b.prefix...)
	full = append(full, k...)
	return full
}

func (b *batch) Put(key, value []byte) { b.inner.Put(b.key(key), value) }
func (b *batch) Delete(key []byte)     { b.inner.Delete(b.key(key)) }
func (b *batch) Len() int              { return b.inner.Len() }
func (b *batch) Write() error          { return b.inner.Write() }
func (b *batch) Reset()                { b.inner.Reset() }

// iterator strips the namespace prefix back off each key so callers see the
// same unprefixed keys they put in.
type iterator struct {
	it        database.Iterator
	prefixLen int
}

func (i *iterator) Next() bool { return i.it.Next() }
func (i *iterator) Key() []byte {
	k := i.it.Key()
	if len(k) < i.prefixLen {
		return nil
	}
	return k[i.prefixLen:]
}
func (i *iterator) Value() []byte { return i.it.Value() }
func (i *iterator) Error() error  { return i.it.Error() }
func (i *iterator) Release()      { i.it.Release() }
