// Package niffler is the public facade over the storage engine: it owns a
// single outer sync.RWMutex and forwards every call straight through to a
// *pager.Pager and *btree.Tree pair. It does no tree or pager work of its
// own — see spec.md §1 and SPEC_FULL.md §5 (concurrency:
// single-writer/single-reader-set via one RWMutex, no MVCC). Grounded on
// the teacher's concurrent-reader-writer/define.go for the mutex shape,
// stripped of the version/reader-list machinery that package needs for its
// MVCC model and this one does not.
package niffler

import (
	"sync"

	"nifflerdb/internal/storage/btree"
	"nifflerdb/internal/storage/layout"
	"nifflerdb/internal/storage/pager"
)

// DB is an open NifflerDB store. The zero value is not usable; construct
// one with Open.
type DB struct {
	mu   sync.RWMutex
	p    *pager.Pager
	tree *btree.Tree
}

// Open opens path. If createNew, any existing content is discarded and a
// fresh, empty store is created; otherwise the existing store is loaded,
// and Open fails if path does not hold one.
func Open(path string, createNew bool) (*DB, error) {
	p, err := pager.Open(path, createNew)
	if err != nil {
		return nil, err
	}

	var tree *btree.Tree
	if createNew {
		tree, err = btree.Create(p)
	} else {
		tree, err = btree.Load(p)
	}
	if err != nil {
		p.Close()
		return nil, err
	}

	return &DB{p: p, tree: tree}, nil
}

// Close releases the underlying file handle. Callers should Sync first if
// they want the latest writes durable; Close itself does not flush.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.p.Close()
}

// Sync flushes every dirty page and fsyncs the file.
func (db *DB) Sync() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tree.Sync()
}

// Exists reports whether key is present.
func (db *DB) Exists(key layout.Key) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tree.Exists(key)
}

// Find returns key's value and true, or false if key is absent.
func (db *DB) Find(key layout.Key) ([]byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tree.Find(key)
}

// Insert adds key/value if key is not already present; Tree.Insert already
// syncs the pager before returning on a successful insert, so there is
// nothing left to flush here. It reports false (and leaves the existing
// value untouched) if key already exists, per spec.md §8's duplicate-insert
// law.
func (db *DB) Insert(key layout.Key, value []byte) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	inserted, err := db.tree.Insert(key, value)
	if err != nil {
		db.p.DiscardDirty()
		return false, err
	}
	return inserted, nil
}

// Remove deletes key if present; Tree.Remove already syncs the pager before
// returning on a successful removal. It reports false if key was absent.
func (db *DB) Remove(key layout.Key) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	removed, err := db.tree.Remove(key)
	if err != nil {
		db.p.DiscardDirty()
		return false, err
	}
	return removed, nil
}

// Print renders the tree's current structure, for debugging and the CLI's
// print subcommand.
func (db *DB) Print() (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tree.Print()
}
