// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package store

//go:generate mockgen -source store.go -destination kv_mocks.go -package store

import (
	"fmt"

	"github.com/cellforge/toncodec/cell"
	"github.com/cellforge/toncodec/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// TableSpace divides the key-value storage into spaces by prefixing keys.
type TableSpace byte

const (
	// CellKey is the table space for serialized cells keyed by hash.
	CellKey TableSpace = 'C'
)

// ErrNotFound is returned when no cell with the requested hash is stored.
const ErrNotFound = common.ConstError("cell not found")

// KV is the narrow key-value surface the cell store needs. It is satisfied
// by *leveldb.DB and by transactional wrappers around it.
type KV interface {
	// Get gets the value for the given key. It returns leveldb.ErrNotFound
	// if the DB does not contain the key.
	Get(key []byte, ro *opt.ReadOptions) (value []byte, err error)

	// Has returns true if the DB does contain the given key.
	Has(key []byte, ro *opt.ReadOptions) (ret bool, err error)

	// Put sets the value for the given key.
	Put(key, value []byte, wo *opt.WriteOptions) error

	// Close closes the DB.
	Close() error
}

// dbKey is a table space byte followed by a 32-byte cell hash.
type dbKey [33]byte

func toDBKey(t TableSpace, hash common.Hash) dbKey {
	var key dbKey
	key[0] = byte(t)
	copy(key[1:], hash[:])
	return key
}

// CellStore is a content-addressed persistent store of frozen cells, keyed
// by their representation hash. Its main use is resolving library cells:
// a library reference names code by hash, and the store maps that hash back
// to the code cell. Cells are persisted in their single-root bag-of-cells
// form, so a stored value is self-contained and hash-verifiable on load.
type CellStore struct {
	db KV
}

// NewCellStore wraps an existing key-value database.
func NewCellStore(db KV) *CellStore {
	return &CellStore{db: db}
}

// OpenCellStore opens (or creates) a cell store in the given directory.
func OpenCellStore(path string) (*CellStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cell store in %s: %w", path, err)
	}
	return NewCellStore(db), nil
}

// Put persists the cell and its reachable subtree under its hash. Storing
// the same cell twice is a no-op by construction of the key.
func (s *CellStore) Put(c *cell.Cell) error {
	data, err := cell.SerializeCell(c)
	if err != nil {
		return err
	}
	key := toDBKey(CellKey, c.Hash())
	return s.db.Put(key[:], data, nil)
}

// Get loads the cell stored under the given hash. The loaded cell is
// re-hashed during parsing; a value whose content does not match its key
// indicates storage corruption and is an error, not a result.
func (s *CellStore) Get(hash common.Hash) (*cell.Cell, error) {
	key := toDBKey(CellKey, hash)
	data, err := s.db.Get(key[:], nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
		}
		return nil, err
	}
	c, err := cell.ParseCell(data)
	if err != nil {
		return nil, fmt.Errorf("stored cell %s is not parseable: %w", hash, err)
	}
	if got := c.Hash(); got != hash {
		return nil, fmt.Errorf("stored cell hash mismatch, got %s, wanted %s", got, hash)
	}
	return c, nil
}

// Has reports whether a cell with the given hash is stored.
func (s *CellStore) Has(hash common.Hash) (bool, error) {
	key := toDBKey(CellKey, hash)
	return s.db.Has(key[:], nil)
}

// ResolveLibrary maps a library reference cell to the code cell it names.
func (s *CellStore) ResolveLibrary(library *cell.Cell) (*cell.Cell, error) {
	if library.Type() != cell.LibraryCell {
		return nil, fmt.Errorf("cannot resolve a %s cell as a library reference", library.Type())
	}
	p := library.Parser()
	if _, err := p.LoadU8(8); err != nil { // type tag
		return nil, err
	}
	raw, err := p.LoadBits(256)
	if err != nil {
		return nil, err
	}
	hash, err := common.HashFromBytes(raw)
	if err != nil {
		return nil, err
	}
	return s.Get(hash)
}

// Close closes the underlying database.
func (s *CellStore) Close() error {
	return s.db.Close()
}
