package storage

import (
	"errors"
	"sort"
)

var errOverlayCommitted = errors.New("storage: overlay already committed")

// Overlay buffers writes on top of a base database. Reads see buffered writes
// first. Nothing reaches the base until Commit, which applies every buffered
// write in a single batch. Discarding the overlay is a rollback.
type Overlay struct {
	base      Database
	writes    map[string][]byte
	deletes   map[string]struct{}
	committed bool
}

func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	if o.committed {
		return errOverlayCommitted
	}
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = copyBytes(value)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	k := string(key)
	if _, gone := o.deletes[k]; gone {
		return nil, ErrNotFound
	}
	if value, ok := o.writes[k]; ok {
		return copyBytes(value), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Delete(key []byte) error {
	if o.committed {
		return errOverlayCommitted
	}
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

// Iterate merges the base view with buffered writes and deletes.
func (o *Overlay) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	merged := make(map[string][]byte)
	if err := o.base.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	}); err != nil {
		return err
	}
	for k, v := range o.writes {
		if hasPrefix([]byte(k), prefix) {
			merged[k] = v
		}
	}
	for k := range o.deletes {
		delete(merged, k)
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), copyBytes(merged[k])) {
			return nil
		}
	}
	return nil
}

// Write folds an external batch into the overlay buffer.
func (o *Overlay) Write(batch *Batch) error {
	if batch == nil {
		return nil
	}
	for _, op := range batch.ops {
		var err error
		if op.delete {
			err = o.Delete(op.key)
		} else {
			err = o.Put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Dirty reports whether the overlay holds uncommitted changes.
func (o *Overlay) Dirty() bool {
	return len(o.writes) > 0 || len(o.deletes) > 0
}

// Commit writes every buffered change to the base database atomically.
func (o *Overlay) Commit() error {
	if o.committed {
		return errOverlayCommitted
	}
	batch := NewBatch()
	keys := make([]string, 0, len(o.writes))
	for k := range o.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		batch.Put([]byte(k), o.writes[k])
	}
	for k := range o.deletes {
		batch.Delete([]byte(k))
	}
	if err := o.base.Write(batch); err != nil {
		return err
	}
	o.committed = true
	return nil
}

// Discard drops the buffered changes.
func (o *Overlay) Discard() {
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}

// Close is a no-op; the base database is owned by the caller.
func (o *Overlay) Close() {}
