// Package state keeps small shared records (quota windows, topic cursor) in
// a buntdb file so they survive restarts and are seen by every process
// using the same path.
package state

import (
	"sync"

	"emperror.dev/errors"
	"github.com/gofrs/flock"
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const memoryPath = ":memory:"

// File is a buntdb-backed JSON record store.
//
// buntdb reads the file once at open and serves from memory afterwards, so
// a long-lived handle would never see another process's writes. For a real
// path every Load and Update therefore takes an exclusive lock on
// "<path>.lock", opens the file, runs one transaction and closes it again.
type File struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
	mem  *buntdb.DB
}

// Open opens (or creates) the state file at path. ":memory:" keeps
// everything in memory for the lifetime of the File.
func Open(path string) (*File, error) {
	if path == memoryPath {
		db, err := buntdb.Open(memoryPath)
		if err != nil {
			return nil, errors.Wrap(err, "open in-memory state")
		}
		return &File{path: path, mem: db}, nil
	}

	f := &File{path: path, lock: flock.New(path + ".lock")}
	// Fail early on an unusable path.
	if err := f.with(func(*buntdb.DB) error { return nil }); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Close() error {
	if f.mem != nil {
		return f.mem.Close()
	}
	return nil
}

// Load decodes the record at key into dst. A missing key leaves dst
// untouched.
func (f *File) Load(key string, dst interface{}) error {
	return f.with(func(db *buntdb.DB) error {
		return db.View(func(tx *buntdb.Tx) error {
			return get(tx, key, dst)
		})
	})
}

// Update decodes key into dst, runs fn and writes dst back, all inside one
// read-write transaction. If fn returns an error nothing is written and the
// error is returned as is.
func (f *File) Update(key string, dst interface{}, fn func() error) error {
	return f.with(func(db *buntdb.DB) error {
		err := db.Update(func(tx *buntdb.Tx) error {
			if err := get(tx, key, dst); err != nil {
				return err
			}
			if err := fn(); err != nil {
				return err
			}
			raw, err := json.Marshal(dst)
			if err != nil {
				return errors.Wrapf(err, "encode %s", key)
			}
			if _, _, err := tx.Set(key, string(raw), nil); err != nil {
				return errors.Wrapf(err, "write %s", key)
			}
			return nil
		})
		if err != nil || f.mem != nil {
			return err
		}
		// The log is append-only; compact it while we still hold the lock.
		return errors.Wrapf(db.Shrink(), "shrink state file %s", f.path)
	})
}

func (f *File) with(fn func(db *buntdb.DB) error) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mem != nil {
		return fn(f.mem)
	}

	if err := f.lock.Lock(); err != nil {
		return errors.Wrapf(err, "lock state file %s", f.path)
	}
	defer func() {
		err = errors.Combine(err, errors.WrapIf(f.lock.Unlock(), "unlock state file"))
	}()

	db, err := buntdb.Open(f.path)
	if err != nil {
		return errors.Wrapf(err, "open state file %s", f.path)
	}
	defer func() {
		err = errors.Combine(err, errors.WrapIf(db.Close(), "close state file"))
	}()

	var cfg buntdb.Config
	if err := db.ReadConfig(&cfg); err != nil {
		return errors.Wrap(err, "read state file config")
	}
	cfg.AutoShrinkDisabled = true
	cfg.SyncPolicy = buntdb.Always
	if err := db.SetConfig(cfg); err != nil {
		return errors.Wrap(err, "configure state file")
	}

	return fn(db)
}

func get(tx *buntdb.Tx, key string, dst interface{}) error {
	raw, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return errors.Wrapf(err, "read %s", key)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return errors.Wrapf(err, "decode %s", key)
	}
	return nil
}
