// Package boltstore persists the world in a bbolt file: objects, the player
// name index and grid rooms. Writes go through to disk as they happen; the
// in-memory database is the cache served to the game.
package boltstore

import (
	"fmt"
	"os"
	"time"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/logger"
	bbolt "go.etcd.io/bbolt"
)

type Store struct {
	bolt  *bbolt.DB
	cache *gamedb.Database
}

// Open opens or creates the file at path. It gives up after a second if
// another process holds the file lock.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: %w", err)
	}
	return &Store{bolt: db, cache: gamedb.NewDatabase()}, nil
}

func (s *Store) Close() error {
	if s.bolt == nil {
		return nil
	}
	return s.bolt.Close()
}

// DB is the in-memory database the store loads into and writes from.
func (s *Store) DB() *gamedb.Database { return s.cache }

// HasData reports whether any object has been stored yet.
func (s *Store) HasData() bool {
	found := false
	s.bolt.View(func(tx *bbolt.Tx) error {
		k, _ := tx.Bucket(bucketObjects).Cursor().First()
		found = k != nil
		return nil
	})
	return found
}

func putObjects(b *bbolt.Bucket, objs []*gamedb.Object) error {
	for _, obj := range objs {
		if obj == nil {
			continue
		}
		data, err := encode(obj)
		if err != nil {
			return fmt.Errorf("boltstore: encode object #%d: %w", obj.DBRef, err)
		}
		if err := b.Put(refKey(obj.DBRef), data); err != nil {
			return err
		}
	}
	return nil
}

// PutObject writes one object through to disk.
func (s *Store) PutObject(obj *gamedb.Object) error {
	return s.PutObjects(obj)
}

// PutObjects writes objs in one transaction. Nil entries are skipped.
func (s *Store) PutObjects(objs ...*gamedb.Object) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return putObjects(tx.Bucket(bucketObjects), objs)
	})
}

// PutMeta records the database version and size.
func (s *Store) PutMeta() error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return putMeta(tx.Bucket(bucketMeta), s.cache)
	})
}

func putMeta(b *bbolt.Bucket, db *gamedb.Database) error {
	if err := b.Put(metaVersion, countValue(db.Version)); err != nil {
		return err
	}
	return b.Put(metaSize, countValue(db.Size))
}

// Seed stores a freshly built world in a single transaction and adopts it
// as the cache.
func (s *Store) Seed(db *gamedb.Database) error {
	objs := make([]*gamedb.Object, 0, len(db.Objects))
	for _, obj := range db.Objects {
		objs = append(objs, obj)
	}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := putMeta(tx.Bucket(bucketMeta), db); err != nil {
			return fmt.Errorf("meta: %w", err)
		}
		if err := putObjects(tx.Bucket(bucketObjects), objs); err != nil {
			return err
		}
		players := tx.Bucket(bucketPlayers)
		for _, obj := range objs {
			if obj.ObjType() != gamedb.TypePlayer || obj.IsGoing() {
				continue
			}
			if err := players.Put(playerKey(obj.Name), refKey(obj.DBRef)); err != nil {
				return fmt.Errorf("player index: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: seed: %w", err)
	}
	s.cache = db
	logger.Log.Printf("boltstore: seeded %d objects", len(objs))
	return nil
}

// LoadAll fills the cache from disk. Size never ends up below the highest
// stored ref.
func (s *Store) LoadAll() error {
	db := s.cache
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(metaVersion); v != nil {
			db.Version = countFromValue(v)
		}
		if v := meta.Get(metaSize); v != nil {
			db.Size = countFromValue(v)
		}
		return tx.Bucket(bucketObjects).ForEach(func(k, v []byte) error {
			obj, err := decode[gamedb.Object](v)
			if err != nil {
				return fmt.Errorf("decode object #%d: %w", refFromKey(k), err)
			}
			db.Objects[obj.DBRef] = obj
			db.Size = max(db.Size, int(obj.DBRef)+1)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("boltstore: load: %w", err)
	}
	logger.Log.Printf("boltstore: loaded %d objects", len(db.Objects))
	return nil
}

// UpdatePlayerIndex indexes obj under its current name, first dropping
// oldName if given.
func (s *Store) UpdatePlayerIndex(obj *gamedb.Object, oldName string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPlayers)
		if oldName != "" {
			if err := b.Delete(playerKey(oldName)); err != nil {
				return err
			}
		}
		if obj.ObjType() != gamedb.TypePlayer || obj.IsGoing() {
			return nil
		}
		return b.Put(playerKey(obj.Name), refKey(obj.DBRef))
	})
}

// LookupPlayer finds a player by name, ignoring case.
func (s *Store) LookupPlayer(name string) (gamedb.DBRef, bool) {
	ref := gamedb.Nothing
	s.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketPlayers).Get(playerKey(name)); v != nil {
			ref = refFromKey(v)
		}
		return nil
	})
	return ref, ref != gamedb.Nothing
}

// Backup writes a consistent snapshot of the live file to path.
func (s *Store) Backup(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("boltstore: backup: %w", err)
	}
	err = s.bolt.View(func(tx *bbolt.Tx) error {
		_, err := tx.WriteTo(f)
		return err
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("boltstore: backup %s: %w", path, err)
	}
	logger.Log.Printf("boltstore: backup written to %s", path)
	return nil
}
