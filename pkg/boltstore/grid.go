package boltstore

import (
	"fmt"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/grid"
	"github.com/crystal-mush/gridmush/pkg/logger"
	bbolt "go.etcd.io/bbolt"
)

// SaveState persists a room's bounds, base, cursor and carve policy.
func (s *Store) SaveState(room gamedb.DBRef, st grid.State) error {
	data, err := encode(&st)
	if err != nil {
		return fmt.Errorf("boltstore: encode grid state #%d: %w", room, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGridMeta).Put(refKey(room), data)
	})
}

// SavePoint persists one point record under the room's nested bucket.
func (s *Store) SavePoint(room gamedb.DBRef, c grid.Coord, p grid.Point) error {
	data, err := encode(&p)
	if err != nil {
		return fmt.Errorf("boltstore: encode grid point %s #%d: %w", c, room, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketGridPoints).CreateBucketIfNotExists(refKey(room))
		if err != nil {
			return err
		}
		return b.Put(coordKey(c), data)
	})
}

// DeleteGrid removes a room's grid state and all of its points.
func (s *Store) DeleteGrid(room gamedb.DBRef) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketGridMeta).Delete(refKey(room)); err != nil {
			return err
		}
		pts := tx.Bucket(bucketGridPoints)
		if pts.Bucket(refKey(room)) == nil {
			return nil
		}
		return pts.DeleteBucket(refKey(room))
	})
}

// LoadGrids reads every stored grid into reg.
func (s *Store) LoadGrids(reg *grid.Registry) error {
	count := 0
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		pts := tx.Bucket(bucketGridPoints)
		return tx.Bucket(bucketGridMeta).ForEach(func(k, v []byte) error {
			ref := refFromKey(k)
			st, err := decode[grid.State](v)
			if err != nil {
				return fmt.Errorf("decode grid state #%d: %w", ref, err)
			}
			room := grid.NewRoom(ref)
			room.State = *st
			if b := pts.Bucket(k); b != nil {
				err := b.ForEach(func(ck, cv []byte) error {
					p, err := decode[grid.Point](cv)
					if err != nil {
						return fmt.Errorf("decode grid point #%d: %w", ref, err)
					}
					room.Points[coordFromKey(ck)] = p
					return nil
				})
				if err != nil {
					return err
				}
			}
			reg.Add(room)
			count++
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("boltstore: load grids: %w", err)
	}
	logger.Log.Printf("boltstore: loaded %d grid rooms", count)
	return nil
}

var _ grid.Store = (*Store)(nil)
