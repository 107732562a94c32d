package boltstore

import (
	"encoding/binary"
	"strings"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/grid"
)

var (
	bucketMeta       = []byte("meta")
	bucketObjects    = []byte("objects")
	bucketPlayers    = []byte("players")
	bucketGridMeta   = []byte("gridmeta")
	bucketGridPoints = []byte("gridpoints") // holds one nested bucket per room

	allBuckets = [][]byte{bucketMeta, bucketObjects, bucketPlayers, bucketGridMeta, bucketGridPoints}
)

var (
	metaVersion = []byte("version")
	metaSize    = []byte("size")
)

// Numeric keys are big-endian with a bias so that negative values (Nothing,
// western and northern coordinates) sort ahead of positive ones.
const keyBias = 1 << 32

func putBiased(b []byte, n int) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(int64(n)+keyBias))
}

func biased(b []byte) int {
	return int(int64(binary.BigEndian.Uint64(b)) - keyBias)
}

func refKey(ref gamedb.DBRef) []byte { return putBiased(make([]byte, 0, 8), int(ref)) }

func refFromKey(k []byte) gamedb.DBRef { return gamedb.DBRef(biased(k)) }

// coordKey orders points row by row, so a cursor walks a room from its
// north-west corner.
func coordKey(c grid.Coord) []byte {
	return putBiased(putBiased(make([]byte, 0, 16), c.Y), c.X)
}

func coordFromKey(k []byte) grid.Coord {
	return grid.Coord{X: biased(k[8:16]), Y: biased(k[:8])}
}

func playerKey(name string) []byte { return []byte(strings.ToLower(name)) }

func countValue(n int) []byte { return binary.BigEndian.AppendUint64(nil, uint64(n)) }

func countFromValue(v []byte) int { return int(binary.BigEndian.Uint64(v)) }
