package grid

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisPositionsTestSuite struct {
	suite.Suite
	client *redis.Client
	mock   redismock.ClientMock
	table  *RedisPositions
}

func (s *RedisPositionsTestSuite) SetupTest() {
	s.client, s.mock = redismock.NewClientMock()
	s.table = NewRedisPositions(s.client, time.Hour)
}

func (s *RedisPositionsTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func TestRedisPositionsTestSuite(t *testing.T) {
	suite.Run(t, new(RedisPositionsTestSuite))
}

func (s *RedisPositionsTestSuite) TestSet() {
	ctx := context.Background()

	s.mock.ExpectSet("gridpos:7", `{"room":10,"x":2,"y":-1}`, time.Hour).SetVal("OK")
	err := s.table.Set(ctx, 7, Position{Room: 10, Coord: Coord{2, -1}})
	s.NoError(err)

	s.mock.ExpectSet("gridpos:7", `{"room":10,"x":3,"y":-1}`, time.Hour).SetErr(errors.New("redis error"))
	err = s.table.Set(ctx, 7, Position{Room: 10, Coord: Coord{3, -1}})
	s.Error(err)
}

func (s *RedisPositionsTestSuite) TestGet() {
	ctx := context.Background()

	s.mock.ExpectGet("gridpos:7").SetVal(`{"room":10,"x":2,"y":-1}`)
	pos, ok, err := s.table.Get(ctx, 7)
	s.NoError(err)
	s.True(ok)
	s.Equal(Position{Room: 10, Coord: Coord{2, -1}}, pos)

	s.mock.ExpectGet("gridpos:8").RedisNil()
	_, ok, err = s.table.Get(ctx, 8)
	s.NoError(err)
	s.False(ok)

	s.mock.ExpectGet("gridpos:9").SetVal("not json")
	_, _, err = s.table.Get(ctx, 9)
	s.Error(err)

	s.mock.ExpectGet("gridpos:9").SetErr(errors.New("redis error"))
	_, _, err = s.table.Get(ctx, 9)
	s.Error(err)
}

func (s *RedisPositionsTestSuite) TestClear() {
	ctx := context.Background()

	s.mock.ExpectDel("gridpos:7").SetVal(1)
	s.NoError(s.table.Clear(ctx, 7))

	s.mock.ExpectDel("gridpos:7").SetErr(errors.New("redis error"))
	s.Error(s.table.Clear(ctx, 7))
}
