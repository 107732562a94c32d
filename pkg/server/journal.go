package server

import (
	"context"
	"sync"
	"time"

	"github.com/crystal-mush/gridmush/pkg/events"
	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/grid"
	"github.com/crystal-mush/gridmush/pkg/logger"
)

// VisitJournal is a global event bus subscriber that writes grid arrivals
// to SQLite so a point's history outlives its in-memory occupant log.
type VisitJournal struct {
	sqldb  *SQLStore
	mu     sync.Mutex
	closed bool
}

// NewVisitJournal creates a journal over the game's SQL store and registers
// it on the event bus. It returns nil when no store is configured.
func NewVisitJournal(game *Game) *VisitJournal {
	if game.SQLDB == nil {
		return nil
	}
	vj := &VisitJournal{sqldb: game.SQLDB}
	game.EventBus.Observe(vj)
	logger.Log.Printf("journal: visit journal registered on event bus")
	return vj
}

// Receive implements events.Subscriber. Only grid arrivals are stored.
func (vj *VisitJournal) Receive(ev events.Event) {
	rec, ok := visitFromEvent(ev)
	if !ok {
		return
	}
	if _, err := vj.sqldb.InsertVisit(context.Background(), rec); err != nil {
		logger.Log.WithError(err).Warn("journal: insert failed")
	}
}

func visitFromEvent(ev events.Event) (VisitRecord, bool) {
	if !ev.IsGridArrival() {
		return VisitRecord{}, false
	}
	x, okX := ev.Data["x"].(int)
	y, okY := ev.Data["y"].(int)
	if !okX || !okY {
		return VisitRecord{}, false
	}
	name, _ := ev.Data["name"].(string)
	dir, _ := ev.Data["direction"].(string)
	return VisitRecord{
		Room:      ev.Room,
		Navigator: ev.Source,
		Name:      name,
		Coord:     grid.Coord{X: x, Y: y},
		Direction: dir,
		At:        time.Now(),
	}, true
}

// RecentVisits returns the newest journaled arrivals at a point.
func (vj *VisitJournal) RecentVisits(ctx context.Context, room gamedb.DBRef, c grid.Coord, limit int) ([]VisitRecord, error) {
	return vj.sqldb.RecentVisits(ctx, room, c, limit)
}

// Closed implements events.Subscriber.
func (vj *VisitJournal) Closed() bool {
	vj.mu.Lock()
	defer vj.mu.Unlock()
	return vj.closed
}

// Close marks the journal as closed so the bus stops delivering events.
func (vj *VisitJournal) Close() {
	vj.mu.Lock()
	defer vj.mu.Unlock()
	vj.closed = true
}

// StartRetentionCleanup starts an hourly goroutine that purges old visits.
// It stops when ctx is cancelled.
func StartRetentionCleanup(ctx context.Context, sqldb *SQLStore, retention time.Duration) {
	if sqldb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			purged, err := sqldb.PurgeOldVisits(retention)
			if err != nil {
				logger.Log.Printf("journal cleanup error: %v", err)
				continue
			}
			if purged == 0 {
				continue
			}
			logger.Log.Printf("journal: purged %d old visits", purged)
			if err := sqldb.Checkpoint(); err != nil {
				logger.Log.Printf("journal checkpoint error: %v", err)
			}
		}
	}()
}
