package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/crystal-mush/gridmush/pkg/boltstore"
	"github.com/crystal-mush/gridmush/pkg/grid"
	"github.com/crystal-mush/gridmush/pkg/logger"
	"github.com/crystal-mush/gridmush/pkg/server"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	// A .env file is optional.
	_ = godotenv.Load()

	boltPath := flag.String("bolt", envDefault("MUSH_BOLT", "data/gridmush.bolt"), "Path to bbolt persistent database (env: MUSH_BOLT)")
	confFile := flag.String("conf", envDefault("MUSH_CONF", ""), "Path to game config file (env: MUSH_CONF)")
	port := flag.Int("port", 0, "TCP port to listen on, overrides config (env: MUSH_PORT)")
	textDir := flag.String("textdir", envDefault("MUSH_TEXTDIR", ""), "Path to text files directory (env: MUSH_TEXTDIR)")
	sqlDBPath := flag.String("sqldb", envDefault("MUSH_SQLDB", ""), "Path to SQLite visit journal (env: MUSH_SQLDB)")
	redisAddr := flag.String("redis", envDefault("MUSH_REDIS", ""), "Redis address for navigator positions (env: MUSH_REDIS)")
	godPass := flag.String("godpass", envDefault("MUSH_GODPASS", ""), "Wizard (#1) password for a new database (env: MUSH_GODPASS)")
	backup := flag.String("backup", "", "Write a snapshot of the bolt database to this path and exit")
	flag.Parse()

	var gc *server.GameConf
	if *confFile != "" {
		var err error
		gc, err = server.LoadGameConf(*confFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading game config: %v\n", err)
			os.Exit(1)
		}
	} else {
		gc = server.DefaultGameConf()
	}
	logger.Init(gc.LogLevel, gc.LogFormat)
	logger.Log.Printf("Welcome to %s", server.VersionString())

	if *port == 0 {
		if envPort := os.Getenv("MUSH_PORT"); envPort != "" {
			if p, err := strconv.Atoi(envPort); err == nil {
				*port = p
			}
		}
	}
	if *port != 0 {
		gc.Port = *port
	}
	if *textDir != "" {
		gc.TextDir = *textDir
	}
	if *sqlDBPath != "" {
		gc.SQLDatabase = *sqlDBPath
		gc.SQLEnabled = true
	}
	if *redisAddr != "" {
		gc.RedisAddr = *redisAddr
	}

	store, err := boltstore.Open(*boltPath)
	if err != nil {
		logger.Log.Fatalf("Error opening bolt database: %v", err)
	}
	defer store.Close()

	if *backup != "" {
		if err := store.Backup(*backup); err != nil {
			logger.Log.Fatalf("Backup failed: %v", err)
		}
		return
	}

	if store.HasData() {
		if err := store.LoadAll(); err != nil {
			logger.Log.Fatalf("Error loading from bolt: %v", err)
		}
	} else {
		if *godPass == "" {
			logger.Log.Fatalf("New database: set the wizard password with -godpass or MUSH_GODPASS")
		}
		db, err := server.MinimalWorld(*godPass)
		if err != nil {
			logger.Log.Fatalf("Error building starting world: %v", err)
		}
		if err := store.Seed(db); err != nil {
			logger.Log.Fatalf("Error seeding bolt: %v", err)
		}
	}

	game := server.NewGame(store.DB())
	if err := store.LoadGrids(game.Grids); err != nil {
		logger.Log.Fatalf("Error loading grids: %v", err)
	}
	game.AttachStore(store)
	game.ApplyGameConf(gc)
	game.Metrics = server.NewMetrics(game, time.Now())

	if gc.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: gc.RedisAddr, DB: gc.RedisDB})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Log.Printf("WARNING: redis %s unreachable (%v), keeping positions in memory", gc.RedisAddr, err)
			client.Close()
		} else {
			game.SetPositions(grid.NewRedisPositions(client, gc.PositionTTLDuration()))
			defer client.Close()
			logger.Log.Printf("Navigator positions in redis at %s (ttl %s)", gc.RedisAddr, gc.PositionTTLDuration())
		}
	}

	if gc.SQLEnabled && gc.SQLDatabase != "" {
		sqlStore, err := server.OpenSQLStore(gc.SQLDatabase, gc.SQLQueryLimit, gc.SQLTimeout)
		if err != nil {
			logger.Log.Printf("WARNING: failed to open SQL database %s: %v", gc.SQLDatabase, err)
		} else {
			game.SQLDB = sqlStore
			defer sqlStore.Close()
			logger.Log.Printf("Visit journal enabled, database: %s", sqlStore.Path())
		}
	}

	if gc.TextDir != "" {
		game.TextDir = gc.TextDir
		game.Texts = server.LoadTextFiles(gc.TextDir)
	}

	cfg := server.DefaultConfig()
	cfg.Port = gc.Port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(game, cfg)
	logger.Log.Printf("Starting %s on port %d...", gc.MudName, cfg.Port)
	if err := srv.Start(ctx); err != nil {
		logger.Log.Fatalf("Server error: %v", err)
	}
	logger.Log.Printf("Shut down cleanly.")
}
