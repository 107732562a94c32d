package server

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/logger"
	"gopkg.in/yaml.v3"
)

// GameConf holds game-level configuration parameters.
// Supports both YAML (.yaml/.yml) and flat "key value" (.conf) formats.
type GameConf struct {
	// --- Identity ---
	MudName string `yaml:"mud_name"`
	Port    int    `yaml:"port"`

	// --- Key rooms ---
	PlayerStartingRoom int `yaml:"player_starting_room"`
	PlayerStartingHome int `yaml:"player_starting_home"`

	// --- Web ---
	WebEnabled bool   `yaml:"web_enabled"`
	WebPort    int    `yaml:"web_port"`
	WebHost    string `yaml:"web_host"`
	JWTSecret  string `yaml:"jwt_secret"`
	JWTExpiry  int    `yaml:"jwt_expiry"` // seconds

	// --- Visit journal ---
	SQLEnabled     bool   `yaml:"sql_enabled"`
	SQLDatabase    string `yaml:"sql_database"`
	SQLQueryLimit  int    `yaml:"sql_query_limit"`
	SQLTimeout     int    `yaml:"sql_timeout"`     // busy timeout, seconds
	VisitRetention int    `yaml:"visit_retention"` // seconds

	// --- Position tier ---
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	PositionTTL int    `yaml:"position_ttl"` // seconds, 0 = no expiry

	// --- Logging ---
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// --- Files ---
	TextDir string `yaml:"text_dir"`
}

// DefaultGameConf returns the built-in defaults.
func DefaultGameConf() *GameConf {
	return &GameConf{
		MudName:            "GridMUSH",
		Port:               6250,
		PlayerStartingRoom: 0,
		PlayerStartingHome: 0,
		WebEnabled:         false,
		WebPort:            8080,
		JWTExpiry:          86400,
		SQLEnabled:         false,
		SQLDatabase:        "data/visits.sqlite",
		SQLQueryLimit:      100,
		SQLTimeout:         5,
		VisitRetention:     7 * 86400,
		RedisDB:            0,
		PositionTTL:        6 * 3600,
		LogLevel:           "info",
		LogFormat:          "text",
		TextDir:            "text",
	}
}

// LoadGameConf loads a game config file. Format is picked by extension:
//   - .yaml / .yml  -> YAML
//   - anything else -> flat "key value" lines
func LoadGameConf(path string) (*GameConf, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return loadGameConfYAML(path)
	default:
		return loadGameConfFlat(path)
	}
}

func loadGameConfYAML(path string) (*GameConf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	gc := DefaultGameConf()
	if err := yaml.Unmarshal(data, gc); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	gc.resolvePaths(filepath.Dir(path))
	return gc, nil
}

func loadGameConfFlat(path string) (*GameConf, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gc := DefaultGameConf()
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, val := splitKeyVal(line)
		switch strings.ToLower(key) {
		case "mud_name":
			gc.MudName = val
		case "port":
			gc.Port = atoi(val, gc.Port)
		case "player_starting_room":
			gc.PlayerStartingRoom = atoi(val, gc.PlayerStartingRoom)
		case "player_starting_home":
			gc.PlayerStartingHome = atoi(val, gc.PlayerStartingHome)
		case "web_enabled":
			gc.WebEnabled = parseBool(val)
		case "web_port":
			gc.WebPort = atoi(val, gc.WebPort)
		case "web_host":
			gc.WebHost = val
		case "jwt_secret":
			gc.JWTSecret = val
		case "jwt_expiry":
			gc.JWTExpiry = atoi(val, gc.JWTExpiry)
		case "sql_enabled":
			gc.SQLEnabled = parseBool(val)
		case "sql_database":
			gc.SQLDatabase = val
		case "sql_query_limit":
			gc.SQLQueryLimit = atoi(val, gc.SQLQueryLimit)
		case "sql_timeout":
			gc.SQLTimeout = atoi(val, gc.SQLTimeout)
		case "visit_retention":
			gc.VisitRetention = atoi(val, gc.VisitRetention)
		case "redis_addr":
			gc.RedisAddr = val
		case "redis_db":
			gc.RedisDB = atoi(val, gc.RedisDB)
		case "position_ttl":
			gc.PositionTTL = atoi(val, gc.PositionTTL)
		case "log_level":
			gc.LogLevel = val
		case "log_format":
			gc.LogFormat = val
		case "text_dir":
			gc.TextDir = val
		default:
			logger.Log.Printf("gameconf: %s:%d: unknown key %q", path, lineNo, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	gc.resolvePaths(filepath.Dir(path))
	return gc, nil
}

// resolvePaths makes relative file paths relative to the config file.
func (gc *GameConf) resolvePaths(baseDir string) {
	if gc.TextDir != "" && !filepath.IsAbs(gc.TextDir) {
		gc.TextDir = filepath.Join(baseDir, gc.TextDir)
	}
	if gc.SQLDatabase != "" && !filepath.IsAbs(gc.SQLDatabase) {
		gc.SQLDatabase = filepath.Join(baseDir, gc.SQLDatabase)
	}
}

func splitKeyVal(line string) (string, string) {
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' || line[i] == '\t' {
			return line[:i], strings.TrimSpace(line[i+1:])
		}
	}
	return line, ""
}

// ApplyGameConf applies a parsed game config to the Game.
func (g *Game) ApplyGameConf(gc *GameConf) {
	g.Conf = gc
	g.TextDir = gc.TextDir
	logger.Log.Printf("Game config applied: mud_name=%q start_room=#%d start_home=#%d",
		gc.MudName, gc.PlayerStartingRoom, gc.PlayerStartingHome)
}

// StartingRoom returns the configured player starting room.
func (g *Game) StartingRoom() gamedb.DBRef {
	if g.Conf != nil {
		return gamedb.DBRef(g.Conf.PlayerStartingRoom)
	}
	return gamedb.DBRef(0)
}

// StartingHome returns the configured player starting home.
func (g *Game) StartingHome() gamedb.DBRef {
	if g.Conf != nil {
		return gamedb.DBRef(g.Conf.PlayerStartingHome)
	}
	return g.StartingRoom()
}

// MudName returns the configured game name.
func (g *Game) MudName() string {
	if g.Conf != nil && g.Conf.MudName != "" {
		return g.Conf.MudName
	}
	return "GridMUSH"
}

// PositionTTLDuration returns how long a navigator position survives in the
// transient tier.
func (gc *GameConf) PositionTTLDuration() time.Duration {
	return time.Duration(gc.PositionTTL) * time.Second
}

// VisitRetentionDuration returns how long journal rows are kept.
func (gc *GameConf) VisitRetentionDuration() time.Duration {
	if gc.VisitRetention <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(gc.VisitRetention) * time.Second
}

func atoi(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "true" || s == "1" || s == "on"
}
