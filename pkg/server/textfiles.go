package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/crystal-mush/gridmush/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

// TextFiles holds cached text shown at connection lifecycle points.
// A nil *TextFiles returns empty strings.
type TextFiles struct {
	mu      sync.RWMutex
	Connect string // connect.txt
	Motd    string // motd.txt
	Quit    string // quit.txt
}

var trackedFiles = []struct {
	Name string
	Desc string
}{
	{"connect.txt", "welcome screen"},
	{"motd.txt", "post-login MOTD"},
	{"quit.txt", "quit message"},
}

func (tf *TextFiles) get(field *string) string {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	return *field
}

func (tf *TextFiles) GetConnect() string {
	if tf == nil {
		return ""
	}
	return tf.get(&tf.Connect)
}

func (tf *TextFiles) GetMotd() string {
	if tf == nil {
		return ""
	}
	return tf.get(&tf.Motd)
}

func (tf *TextFiles) GetQuit() string {
	if tf == nil {
		return ""
	}
	return tf.get(&tf.Quit)
}

func loadFile(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return string(data)
}

// LoadTextFiles reads text files from dir. Missing files yield empty strings.
func LoadTextFiles(dir string) *TextFiles {
	tf := &TextFiles{}
	tf.loadAll(dir)
	return tf
}

func (tf *TextFiles) loadAll(dir string) int {
	tf.mu.Lock()
	defer tf.mu.Unlock()

	tf.Connect = loadFile(dir, "connect.txt")
	tf.Motd = loadFile(dir, "motd.txt")
	tf.Quit = loadFile(dir, "quit.txt")

	count := 0
	for _, v := range []string{tf.Connect, tf.Motd, tf.Quit} {
		if v != "" {
			count++
		}
	}
	logger.Log.Printf("Loaded %d text files from %s", count, dir)
	return count
}

// ReloadTextFiles reloads the cached text files from TextDir and returns the
// number of non-empty files.
func (g *Game) ReloadTextFiles() int {
	if g.TextDir == "" || g.Texts == nil {
		return 0
	}
	return g.Texts.loadAll(g.TextDir)
}

// NotifyWizards sends a message to all connected wizards.
func (g *Game) NotifyWizards(msg string) {
	for _, dd := range g.Conns.AllDescriptors() {
		if dd.State != ConnConnected {
			continue
		}
		if Wizard(g, dd.Player) {
			dd.Send(msg)
		}
	}
}

// WatchTextFiles watches TextDir and reloads tracked files when they change.
// The watcher stops when done is closed.
func (g *Game) WatchTextFiles(done <-chan struct{}) {
	if g.TextDir == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Log.Printf("WARNING: Could not start text file watcher: %v", err)
		return
	}

	tracked := make(map[string]string, len(trackedFiles))
	for _, tf := range trackedFiles {
		tracked[tf.Name] = tf.Desc
	}

	if err := watcher.Add(g.TextDir); err != nil {
		logger.Log.Printf("WARNING: Could not watch text directory %s: %v", g.TextDir, err)
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				name := filepath.Base(event.Name)
				desc, ok := tracked[name]
				if !ok {
					continue
				}
				g.ReloadTextFiles()
				logger.Log.Printf("Text file changed: %s (%s)", name, desc)
				g.NotifyWizards(fmt.Sprintf("GAME: Reloaded %s (%s).", name, desc))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Log.Printf("Text file watcher error: %v", err)
			}
		}
	}()
	logger.Log.Printf("Watching text directory for changes: %s", g.TextDir)
}
