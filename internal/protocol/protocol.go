// Package protocol holds the persona text prepended to every generation
// call. The file is reloaded live so the operator can tune the voice
// without a restart.
package protocol

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/onboardrbot/onboardrbot/internal/logging"
)

const fallback = "You are ONBOARDR - help bots launch tokens on BASE."

type Protocol struct {
	path string
	log  *logging.Logger

	mu   sync.RWMutex
	text string
}

func Load(path string, log *logging.Logger) *Protocol {
	p := &Protocol{path: path, log: log.With("module", "protocol")}
	p.reload()
	return p
}

func (p *Protocol) Text() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.text
}

func (p *Protocol) reload() {
	b, err := os.ReadFile(p.path)
	if err != nil || len(strings.TrimSpace(string(b))) == 0 {
		p.mu.Lock()
		p.text = fallback
		p.mu.Unlock()
		return
	}
	p.mu.Lock()
	p.text = string(b)
	p.mu.Unlock()
}

// Watch reloads the protocol file on changes until ctx is done. Watching
// the directory rather than the file survives editor rename-on-save.
func (p *Protocol) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(p.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					p.reload()
					p.log.Info("protocol reloaded", "path", p.path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				p.log.Warn("protocol watch error", "err", err)
			}
		}
	}()
	return nil
}
