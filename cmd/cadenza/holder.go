package main

import (
	"sync"

	"github.com/lumehart/cadenza/internal/config"
)

// configHolder hands the latest configuration to batch runs after a hot
// reload without racing the watcher goroutine.
type configHolder struct {
	mu  sync.RWMutex
	cfg *config.Config
}

func newConfigHolder(cfg *config.Config) *configHolder {
	return &configHolder{cfg: cfg}
}

func (h *configHolder) get() *config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func (h *configHolder) set(cfg *config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}
