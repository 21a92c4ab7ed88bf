// Package backend detects the capture paths available on this machine and
// keeps two independent fallback chains, one for screenshots and one for
// recordings. Native duplication is preferred; an external tool or a
// simulated hotkey press covers machines where duplication is unavailable.
package backend

import (
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/clipdeck/clipdeck/internal/capture"
	"github.com/clipdeck/clipdeck/internal/config"
)

// probeTimeout bounds a single remote probe. Selecting a backend never
// blocks longer than this.
const probeTimeout = 3 * time.Second

// Backend names as reported by Detect.
const (
	NameNative         = "native"
	NameScreenshotTool = "screenshot-tool"
	NameBridge         = "obs-bridge"
	NameHotkey         = "hotkey"
)

// Descriptor describes one capture backend and its cached probe result.
type Descriptor struct {
	Name       string `json:"name"`
	Screenshot bool   `json:"screenshot"`
	Record     bool   `json:"record"`
	Available  bool   `json:"available"`
	Detail     string `json:"detail,omitempty"`
}

// probeFunc reports availability and an optional human-readable detail.
type probeFunc func(cfg *config.Config) (bool, string)

type definition struct {
	name       string
	screenshot bool
	record     bool
	probe      probeFunc
}

// Selector probes the known backends once and answers capability queries
// from the cached results. Refresh drops the cache when settings change.
type Selector struct {
	cfg  *config.Config
	defs []definition

	mu       sync.Mutex
	probed   bool
	backends []Descriptor
}

// NewSelector builds a selector over the built-in backend definitions, in
// fallback-chain order.
func NewSelector(cfg *config.Config) *Selector {
	return newSelector(cfg, []definition{
		{name: NameNative, screenshot: true, record: true, probe: probeNative},
		{name: NameScreenshotTool, screenshot: true, probe: probeScreenshotTool},
		{name: NameBridge, record: true, probe: probeBridge},
		{name: NameHotkey, screenshot: true, record: true, probe: probeHotkey},
	})
}

func newSelector(cfg *config.Config, defs []definition) *Selector {
	return &Selector{cfg: cfg, defs: defs}
}

// Detect probes every backend once and caches the results. When capture is
// disabled no probe runs at all; everything reports unavailable immediately.
func (s *Selector) Detect() []Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.probed {
		s.backends = s.probeAll()
		s.probed = true
	}

	out := make([]Descriptor, len(s.backends))
	copy(out, s.backends)
	return out
}

// Refresh drops the cached probe results so the next query re-detects.
// Call it when the overlay opens or settings change.
func (s *Selector) Refresh() {
	s.mu.Lock()
	s.probed = false
	s.backends = nil
	s.mu.Unlock()
}

// ScreenshotBackend returns the first available backend in the screenshot
// chain. The second result is false when no backend can take screenshots;
// that is a normal answer, not an error.
func (s *Selector) ScreenshotBackend() (Descriptor, bool) {
	return first(s.ScreenshotChain())
}

// RecordBackend returns the first available backend in the recording chain.
func (s *Selector) RecordBackend() (Descriptor, bool) {
	return first(s.RecordChain())
}

// ScreenshotChain returns the available screenshot backends in fallback
// order. A dispatcher walks it front to back until one fulfills the request.
func (s *Selector) ScreenshotChain() []Descriptor {
	return s.chain(func(d Descriptor) bool { return d.Screenshot })
}

// RecordChain returns the available recording backends in fallback order.
func (s *Selector) RecordChain() []Descriptor {
	return s.chain(func(d Descriptor) bool { return d.Record })
}

func (s *Selector) chain(capable func(Descriptor) bool) []Descriptor {
	var out []Descriptor
	for _, d := range s.Detect() {
		if d.Available && capable(d) {
			out = append(out, d)
		}
	}
	return out
}

func first(chain []Descriptor) (Descriptor, bool) {
	if len(chain) == 0 {
		return Descriptor{}, false
	}
	return chain[0], true
}

func (s *Selector) probeAll() []Descriptor {
	backends := make([]Descriptor, 0, len(s.defs))

	for _, def := range s.defs {
		d := Descriptor{
			Name:       def.name,
			Screenshot: def.screenshot,
			Record:     def.record,
		}
		if !s.cfg.Capture.Enabled {
			d.Detail = "capture disabled"
			backends = append(backends, d)
			continue
		}

		start := time.Now()
		d.Available, d.Detail = def.probe(s.cfg)
		slog.Debug("probed backend",
			"name", def.name,
			"available", d.Available,
			"took", time.Since(start),
		)
		backends = append(backends, d)
	}
	return backends
}

func probeNative(cfg *config.Config) (bool, string) {
	n := capture.NumDisplays()
	if n == 0 {
		return false, "no active displays"
	}
	if cfg.Capture.Display >= n {
		return false, "configured display not present"
	}
	return true, ""
}

func probeScreenshotTool(cfg *config.Config) (bool, string) {
	if cfg.Tools.ScreenshotTool == "" {
		return false, "no screenshot tool configured"
	}
	path, err := exec.LookPath(cfg.Tools.ScreenshotTool)
	if err != nil {
		return false, "not found in PATH"
	}
	return true, path
}

func probeBridge(cfg *config.Config) (bool, string) {
	if cfg.Bridge.Address == "" {
		return false, "no bridge address configured"
	}
	return ProbeBridge(cfg.Bridge.Address, probeTimeout)
}

func probeHotkey(cfg *config.Config) (bool, string) {
	if cfg.Hotkeys.Screenshot == "" && cfg.Hotkeys.Record == "" {
		return false, "no hotkeys configured"
	}
	if err := hotkeySupported(); err != nil {
		return false, err.Error()
	}
	return true, ""
}
