// Package service is the facade the CLI and the control server share: one
// object owning the capture orchestrator, the backend selector and a
// host-facing last-error mirror. The selector sits above the orchestrator:
// every screenshot and record request walks its fallback chain, so native
// duplication losing the display falls through to an external tool, the
// remote bridge or a simulated hotkey press.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipdeck/clipdeck/internal/backend"
	"github.com/clipdeck/clipdeck/internal/capture"
	"github.com/clipdeck/clipdeck/internal/config"
	"github.com/clipdeck/clipdeck/internal/mediainfo"
	"github.com/clipdeck/clipdeck/internal/notify"
	"github.com/clipdeck/clipdeck/internal/recorder"
)

// ErrNoBackend means every backend in the capability's fallback chain is
// unavailable on this machine.
var ErrNoBackend = errors.New("no capture backend available")

const (
	// toolTimeout bounds one external screenshot-tool invocation.
	toolTimeout = 15 * time.Second

	// bridgeTimeout bounds the bridge handshake and each record request.
	bridgeTimeout = 10 * time.Second
)

// Service exposes the capture operations to the command layer and the
// control server.
type Service interface {
	TakeScreenshot(contextName string) (string, error)
	StartRecording(contextName string) (*recorder.Session, error)
	StopRecording() (string, error)
	CancelRecording() error

	Status() Status
	Backends() []backend.Descriptor
	RefreshBackends()
	ProbeRecording(path string) (*mediainfo.Info, error)

	Config() *config.Config
	LastError() string
}

// Status is a point-in-time snapshot of the recording lifecycle.
type Status struct {
	State     recorder.State    `json:"state"`
	Session   *recorder.Session `json:"session,omitempty"`
	LastError string            `json:"last_error,omitempty"`
}

// orchestrator is the slice of recorder.Orchestrator the service uses.
type orchestrator interface {
	TakeScreenshot(contextName string) (string, error)
	StartRecording(contextName string) (*recorder.Session, error)
	StopRecording() (string, error)
	CancelRecording() error
	State() recorder.State
	Session() *recorder.Session
}

// backendSelector is the slice of backend.Selector the dispatcher uses.
type backendSelector interface {
	Detect() []backend.Descriptor
	Refresh()
	ScreenshotChain() []backend.Descriptor
	RecordChain() []backend.Descriptor
}

// bridgeClient is one connected remote broadcast-tool session.
type bridgeClient interface {
	StartRecord() error
	StopRecord() (string, error)
	Close() error
}

type service struct {
	cfg      *config.Config
	orch     orchestrator
	selector backendSelector

	runTool     func(tool, outputPath string) error
	pressHotkey func(combo string) error
	dialBridge  func(addr, password string) (bridgeClient, error)

	// extMu guards the externally driven recording, the one case where the
	// session lives outside the orchestrator's state machine.
	extMu      sync.Mutex
	extBackend string
	extSession *recorder.Session
	bridge     bridgeClient

	errMu     sync.RWMutex
	lastError string
}

// New wires a service over the native orchestrator and the built-in backend
// chains. The notifier may be nil; status messages then go to slog.
func New(cfg *config.Config, notifier notify.Notifier) Service {
	return &service{
		cfg:      cfg,
		orch:     recorder.New(cfg, notifier),
		selector: backend.NewSelector(cfg),
		runTool: func(tool, outputPath string) error {
			return backend.RunScreenshotTool(tool, outputPath, toolTimeout)
		},
		pressHotkey: backend.PressHotkey,
		dialBridge: func(addr, password string) (bridgeClient, error) {
			return backend.DialBridge(addr, password, bridgeTimeout)
		},
	}
}

func (s *service) TakeScreenshot(contextName string) (string, error) {
	path, err := s.takeScreenshot(contextName)
	s.recordError(err)
	return path, err
}

// takeScreenshot walks the screenshot fallback chain. Only errors meaning
// duplication itself is unavailable fall through to the next backend;
// content-level failures (black frames, an unwritable output directory)
// abort the request so the host sees the real reason.
func (s *service) takeScreenshot(contextName string) (string, error) {
	if !s.cfg.Capture.Enabled {
		return "", recorder.ErrCaptureDisabled
	}

	chain := s.selector.ScreenshotChain()
	if len(chain) == 0 {
		return "", ErrNoBackend
	}

	var lastErr error
	for _, d := range chain {
		switch d.Name {
		case backend.NameNative:
			path, err := s.orch.TakeScreenshot(contextName)
			if err == nil {
				return path, nil
			}
			if !duplicationUnavailable(err) {
				return "", err
			}
			slog.Warn("native screenshot unavailable, falling back", "error", err)
			lastErr = err

		case backend.NameScreenshotTool:
			path, err := recorder.OutputPath(s.cfg.Output.Directory, contextName, s.cfg.ImageExtension(), time.Now())
			if err != nil {
				return "", err
			}
			if err := s.runTool(s.cfg.Tools.ScreenshotTool, path); err != nil {
				slog.Warn("screenshot tool failed, falling back", "error", err)
				lastErr = err
				continue
			}
			slog.Info("screenshot taken via external tool", "output", path)
			return path, nil

		case backend.NameHotkey:
			if err := s.pressHotkey(s.cfg.Hotkeys.Screenshot); err != nil {
				lastErr = err
				continue
			}
			// The listening capture utility owns the output path.
			slog.Info("screenshot hotkey pressed", "combo", s.cfg.Hotkeys.Screenshot)
			return "", nil
		}
	}
	return "", fmt.Errorf("all screenshot backends failed: %w", lastErr)
}

func (s *service) StartRecording(contextName string) (*recorder.Session, error) {
	session, err := s.startRecording(contextName)
	s.recordError(err)
	return session, err
}

func (s *service) startRecording(contextName string) (*recorder.Session, error) {
	if !s.cfg.Capture.Enabled {
		return nil, recorder.ErrCaptureDisabled
	}
	if s.externalSession() != nil {
		return nil, recorder.ErrAlreadyRecording
	}

	chain := s.selector.RecordChain()
	if len(chain) == 0 {
		return nil, ErrNoBackend
	}

	var lastErr error
	for _, d := range chain {
		switch d.Name {
		case backend.NameNative:
			session, err := s.orch.StartRecording(contextName)
			if err == nil {
				return session, nil
			}
			if !duplicationUnavailable(err) {
				return nil, err
			}
			slog.Warn("native recording unavailable, falling back", "error", err)
			lastErr = err

		case backend.NameBridge:
			session, err := s.startBridgeRecording(contextName)
			if err == nil {
				return session, nil
			}
			slog.Warn("bridge recording failed, falling back", "error", err)
			lastErr = err

		case backend.NameHotkey:
			if err := s.pressHotkey(s.cfg.Hotkeys.Record); err != nil {
				lastErr = err
				continue
			}
			session := s.adoptExternalSession(backend.NameHotkey, contextName, nil)
			slog.Info("recording started via hotkey", "session", session.ID)
			return session, nil
		}
	}
	return nil, fmt.Errorf("all recording backends failed: %w", lastErr)
}

func (s *service) startBridgeRecording(contextName string) (*recorder.Session, error) {
	b, err := s.dialBridge(s.cfg.Bridge.Address, s.cfg.Bridge.Password)
	if err != nil {
		return nil, err
	}
	if err := b.StartRecord(); err != nil {
		b.Close()
		return nil, err
	}

	session := s.adoptExternalSession(backend.NameBridge, contextName, b)
	slog.Info("recording started via bridge", "session", session.ID, "bridge", s.cfg.Bridge.Address)
	return session, nil
}

func (s *service) StopRecording() (string, error) {
	path, err := s.stopRecording()
	s.recordError(err)
	return path, err
}

func (s *service) stopRecording() (string, error) {
	s.extMu.Lock()
	name, b := s.extBackend, s.bridge
	s.extMu.Unlock()

	switch name {
	case backend.NameBridge:
		path, err := b.StopRecord()
		b.Close()
		s.clearExternalSession()
		if err != nil {
			return "", err
		}
		return path, nil

	case backend.NameHotkey:
		err := s.pressHotkey(s.cfg.Hotkeys.Record)
		s.clearExternalSession()
		// The listening utility owns the output path.
		return "", err

	default:
		return s.orch.StopRecording()
	}
}

func (s *service) CancelRecording() error {
	err := s.cancelRecording()
	s.recordError(err)
	return err
}

func (s *service) cancelRecording() error {
	s.extMu.Lock()
	name, b := s.extBackend, s.bridge
	s.extMu.Unlock()

	switch name {
	case backend.NameBridge:
		// The bridge protocol has no discard; stop and ignore the file.
		_, err := b.StopRecord()
		b.Close()
		s.clearExternalSession()
		return err

	case backend.NameHotkey:
		err := s.pressHotkey(s.cfg.Hotkeys.Record)
		s.clearExternalSession()
		return err

	default:
		return s.orch.CancelRecording()
	}
}

func (s *service) Status() Status {
	if ext := s.externalSession(); ext != nil {
		return Status{
			State:     recorder.StateRecording,
			Session:   ext,
			LastError: s.LastError(),
		}
	}
	return Status{
		State:     s.orch.State(),
		Session:   s.orch.Session(),
		LastError: s.LastError(),
	}
}

func (s *service) Backends() []backend.Descriptor {
	return s.selector.Detect()
}

func (s *service) RefreshBackends() {
	slog.Debug("re-detecting capture backends")
	s.selector.Refresh()
}

func (s *service) ProbeRecording(path string) (*mediainfo.Info, error) {
	info, err := mediainfo.Probe(path)
	s.recordError(err)
	return info, err
}

func (s *service) Config() *config.Config {
	return s.cfg
}

// LastError returns the most recent operation failure, or "" after a
// successful operation.
func (s *service) LastError() string {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.lastError
}

// duplicationUnavailable reports whether a native capture error means the
// display cannot be duplicated at all, which is what the fallback chain
// exists for.
func duplicationUnavailable(err error) bool {
	return errors.Is(err, capture.ErrDuplicationUnsupported) ||
		errors.Is(err, recorder.ErrExclusiveFullscreen)
}

func (s *service) adoptExternalSession(backendName, contextName string, b bridgeClient) *recorder.Session {
	session := &recorder.Session{
		ID:        uuid.NewString(),
		Context:   contextName,
		StartedAt: time.Now(),
	}
	s.extMu.Lock()
	s.extBackend = backendName
	s.extSession = session
	s.bridge = b
	s.extMu.Unlock()
	return session
}

func (s *service) externalSession() *recorder.Session {
	s.extMu.Lock()
	defer s.extMu.Unlock()
	if s.extSession == nil {
		return nil
	}
	c := *s.extSession
	return &c
}

func (s *service) clearExternalSession() {
	s.extMu.Lock()
	s.extBackend = ""
	s.extSession = nil
	s.bridge = nil
	s.extMu.Unlock()
}

// recordError mirrors the outcome of the last operation. A nil error clears
// the mirror so stale failures do not outlive a later success.
func (s *service) recordError(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if err != nil {
		s.lastError = err.Error()
		return
	}
	s.lastError = ""
}
