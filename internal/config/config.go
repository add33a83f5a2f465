// Package config provides configuration management for animcancel.
// Settings live in memory only: defaults, then environment, then flags.
package config

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"

	"animcancel/internal/action"
	"animcancel/internal/automation"
	"animcancel/internal/hotkey"
)

// Settings represents the application configuration
type Settings struct {
	// Trigger is the binding that starts the repeat while held (e.g. "ctrl+Middle Click")
	Trigger string `json:"trigger" yaml:"trigger"`

	// IntervalMs is the delay between the click and the cancel keys, 1..500
	IntervalMs int `json:"interval_ms" yaml:"interval_ms"`

	// CancelKeys are the two keys tapped after each click, in order
	CancelKeys []string `json:"cancel_keys" yaml:"cancel_keys"`

	// KillSwitch is an optional key binding that stops automation (e.g. "Ctrl+Alt+Shift+Esc")
	KillSwitch string `json:"kill_switch,omitempty" yaml:"kill_switch,omitempty"`

	// Tray shows the system tray menu
	Tray bool `json:"tray" yaml:"tray"`

	// API contains the local control API settings
	API APIConfig `json:"api" yaml:"api"`
}

// APIConfig contains the local control API settings
type APIConfig struct {
	// Enabled starts the HTTP control API
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr is the listen address (default: 127.0.0.1:18181)
	Addr string `json:"addr" yaml:"addr"`

	// Token is an optional bearer token for API requests
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
}

// DefaultAPIAddr is the loopback address of the control API.
const DefaultAPIAddr = "127.0.0.1:18181"

// Environment variables read by ApplyEnv.
const (
	EnvTrigger    = "ANIMCANCEL_TRIGGER"
	EnvInterval   = "ANIMCANCEL_INTERVAL_MS"
	EnvCancelKeys = "ANIMCANCEL_CANCEL_KEYS"
	EnvKillSwitch = "ANIMCANCEL_KILL_SWITCH"
	EnvAPIAddr    = "ANIMCANCEL_API_ADDR"
	EnvAPIToken   = "ANIMCANCEL_API_TOKEN"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid settings")

// Default returns Settings with sensible defaults
func Default() Settings {
	return Settings{
		Trigger:    hotkey.Default().String(),
		IntervalMs: automation.DefaultIntervalMs,
		CancelKeys: []string{action.DefaultCancelKeys[0], action.DefaultCancelKeys[1]},
		KillSwitch: "Ctrl+Alt+Shift+Esc",
		Tray:       true,
		API: APIConfig{
			Enabled: false,
			Addr:    DefaultAPIAddr,
		},
	}
}

// ApplyEnv overrides s with the ANIMCANCEL_* variables found by lookup
// (usually os.LookupEnv). Setting ANIMCANCEL_API_ADDR also enables the API.
func ApplyEnv(s *Settings, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvTrigger); ok {
		s.Trigger = v
	}
	if v, ok := lookup(EnvInterval); ok {
		ms, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvInterval, v)
		}
		s.IntervalMs = ms
	}
	if v, ok := lookup(EnvCancelKeys); ok {
		s.CancelKeys = SplitKeys(v)
	}
	if v, ok := lookup(EnvKillSwitch); ok {
		s.KillSwitch = v
	}
	if v, ok := lookup(EnvAPIAddr); ok && v != "" {
		s.API.Enabled = true
		s.API.Addr = v
	}
	if v, ok := lookup(EnvAPIToken); ok {
		s.API.Token = v
	}
	return nil
}

// SplitKeys splits a comma separated key list ("x,z").
func SplitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Validate checks that every binding and key can be resolved.
func (s Settings) Validate() error {
	if _, err := hotkey.Parse(s.Trigger); err != nil {
		return fmt.Errorf("%w: trigger: %w", ErrInvalid, err)
	}
	if len(s.CancelKeys) != 2 {
		return fmt.Errorf("%w: need exactly 2 cancel keys, got %d", ErrInvalid, len(s.CancelKeys))
	}
	for _, k := range s.CancelKeys {
		if _, ok := hotkey.KeyCode(k); !ok {
			return fmt.Errorf("%w: unknown cancel key %q", ErrInvalid, k)
		}
	}
	if s.KillSwitch != "" {
		if _, err := hotkey.Parse(s.KillSwitch); err != nil {
			return fmt.Errorf("%w: kill switch: %w", ErrInvalid, err)
		}
	}
	if s.API.Enabled && s.API.Addr == "" {
		return fmt.Errorf("%w: api enabled without an address", ErrInvalid)
	}
	return nil
}

// TriggerBinding returns the parsed trigger.
func (s Settings) TriggerBinding() (hotkey.Binding, error) {
	return hotkey.Parse(s.Trigger)
}

// KillSwitchBinding returns the parsed kill switch, nil when disabled.
func (s Settings) KillSwitchBinding() (*hotkey.Binding, error) {
	if s.KillSwitch == "" {
		return nil, nil
	}
	b, err := hotkey.Parse(s.KillSwitch)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CancelKeyCodes returns the key codes of the cancel keys.
func (s Settings) CancelKeyCodes() []uint16 {
	codes := make([]uint16, 0, len(s.CancelKeys))
	for _, k := range s.CancelKeys {
		if code, ok := hotkey.KeyCode(k); ok {
			codes = append(codes, code)
		}
	}
	return codes
}

// YAML renders the settings with the API token redacted.
func (s Settings) YAML() ([]byte, error) {
	if s.API.Token != "" {
		s.API.Token = "<redacted>"
	}
	return yaml.Marshal(s)
}

func (s Settings) clone() Settings {
	s.CancelKeys = append([]string(nil), s.CancelKeys...)
	return s
}

// Manager holds the live settings
type Manager struct {
	mu        sync.Mutex
	settings  Settings
	onChanged []func(Settings)
}

// NewManager creates a new configuration manager
func NewManager(initial Settings) *Manager {
	return &Manager{settings: initial.clone()}
}

// Get returns a copy of the current settings
func (m *Manager) Get() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.clone()
}

// Set validates and replaces the settings, then runs the change callbacks.
func (m *Manager) Set(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.settings = s.clone()
	callbacks := append([]func(Settings){}, m.onChanged...)
	m.mu.Unlock()

	log.Printf("Config: trigger=%s interval=%dms cancel=%s", s.Trigger, s.IntervalMs, strings.Join(s.CancelKeys, ","))
	for _, fn := range callbacks {
		fn(s.clone())
	}
	return nil
}

// Update applies fn to a copy of the settings and stores the result with Set.
func (m *Manager) Update(fn func(*Settings)) error {
	s := m.Get()
	fn(&s)
	return m.Set(s)
}

// RegisterChangeCallback registers a function to be called when settings change
func (m *Manager) RegisterChangeCallback(fn func(Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = append(m.onChanged, fn)
}
