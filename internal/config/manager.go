package config

import (
	"errors"
	"fmt"

	"github.com/miswired/esp32-radar-sub000/internal/logger"
	"github.com/miswired/esp32-radar-sub000/internal/store"
)

// StoreKey is the store key holding the configuration record.
const StoreKey = "config"

// ErrNotFound is returned by ReadRecord when no record has been persisted.
var ErrNotFound = errors.New("config: record not found")

// ErrStore wraps persistence failures returned by Save.
var ErrStore = errors.New("config: store error")

// LoadOutcome reports how Load obtained the live record.
type LoadOutcome string

const (
	LoadedFromStore       LoadOutcome = "loaded"
	LoadedDefaultsMissing LoadOutcome = "defaults (no record)"
	LoadedDefaultsCorrupt LoadOutcome = "defaults (corrupt record)"
)

// ReadRecord reads and validates the persisted record.
// It returns ErrNotFound or an error wrapping ErrCorrupt instead of a
// partially valid record.
func ReadRecord(s store.Store) (Config, error) {
	data, err := s.Get(StoreKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Config{}, ErrNotFound
		}
		return Config{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return Decode(data)
}

// Manager is the sole owner and writer of the configuration record.
// It is not safe for concurrent use; the control loop serializes access.
type Manager struct {
	store    store.Store
	defaults func() Config
	cfg      Config
}

// NewManager creates a Manager over s. defaults builds the fallback record
// (compiled defaults plus any provisioning overlay); nil selects Defaults.
func NewManager(s store.Store, defaults func() Config) *Manager {
	if defaults == nil {
		defaults = Defaults
	}
	return &Manager{store: s, defaults: defaults, cfg: defaults()}
}

// Load reads the persisted record. A missing or corrupt record is replaced
// by the defaults, which are persisted immediately. The returned error is
// non-nil only when that re-persist fails; the defaults are live either way.
func (m *Manager) Load() (LoadOutcome, error) {
	cfg, err := ReadRecord(m.store)
	if err == nil {
		m.cfg = cfg
		logger.Infof("config: loaded %d byte record", RecordSize)
		return LoadedFromStore, nil
	}

	outcome := LoadedDefaultsMissing
	if errors.Is(err, ErrCorrupt) {
		outcome = LoadedDefaultsCorrupt
		logger.Warnf("config: %v, falling back to defaults", err)
	} else {
		logger.Infof("config: no stored record, using defaults")
	}

	m.cfg = m.defaults()
	if err := m.Save(m.cfg); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// Save validates, encodes and persists cfg as the whole record, then makes
// it live. On failure the previous record stays live and in the store.
func (m *Manager) Save(cfg Config) error {
	data, err := Encode(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := m.store.Put(StoreKey, data); err != nil {
		logger.Errorf("config: save failed: %v", err)
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	m.cfg = cfg
	return nil
}

// Get returns a copy of the live configuration.
func (m *Manager) Get() Config {
	return m.cfg
}

// ApplyPatch merges the fields present in p into the live record and
// persists the result. See Patch for the acceptance rules.
func (m *Manager) ApplyPatch(p Patch) (Result, error) {
	next, err := p.apply(m.cfg)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Changed:         next != m.cfg,
		RestartRequired: next.WiFiSSID != m.cfg.WiFiSSID || next.WiFiPassword != m.cfg.WiFiPassword,
	}
	if !res.Changed {
		return res, nil
	}
	if err := m.Save(next); err != nil {
		return Result{}, err
	}
	logger.Infof("config: saved (restart required: %v)", res.RestartRequired)
	return res, nil
}

// SetPasswordHash stores the session password hash.
func (m *Manager) SetPasswordHash(hash string) error {
	next := m.cfg
	next.PasswordHash = hash
	return m.Save(next)
}

// ClearPassword removes the session password, returning the device to the
// unconfigured state.
func (m *Manager) ClearPassword() error {
	if m.cfg.PasswordHash == "" {
		return nil
	}
	return m.SetPasswordHash("")
}

// PasswordHash returns the stored session password hash.
func (m *Manager) PasswordHash() string {
	return m.cfg.PasswordHash
}

// FactoryReset erases the store and persists fresh defaults. The caller is
// expected to restart the device afterwards.
func (m *Manager) FactoryReset() error {
	if err := m.store.Erase(StoreKey); err != nil {
		return fmt.Errorf("%w: erase: %v", ErrStore, err)
	}
	logger.Warnf("config: factory reset")
	return m.Save(m.defaults())
}
