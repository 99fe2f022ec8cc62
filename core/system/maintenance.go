package system

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
)

const defaultMaintenanceMessage = "The application is down for maintenance. Please try again later."

type MaintenanceState struct {
	Enabled    bool       `json:"enabled"`
	Message    string     `json:"message,omitempty"`
	RetryAfter int        `json:"retry_after,omitempty"` // seconds
	Since      *time.Time `json:"since,omitempty"`
}

// Maintenance toggles maintenance mode through a flag file shared by the API and the admin CLI.
type Maintenance struct {
	mu   sync.RWMutex
	path string
}

func NewMaintenance(path string) (*Maintenance, error) {
	if err := vala.BeginValidation().Validate(vala.StringNotEmpty(path, "path")).Check(); err != nil {
		return nil, err
	}
	return &Maintenance{path: path}, nil
}

func (m *Maintenance) Enable(message string, retryAfter int) (MaintenanceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if message == "" {
		message = defaultMaintenanceMessage
	}
	if retryAfter < 0 {
		retryAfter = 0
	}
	since := NowFunc().UTC()
	state := MaintenanceState{Enabled: true, Message: message, RetryAfter: retryAfter, Since: &since}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return MaintenanceState{}, errors.Wrap(err, "marshalling maintenance state")
	}
	if err = os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return MaintenanceState{}, errors.Wrap(err, "creating maintenance directory")
	}
	if err = os.WriteFile(m.path, data, 0o640); err != nil {
		return MaintenanceState{}, errors.Wrap(err, "writing maintenance file")
	}
	return state, nil
}

func (m *Maintenance) Disable() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing maintenance file")
	}
	return nil
}

// Status reads the flag file; a missing file means maintenance is off.
func (m *Maintenance) Status() (MaintenanceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return MaintenanceState{}, nil
		}
		return MaintenanceState{}, errors.Wrap(err, "reading maintenance file")
	}
	state := MaintenanceState{Enabled: true, Message: defaultMaintenanceMessage}
	if len(data) > 0 {
		if err = json.Unmarshal(data, &state); err != nil {
			return MaintenanceState{}, errors.Wrap(err, "parsing maintenance file")
		}
	}
	return state, nil
}
