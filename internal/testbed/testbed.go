// Package testbed implements the inventory-backed testbed/equipment
// runtime: lazy controller construction, role resolution, and exclusive
// per-device locking over the inventory's arbitrary named-role model.
package testbed

import (
	"sync"

	"devtester/internal/errors"
	"devtester/internal/signalbus"
)

// Row is one equipment's inventory row: its attributes, its declared
// role, and any sub-components nested under it.
type Row struct {
	Name string
	Role string
	Attrs map[string]interface{}
	Model map[string]interface{}
	Components []Row
}

// Factory constructs the controller for an equipment's role, as
// registered in the inventory's Function table. Exceptions are promoted
// to *errors.ConfigError by EquipmentRuntime.Device.
type Factory func(e *EquipmentRuntime) (interface{}, error)

// FunctionTable maps a role name to the factory that builds its
// controller.
type FunctionTable map[string]Factory

// TestbedRuntime is the runtime view of one inventory testbed row: a
// named collection of equipment, each playing zero or more roles.
type TestbedRuntime struct {
	mu sync.Mutex
	Name string
	attrs map[string]interface{}
	equipment []Row
	functions FunctionTable
	bus *signalbus.Bus

	runtimes map[string]*EquipmentRuntime // by equipment Name
	sut *SoftwareRuntime
}

// New constructs a TestbedRuntime from an inventory row.
func New(name string, attrs map[string]interface{}, equipment []Row, functions FunctionTable, bus *signalbus.Bus) *TestbedRuntime {
	return &TestbedRuntime{
		Name: name,
		attrs: attrs,
		equipment: equipment,
		functions: functions,
		bus: bus,
		runtimes: make(map[string]*EquipmentRuntime),
	}
}

// Get implements mapping-style access to testbed attributes (tb["key"]).
func (t *TestbedRuntime) Get(key string) (interface{}, bool) {
	v, ok := t.attrs[key]
	return v, ok
}

// SupportedRoles returns the set of role names backed by this testbed.
func (t *TestbedRuntime) SupportedRoles() []string {
	seen := map[string]bool{}
	var roles []string
	for _, row := range t.equipment {
		if row.Role != "" && !seen[row.Role] {
			seen[row.Role] = true
			roles = append(roles, row.Role)
		}
	}
	return roles
}

// GetRole returns the (cached) EquipmentRuntime for the first equipment
// row with the given role.
func (t *TestbedRuntime) GetRole(role string) (*EquipmentRuntime, error) {
	for _, row := range t.equipment {
		if row.Role == role {
			return t.runtimeFor(row)
		}
	}
	return nil, errors.NewConfigNotFoundError("role:" + role)
}

// GetEquipment returns the (cached) EquipmentRuntime for a named device
// regardless of role; role, if non-empty, additionally filters by role
// ("unspecified" is the default when no role is given).
func (t *TestbedRuntime) GetEquipment(name, role string) (*EquipmentRuntime, error) {
	for _, row := range t.equipment {
		if row.Name != name {
			continue
		}
		if role != "" && role != "unspecified" && row.Role != role {
			continue
		}
		return t.runtimeFor(row)
	}
	return nil, errors.NewConfigNotFoundError("equipment:" + name)
}

// DUT returns the EquipmentRuntime playing the DUT role.
func (t *TestbedRuntime) DUT() (*EquipmentRuntime, error) { return t.GetRole("DUT") }

// SoftwareRuntime is the runtime view of a software-under-test row.
// Unlike an EquipmentRuntime it drives no controller; it only carries the
// package's attributes (version, build artifacts, install location).
type SoftwareRuntime struct {
	row Row
}

// Name returns the software package's inventory name.
func (s *SoftwareRuntime) Name() string { return s.row.Name }

// Attr looks up a software attribute.
func (s *SoftwareRuntime) Attr(key string) (interface{}, bool) {
	v, ok := s.row.Attrs[key]
	return v, ok
}

// Version returns the "version" attribute, or "" if none was recorded.
func (s *SoftwareRuntime) Version() string {
	if v, ok := s.row.Attrs["version"].(string); ok {
		return v
	}
	return ""
}

// SUT returns the (cached) SoftwareRuntime for the SUT role. A testbed
// with no SUT row defined is a configuration error.
func (t *TestbedRuntime) SUT() (*SoftwareRuntime, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sut != nil {
		return t.sut, nil
	}
	for _, row := range t.equipment {
		if row.Role == "SUT" {
			t.sut = &SoftwareRuntime{row: row}
			return t.sut, nil
		}
	}
	return nil, errors.NewConfigNotFoundError("role:SUT")
}

func (t *TestbedRuntime) runtimeFor(row Row) (*EquipmentRuntime, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.runtimes[row.Name]; ok {
		return r, nil
	}
	r := newEquipmentRuntime(t, row)
	t.runtimes[row.Name] = r
	return r, nil
}

// Finalize closes every cached EquipmentRuntime.
func (t *TestbedRuntime) Finalize() error {
	t.mu.Lock()
	runtimes := make([]*EquipmentRuntime, 0, len(t.runtimes))
	for _, r := range t.runtimes {
		runtimes = append(runtimes, r)
	}
	t.mu.Unlock()

	var firstErr error
	for _, r := range runtimes {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
