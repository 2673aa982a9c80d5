package testbed

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"devtester/internal/errors"
	"devtester/internal/signalbus"
)

// EquipmentRuntime is the runtime view of one equipment inventory row:
// its lazily-constructed controller, console, initializer, and the
// sub-component tree beneath it.
type EquipmentRuntime struct {
	tb *TestbedRuntime
	row Row

	mu sync.Mutex
	device interface{}
	initializer interface{}
	console interface{}
	deviceChangeH signalbus.Handle

	// deviceSlot enforces that at most one test case at a time uses this
	// equipment's device slot. Weight 1 makes it behave as a simple
	// exclusive lock; x/sync/semaphore (rather than a plain sync.Mutex)
	// is used so AcquireDevice can honor ctx cancellation while waiting
	// for a busy device.
	deviceSlot *semaphore.Weighted

	parent *EquipmentRuntime
	components []*EquipmentRuntime
}

func newEquipmentRuntime(tb *TestbedRuntime, row Row) *EquipmentRuntime {
	e := &EquipmentRuntime{tb: tb, row: row, deviceSlot: semaphore.NewWeighted(1)}
	for _, c := range row.Components {
		child := newEquipmentRuntime(tb, c)
		child.parent = e
		e.components = append(e.components, child)
	}
	return e
}

// Name returns the equipment's inventory name.
func (e *EquipmentRuntime) Name() string { return e.row.Name }

// Role returns the equipment's declared role.
func (e *EquipmentRuntime) Role() string { return e.row.Role }

// Parent returns the containing equipment if this one is a sub-component,
// or nil at the top level.
func (e *EquipmentRuntime) Parent() *EquipmentRuntime { return e.parent }

// Components returns this equipment's child EquipmentRuntimes.
func (e *EquipmentRuntime) Components() []*EquipmentRuntime { return e.components }

// Model returns a flat attribute view of the equipment-model row.
func (e *EquipmentRuntime) Model() map[string]interface{} { return e.row.Model }

// Attr looks up an equipment attribute. Precedence: the row's own
// attributes, then the testbed-level overlay (account/user attributes
// shared across the bench), then the role field under the "role" key.
func (e *EquipmentRuntime) Attr(key string) (interface{}, bool) {
	if v, ok := e.row.Attrs[key]; ok {
		return v, true
	}
	if e.tb != nil {
		if v, ok := e.tb.attrs[key]; ok {
			return v, true
		}
	}
	if key == "role" && e.row.Role != "" {
		return e.row.Role, true
	}
	return nil, false
}

// PrimaryInterface returns the network interface named by the
// admin_interface attribute, defaulting to "en0".
func (e *EquipmentRuntime) PrimaryInterface() string {
	if v, ok := e.Attr("admin_interface"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "en0"
}

// URL composes a URL from this equipment's address attribute and,
// optionally, an embedded account/password.
func (e *EquipmentRuntime) URL(scheme string, port int, path string, withAccount bool) string {
	host, _ := e.Attr("address")
	hostStr, _ := host.(string)
	userinfo := ""
	if withAccount {
		if acct, ok := e.Attr("account"); ok {
			if pass, ok := e.Attr("password"); ok {
				userinfo = fmt.Sprintf("%v:%v@", acct, pass)
			} else {
				userinfo = fmt.Sprintf("%v@", acct)
			}
		}
	}
	if port != 0 {
		return fmt.Sprintf("%s://%s%s:%d%s", scheme, userinfo, hostStr, port, path)
	}
	return fmt.Sprintf("%s://%s%s%s", scheme, userinfo, hostStr, path)
}

// Device returns this equipment's role controller, constructing it via
// the function table factory registered for this equipment's role on
// first access. Factory errors are promoted to *errors.ConfigError.
func (e *EquipmentRuntime) Device() (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.device != nil {
		return e.device, nil
	}
	factory, ok := e.tb.functions[e.row.Role]
	if !ok {
		return nil, errors.NewConfigNotFoundError("function:" + e.row.Role)
	}
	dev, err := factory(e)
	if err != nil {
		return nil, errors.NewConfigError(err, "constructing device for role "+e.row.Role)
	}
	e.device = dev
	if e.tb != nil && e.tb.bus != nil {
		// A device-change from this controller invalidates the slot; the
		// subscription is weak so a cleared slot's stale controller stops
		// receiving on the next delivery.
		e.deviceChangeH = e.tb.bus.Connect(signalbus.SigDeviceChange, dev, true, func(sender interface{}, p signalbus.Payload) interface{} {
			e.OnDeviceChange(p["state"])
			return nil
		})
	}
	return e.device, nil
}

// AcquireDevice blocks until the exclusive device slot is free (or ctx is
// done), then returns the constructed controller. ReleaseDevice must be
// called exactly once per successful AcquireDevice.
func (e *EquipmentRuntime) AcquireDevice(ctx context.Context) (interface{}, error) {
	if err := e.deviceSlot.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	dev, err := e.Device()
	if err != nil {
		e.deviceSlot.Release(1)
		return nil, err
	}
	return dev, nil
}

// ReleaseDevice releases the exclusive device slot acquired by AcquireDevice.
func (e *EquipmentRuntime) ReleaseDevice() { e.deviceSlot.Release(1) }

// ClearDevice closes the current controller (if it implements io.Closer)
// and clears the slot so the next access rebuilds it.
func (e *EquipmentRuntime) ClearDevice() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clearLocked()
}

func (e *EquipmentRuntime) clearLocked() error {
	if w := e.deviceChangeH.Weak(); w != nil {
		w.Expire()
		e.deviceChangeH = signalbus.Handle{}
	}
	if closer, ok := e.device.(interface{ Close() error }); ok && e.device != nil {
		e.device = nil
		return closer.Close()
	}
	e.device = nil
	return nil
}

// OnDeviceChange invalidates the device slot and records the new state in
// this equipment's in-memory attributes. Callers connect this to
// signalbus.SigDeviceChange filtered by this equipment's controller as
// sender.
func (e *EquipmentRuntime) OnDeviceChange(state interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.clearLocked()
	e.row.Attrs["state"] = state
}

// ServiceWant sends a service-want signal with this runtime as sender and
// returns the provider's handle, if any receiver produced one.
func (e *EquipmentRuntime) ServiceWant(bus *signalbus.Bus, name string, kwargs signalbus.Payload) interface{} {
	return firstReturn(bus.Send(signalbus.SigServiceWant, e, servicePayload(name, kwargs)))
}

// ServiceDontwant sends a service-dontwant signal with this runtime as
// sender. The return value is whatever the provider's release produced,
// e.g. a power measurement aggregated over the provide/release span.
func (e *EquipmentRuntime) ServiceDontwant(bus *signalbus.Bus, name string, kwargs signalbus.Payload) interface{} {
	return firstReturn(bus.Send(signalbus.SigServiceDontwant, e, servicePayload(name, kwargs)))
}

func servicePayload(name string, kwargs signalbus.Payload) signalbus.Payload {
	payload := signalbus.Payload{"service": name}
	for k, v := range kwargs {
		payload[k] = v
	}
	return payload
}

func firstReturn(deliveries []signalbus.Delivery) interface{} {
	for _, d := range deliveries {
		if d.ReturnValue != nil {
			return d.ReturnValue
		}
	}
	return nil
}

// Close tears down this equipment's controller and recurses into its
// components.
func (e *EquipmentRuntime) Close() error {
	var firstErr error
	for _, c := range e.components {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.ClearDevice(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
