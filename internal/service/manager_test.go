package service

import (
	"testing"

	"devtester/internal/signalbus"
)

type fakeProvider struct {
	provided int
	released int
	closed bool
	returnVal interface{}
}

func (p *fakeProvider) ProvideFor(needer interface{}, kwargs signalbus.Payload) (interface{}, error) {
	p.provided++
	return p.returnVal, nil
}

func (p *fakeProvider) ReleaseFor(needer interface{}, kwargs signalbus.Payload) (interface{}, error) {
	p.released++
	return p.returnVal, nil
}

func (p *fakeProvider) Close() error {
	p.closed = true
	return nil
}

func TestManagerRoutesWantAndDontwantByServiceName(t *testing.T) {
	bus := signalbus.New(nil)
	m := New(bus, nil)
	prov := &fakeProvider{returnVal: "handle"}
	m.Register("monsoon", prov)

	bus.Send(signalbus.SigServiceWant, "dut", signalbus.Payload{"service": "monsoon"})
	if prov.provided != 1 {
		t.Errorf("provided = %d, want 1", prov.provided)
	}

	bus.Send(signalbus.SigServiceDontwant, "dut", signalbus.Payload{"service": "monsoon"})
	if prov.released != 1 {
		t.Errorf("released = %d, want 1", prov.released)
	}
}

func TestManagerDoubleReleaseIsNoop(t *testing.T) {
	bus := signalbus.New(nil)
	m := New(bus, nil)
	prov := &fakeProvider{}
	m.Register("monsoon", prov)

	bus.Send(signalbus.SigServiceWant, "dut", signalbus.Payload{"service": "monsoon"})
	bus.Send(signalbus.SigServiceDontwant, "dut", signalbus.Payload{"service": "monsoon"})
	bus.Send(signalbus.SigServiceDontwant, "dut", signalbus.Payload{"service": "monsoon"})

	if prov.released != 1 {
		t.Errorf("released = %d, want 1 (second dontwant must be a no-op)", prov.released)
	}
}

func TestManagerUnknownServiceWantIsIgnored(t *testing.T) {
	bus := signalbus.New(nil)
	m := New(bus, nil)
	// No providers registered at all; sending should not panic and should
	// simply have no observable effect.
	bus.Send(signalbus.SigServiceWant, "dut", signalbus.Payload{"service": "nonexistent"})
	_ = m
}

func TestManagerCloseClosesEveryProvider(t *testing.T) {
	bus := signalbus.New(nil)
	m := New(bus, nil)
	p1 := &fakeProvider{}
	p2 := &fakeProvider{}
	m.Register("svc1", p1)
	m.Register("svc2", p2)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p1.closed || !p2.closed {
		t.Errorf("expected both providers closed, got %v %v", p1.closed, p2.closed)
	}
}
