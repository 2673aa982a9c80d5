package testbed

import (
	"context"
	"testing"

	"devtester/internal/signalbus"
)

type fakeController struct{ closed bool }

func (f *fakeController) Close() error { f.closed = true; return nil }

func TestDUTResolutionAndCaching(t *testing.T) {
	ctl := &fakeController{}
	functions := FunctionTable{
		"DUT": func(e *EquipmentRuntime) (interface{}, error) { return ctl, nil },
	}
	tb := New("lab1", nil, []Row{{Name: "dut0", Role: "DUT", Attrs: map[string]interface{}{"address": "10.0.0.5"}}}, functions, signalbus.New(nil))

	dut, err := tb.DUT()
	if err != nil {
		t.Fatalf("DUT: %v", err)
	}
	dev, err := dut.Device()
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if dev != ctl {
		t.Fatalf("Device = %v, want the registered controller", dev)
	}

	dut2, _ := tb.DUT()
	if dut2 != dut {
		t.Error("DUT should return the cached EquipmentRuntime")
	}
}

func TestURLComposition(t *testing.T) {
	tb := New("lab1", nil, []Row{{Name: "dut0", Role: "DUT", Attrs: map[string]interface{}{"address": "10.0.0.5"}}}, nil, signalbus.New(nil))
	dut, _ := tb.DUT()
	got := dut.URL("http", 8080, "/status", false)
	want := "http://10.0.0.5:8080/status"
	if got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
}

func TestAcquireReleaseDeviceIsExclusive(t *testing.T) {
	functions := FunctionTable{
		"DUT": func(e *EquipmentRuntime) (interface{}, error) { return &fakeController{}, nil },
	}
	tb := New("lab1", nil, []Row{{Name: "dut0", Role: "DUT"}}, functions, signalbus.New(nil))
	dut, _ := tb.DUT()

	if _, err := dut.AcquireDevice(context.Background()); err != nil {
		t.Fatalf("first AcquireDevice: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := dut.AcquireDevice(ctx); err == nil {
		t.Fatal("second concurrent AcquireDevice should block until released; got nil error on a canceled ctx")
	}

	dut.ReleaseDevice()
	if _, err := dut.AcquireDevice(context.Background()); err != nil {
		t.Fatalf("AcquireDevice after release: %v", err)
	}
}

func TestSUTResolutionRequiresSUTRole(t *testing.T) {
	tb := New("lab1", nil, []Row{
		{Name: "dut0", Role: "DUT"},
		{Name: "fw-1.2", Role: "SUT", Attrs: map[string]interface{}{"version": "1.2.0"}},
	}, nil, signalbus.New(nil))

	sut, err := tb.SUT()
	if err != nil {
		t.Fatalf("SUT: %v", err)
	}
	if sut.Version() != "1.2.0" {
		t.Errorf("Version = %q, want 1.2.0", sut.Version())
	}
	sut2, _ := tb.SUT()
	if sut2 != sut {
		t.Error("SUT should return the cached SoftwareRuntime")
	}

	bare := New("lab2", nil, []Row{{Name: "dut0", Role: "DUT"}}, nil, signalbus.New(nil))
	if _, err := bare.SUT(); err == nil {
		t.Error("expected an error for a testbed with no SUT role")
	}
}

func TestAttrPrecedenceRowThenTestbedThenRole(t *testing.T) {
	tb := New("lab1", map[string]interface{}{"account": "labuser", "address": "overlay"}, []Row{
		{Name: "dut0", Role: "DUT", Attrs: map[string]interface{}{"address": "10.0.0.5"}},
	}, nil, signalbus.New(nil))
	dut, _ := tb.DUT()

	if v, _ := dut.Attr("address"); v != "10.0.0.5" {
		t.Errorf("address = %v, want the row's own value to win", v)
	}
	if v, _ := dut.Attr("account"); v != "labuser" {
		t.Errorf("account = %v, want the testbed overlay value", v)
	}
	if v, _ := dut.Attr("role"); v != "DUT" {
		t.Errorf("role = %v, want the role field fallback", v)
	}
}

func TestServiceDontwantReturnsProviderResult(t *testing.T) {
	bus := signalbus.New(nil)
	tb := New("lab1", nil, []Row{{Name: "dut0", Role: "DUT"}}, nil, bus)
	dut, _ := tb.DUT()

	bus.Connect(signalbus.SigServiceDontwant, nil, false, func(sender interface{}, p signalbus.Payload) interface{} {
		if p["service"] == "monsoon" {
			return "measurement"
		}
		return nil
	})

	got := dut.ServiceDontwant(bus, "monsoon", nil)
	if got != "measurement" {
		t.Errorf("ServiceDontwant = %v, want the provider's release result", got)
	}
}

func TestDeviceChangeSignalInvalidatesSlot(t *testing.T) {
	bus := signalbus.New(nil)
	ctl := &fakeController{}
	functions := FunctionTable{
		"DUT": func(e *EquipmentRuntime) (interface{}, error) { return ctl, nil },
	}
	tb := New("lab1", nil, []Row{{Name: "dut0", Role: "DUT", Attrs: map[string]interface{}{}}}, functions, bus)
	dut, _ := tb.DUT()
	if _, err := dut.Device(); err != nil {
		t.Fatalf("Device: %v", err)
	}

	bus.Send(signalbus.SigDeviceChange, ctl, signalbus.Payload{"state": "offline"})

	if !ctl.closed {
		t.Error("controller should be closed when it reports a device-change")
	}
	if v, _ := dut.Attr("state"); v != "offline" {
		t.Errorf("state attr = %v, want offline", v)
	}
}

func TestOnDeviceChangeClearsSlot(t *testing.T) {
	ctl := &fakeController{}
	functions := FunctionTable{
		"DUT": func(e *EquipmentRuntime) (interface{}, error) { return ctl, nil },
	}
	tb := New("lab1", nil, []Row{{Name: "dut0", Role: "DUT", Attrs: map[string]interface{}{}}}, functions, signalbus.New(nil))
	dut, _ := tb.DUT()
	if _, err := dut.Device(); err != nil {
		t.Fatalf("Device: %v", err)
	}

	dut.OnDeviceChange("rebooting")
	if !ctl.closed {
		t.Error("expected the prior controller to be closed on device-change")
	}
	if v, _ := dut.Attr("state"); v != "rebooting" {
		t.Errorf("state attr = %v, want %q", v, "rebooting")
	}
}
