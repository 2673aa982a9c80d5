package service

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"devtester/internal/signalbus"
)

type fakeReadCloser struct {
	*bytes.Reader
	closed chan struct{}
}

func (f *fakeReadCloser) Close() error {
	close(f.closed)
	return nil
}

func (f *fakeReadCloser) Read(p []byte) (int, error) {
	n, err := f.Reader.Read(p)
	if err == io.EOF {
		<-f.closed // block until ReleaseFor closes us, like a live serial port
		return 0, io.EOF
	}
	return n, err
}

func TestSeriallogProviderAppendsBytesUntilReleased(t *testing.T) {
	dir := t.TempDir()
	opened := make(chan string, 1)
	rc := &fakeReadCloser{Reader: bytes.NewReader([]byte("hello console\n")), closed: make(chan struct{})}
	p := &SeriallogProvider{
		LogDir: dir,
		Open: func(device string) (io.ReadCloser, error) {
			opened <- device
			return rc, nil
		},
	}

	needer := "dut"
	if _, err := p.ProvideFor(needer, signalbus.Payload{"device": "/dev/ttyUSB0", "name": "dut"}); err != nil {
		t.Fatalf("ProvideFor: %v", err)
	}
	if got := <-opened; got != "/dev/ttyUSB0" {
		t.Errorf("opened %q, want /dev/ttyUSB0", got)
	}

	if _, err := p.ReleaseFor(needer, signalbus.Payload{"device": "/dev/ttyUSB0", "name": "dut"}); err != nil {
		t.Fatalf("ReleaseFor: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "console_dut.log"))
	if err != nil {
		t.Fatalf("reading console log: %v", err)
	}
	if string(data) != "hello console\n" {
		t.Errorf("console log = %q", data)
	}
}

func TestSeriallogProviderReleaseWithoutProvideIsNoop(t *testing.T) {
	p := &SeriallogProvider{LogDir: t.TempDir(), Open: func(string) (io.ReadCloser, error) { return nil, nil }}
	if _, err := p.ReleaseFor("nobody", signalbus.Payload{}); err != nil {
		t.Errorf("ReleaseFor without provide should be a no-op, got %v", err)
	}
}

func TestAndroidSamplerProviderAccumulatesTimeSeries(t *testing.T) {
	var calls int
	p := &AndroidSamplerProvider{
		Interval: 5 * time.Millisecond,
		ReadHost: func() (float64, error) {
			calls++
			return float64(calls), nil
		},
	}

	if _, err := p.ProvideFor("host", signalbus.Payload{}); err != nil {
		t.Fatalf("ProvideFor: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	v, err := p.ReleaseFor("host", signalbus.Payload{})
	if err != nil {
		t.Fatalf("ReleaseFor: %v", err)
	}
	series, ok := v.([]Sample)
	if !ok {
		t.Fatalf("ReleaseFor returned %T, want []Sample", v)
	}
	if len(series) == 0 {
		t.Errorf("expected at least one sample, got none")
	}
}

func TestAndroidSamplerProviderIsIdempotentPerNeeder(t *testing.T) {
	p := &AndroidSamplerProvider{Interval: time.Hour, ReadHost: func() (float64, error) { return 0, nil }}

	v1, _ := p.ProvideFor("host", signalbus.Payload{})
	v2, _ := p.ProvideFor("host", signalbus.Payload{})
	if v1 != v2 {
		t.Errorf("second ProvideFor for the same needer should return the existing job")
	}
	p.ReleaseFor("host", signalbus.Payload{})
}

func TestMonsoonResultParsing(t *testing.T) {
	prov := NewMonsoonProvider()
	raw := map[string]interface{}{
		"captured": int64(100), "dropped": int64(2),
		"mean_current": 1.5, "mean_voltage": 4.2, "mean_power": 6.3,
	}
	v, err := prov.ParseResult(raw)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	m, ok := v.(MeasurementResult)
	if !ok {
		t.Fatalf("ParseResult returned %T, want MeasurementResult", v)
	}
	if m.Captured != 100 || m.Dropped != 2 || m.MeanPower != 6.3 {
		t.Errorf("parsed = %+v", m)
	}
}

func TestLogcatBuildArgsNamesOutputByLogdirAndSerial(t *testing.T) {
	prov := NewLogcatProvider("/tmp/run1")
	args := prov.BuildArgs("dut", signalbus.Payload{"serial": "ABC123"})
	if len(args) != 2 || args[0] != "ABC123" || args[1] != "/tmp/run1/logcat_ABC123.txt" {
		t.Errorf("BuildArgs = %v", args)
	}
}
