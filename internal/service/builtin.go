// This file implements the concrete built-in service providers:
// seriallog, logcat, and monsoon. androidcpu/androidmemory live in
// android_samplers.go since they share a sampling-loop shape that doesn't
// fit the coprocess model the other two use.
package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"devtester/internal/errors"
	"devtester/internal/signalbus"
)

// SerialOpener opens a readable stream of bytes from a named serial
// device, e.g. "/dev/ttyUSB0". Swapped for a fake in tests; the real
// implementation lives with the device-driver library this core treats
// as an external collaborator.
type SerialOpener func(device string) (io.ReadCloser, error)

// SeriallogProvider implements the seriallog service: it opens a
// serial port per configured equipment and appends bytes to
// {logdir}/console_{name}.log until released. Unlike logcat/monsoon it
// runs its capture loop on a plain goroutine rather than a coprocess;
// copying bytes off a file descriptor needs no process isolation.
type SeriallogProvider struct {
	Open SerialOpener
	LogDir string

	mu sync.Mutex
	streams map[neederKey]*serialStream
}

type serialStream struct {
	closer io.Closer
	done chan struct{}
}

// ProvideFor opens device (from kwargs["device"]) and starts appending
// its bytes to {LogDir}/console_{name}.log, where name is kwargs["name"]
// if set or the device path otherwise.
func (p *SeriallogProvider) ProvideFor(needer interface{}, kwargs signalbus.Payload) (interface{}, error) {
	p.mu.Lock()
	if p.streams == nil {
		p.streams = make(map[neederKey]*serialStream)
	}
	key := neederKeyFor(needer, kwargs)
	if existing, ok := p.streams[key]; ok {
		p.mu.Unlock()
		return existing, nil
	}
	p.mu.Unlock()

	device, err := requireString(kwargs, "device")
	if err != nil {
		return nil, err
	}
	name := device
	if n, ok := kwargs["name"].(string); ok && n != "" {
		name = n
	}

	r, err := p.Open(device)
	if err != nil {
		return nil, errors.NewControllerError(err, "opening serial device "+device)
	}

	f, err := os.Create(filepath.Join(p.LogDir, fmt.Sprintf("console_%s.log", name)))
	if err != nil {
		r.Close()
		return nil, errors.NewTestRunnerError(fmt.Sprintf("creating console log for %s: %v", name, err))
	}

	s := &serialStream{closer: r, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		defer f.Close()
		io.Copy(f, r)
	}()

	p.mu.Lock()
	p.streams[key] = s
	p.mu.Unlock()
	return s, nil
}

// ReleaseFor closes the serial port, which unblocks the copy goroutine,
// and waits for it to finish flushing the log file.
func (p *SeriallogProvider) ReleaseFor(needer interface{}, kwargs signalbus.Payload) (interface{}, error) {
	key := neederKeyFor(needer, kwargs)
	p.mu.Lock()
	s, ok := p.streams[key]
	if ok {
		delete(p.streams, key)
	}
	p.mu.Unlock()
	if !ok {
		return nil, nil
	}
	s.closer.Close()
	<-s.done
	return nil, nil
}

// Close tears down every outstanding serial capture.
func (p *SeriallogProvider) Close() error {
	p.mu.Lock()
	streams := make([]*serialStream, 0, len(p.streams))
	for _, s := range p.streams {
		streams = append(streams, s)
	}
	p.streams = nil
	p.mu.Unlock()
	for _, s := range streams {
		s.closer.Close()
		<-s.done
	}
	return nil
}

var _ Provider = (*SeriallogProvider)(nil)

// NewLogcatProvider builds the logcat service: a coprocess that
// streams Android logcat output for kwargs["serial"] to
// {logdir}/logcat_{serial}.txt until released.
func NewLogcatProvider(logDir string) *CoprocessProvider {
	return &CoprocessProvider{
		FuncName: "logcat.stream",
		BuildArgs: func(needer interface{}, kwargs signalbus.Payload) []interface{} {
			serial, _ := kwargs["serial"].(string)
			return []interface{}{serial, filepath.Join(logDir, fmt.Sprintf("logcat_%s.txt", serial))}
		},
		ParseResult: func(raw interface{}) (interface{}, error) {
			return raw, nil // opaque: the worker's own confirmation that it flushed the file.
		},
	}
}

// MeasurementResult is monsoon's release value: the power meter
// samples aggregated over the span between provide and release.
type MeasurementResult struct {
	Captured int64
	Dropped int64
	MeanCurrent float64
	MeanVoltage float64
	MeanPower float64
}

// NewMonsoonProvider builds the monsoon service: a coprocess that
// samples a USB power meter continuously; release returns the aggregated
// MeasurementResult.
func NewMonsoonProvider() *CoprocessProvider {	return &CoprocessProvider{
		FuncName: "monsoon.sample",
		BuildArgs: func(needer interface{}, kwargs signalbus.Payload) []interface{} {
			port, _ := kwargs["port"].(string)
			return []interface{}{port}
		},
		ParseResult: func(raw interface{}) (interface{}, error) {
			m, ok := raw.(map[string]interface{})
			if !ok {
				return nil, errors.NewControllerError(nil, "monsoon: unexpected result shape")
			}
			return MeasurementResult{
				Captured: toInt64(m["captured"]),
				Dropped: toInt64(m["dropped"]),
				MeanCurrent: toFloat(m["mean_current"]),
				MeanVoltage: toFloat(m["mean_voltage"]),
				MeanPower: toFloat(m["mean_power"]),
			}, nil
		},
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
