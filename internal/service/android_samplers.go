package service

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/electricbubble/gadb"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"devtester/internal/errors"
	"devtester/internal/signalbus"
)

// Sample is one point of an androidcpu/androidmemory time series.
type Sample struct {
	Time  time.Time
	Value float64
}

// AndroidSamplerProvider implements the androidcpu/androidmemory services:
// a periodic in-process sampler (not a coprocess, since polling /proc over
// an existing adb connection or via gopsutil on a plain Linux host does
// not block on native USB I/O) that releases the accumulated Sample time
// series.
type AndroidSamplerProvider struct {
	// Interval between samples; defaults to one second.
	Interval time.Duration
	// Read takes one sample for a given adb serial ("" for a non-Android
	// host, where ReadHost is used instead).
	Read func(serial string) (float64, error)
	// ReadHost takes one sample from the local host via gopsutil, used
	// when kwargs has no "serial" (the DUT role resolved to a plain SSH
	// Linux host rather than an Android device).
	ReadHost func() (float64, error)

	mu   sync.Mutex
	jobs map[neederKey]*samplerJob
}

type samplerJob struct {
	stop chan struct{}
	done chan struct{}
	samples []Sample
	mu sync.Mutex
}

func (j *samplerJob) add(s Sample) {
	j.mu.Lock()
	j.samples = append(j.samples, s)
	j.mu.Unlock()
}

func (j *samplerJob) snapshot() []Sample {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Sample(nil), j.samples...)
}

func (p *AndroidSamplerProvider) interval() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}
	return time.Second
}

// ProvideFor starts a sampling loop for (needer, kwargs), idempotently.
func (p *AndroidSamplerProvider) ProvideFor(needer interface{}, kwargs signalbus.Payload) (interface{}, error) {
	p.mu.Lock()
	if p.jobs == nil {
		p.jobs = make(map[neederKey]*samplerJob)
	}
	key := neederKeyFor(needer, kwargs)
	if existing, ok := p.jobs[key]; ok {
		p.mu.Unlock()
		return existing, nil
	}
	p.mu.Unlock()

	serial, _ := kwargs["serial"].(string)
	j := &samplerJob{stop: make(chan struct{}), done: make(chan struct{})}

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(p.interval())
		defer ticker.Stop()
		for {
			select {
			case <-j.stop:
				return
			case <-ticker.C:
				v, err := p.sample(serial)
				if err == nil {
					j.add(Sample{Time: time.Now(), Value: v})
				}
			}
		}
	}()

	p.mu.Lock()
	p.jobs[key] = j
	p.mu.Unlock()
	return j, nil
}

func (p *AndroidSamplerProvider) sample(serial string) (float64, error) {
	if serial != "" && p.Read != nil {
		return p.Read(serial)
	}
	if p.ReadHost != nil {
		return p.ReadHost()
	}
	return 0, errors.NewControllerError(nil, "no sampler configured")
}

// ReleaseFor stops the sampling loop and returns its accumulated time
// series.
func (p *AndroidSamplerProvider) ReleaseFor(needer interface{}, kwargs signalbus.Payload) (interface{}, error) {
	key := neederKeyFor(needer, kwargs)
	p.mu.Lock()
	j, ok := p.jobs[key]
	if ok {
		delete(p.jobs, key)
	}
	p.mu.Unlock()
	if !ok {
		return nil, nil
	}
	close(j.stop)
	<-j.done
	return j.snapshot(), nil
}

// Close stops every outstanding sampling loop.
func (p *AndroidSamplerProvider) Close() error {
	p.mu.Lock()
	jobs := make([]*samplerJob, 0, len(p.jobs))
	for _, j := range p.jobs {
		jobs = append(jobs, j)
	}
	p.jobs = nil
	p.mu.Unlock()
	for _, j := range jobs {
		close(j.stop)
		<-j.done
	}
	return nil
}

var _ Provider = (*AndroidSamplerProvider)(nil)

// NewAndroidCPUProvider builds the androidcpu service: its Read samples
// total CPU utilization percentage over adb (via a `top -bn1` shell
// command parsed for the device's usage line), its ReadHost falls back to
// gopsutil for a plain Linux DUT.
func NewAndroidCPUProvider(client gadb.Client) *AndroidSamplerProvider {
	return &AndroidSamplerProvider{
		Read: func(serial string) (float64, error) {
			return readAndroidCPU(client, serial)
		},
		ReadHost: func() (float64, error) {
			pct, err := cpu.Percent(0, false)
			if err != nil || len(pct) == 0 {
				return 0, err
			}
			return pct[0], nil
		},
	}
}

// NewAndroidMemoryProvider builds the androidmemory service: its Read
// samples used-memory percentage over adb via `dumpsys meminfo`, its
// ReadHost falls back to gopsutil.
func NewAndroidMemoryProvider(client gadb.Client) *AndroidSamplerProvider {
	return &AndroidSamplerProvider{
		Read: func(serial string) (float64, error) {
			return readAndroidMemory(client, serial)
		},
		ReadHost: func() (float64, error) {
			v, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return v.UsedPercent, nil
		},
	}
}

func deviceBySerial(client gadb.Client, serial string) (*gadb.Device, error) {
	devices, err := client.DeviceList()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].Serial() == serial {
			return &devices[i], nil
		}
	}
	return nil, errors.NewConfigNotFoundError("adb device:" + serial)
}

// readAndroidCPU parses the CPU-usage summary line `top -bn1` prints on
// Android, of the shape "400%cpu 12%user... 88%idle".
func readAndroidCPU(client gadb.Client, serial string) (float64, error) {
	dev, err := deviceBySerial(client, serial)
	if err != nil {
		return 0, err
	}
	out, err := dev.RunShellCommand("top", "-bn1")
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "idle") {
			continue
		}
		for _, field := range strings.Fields(line) {
			if strings.HasSuffix(field, "%idle") {
				idle, err := strconv.ParseFloat(strings.TrimSuffix(field, "%idle"), 64)
				if err != nil {
					return 0, err
				}
				return 100 - idle, nil
			}
		}
	}
	return 0, errors.NewControllerError(nil, "could not parse top output")
}

// readAndroidMemory parses the "Total RAM"/"Free RAM" lines `dumpsys
// meminfo` prints, returning percentage used.
func readAndroidMemory(client gadb.Client, serial string) (float64, error) {
	dev, err := deviceBySerial(client, serial)
	if err != nil {
		return 0, err
	}
	out, err := dev.RunShellCommand("dumpsys", "meminfo")
	if err != nil {
		return 0, err
	}
	var total, free float64
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := parseMeminfoLine(line, "Total RAM:"); ok {
			total = v
		}
		if v, ok := parseMeminfoLine(line, "Free RAM:"); ok {
			free = v
		}
	}
	if total == 0 {
		return 0, errors.NewControllerError(nil, "could not parse meminfo output")
	}
	return 100 * (total - free) / total, nil
}

func parseMeminfoLine(line, prefix string) (float64, bool) {
	if !strings.HasPrefix(line, prefix) {
		return 0, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, fields[0])
	if digits == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

