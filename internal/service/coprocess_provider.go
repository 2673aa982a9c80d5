package service

import (
	"fmt"
	"sync"
	"time"

	"devtester/internal/coprocess"
	"devtester/internal/errors"
	"devtester/internal/signalbus"
)

// WorkerPath is the devtester-worker binary a CoprocessProvider spawns.
// It is a var, not a const, so a single build of the worker can be
// relocated without touching provider code; cmd/devtester sets it from
// flags.
var WorkerPath = "devtester-worker"

// Grace is how long ReleaseFor waits for an interrupted worker to return
// its final (possibly partial) result before the coprocess manager gives
// up on it and forcibly kills it.
var Grace = 5 * time.Second

// job tracks one in-flight coprocess call: the process itself and the
// channel its background goroutine will deliver the eventual CALL reply
// on, since go-plugin's Call blocks until the worker actually returns
// (which, for a sampler, only happens after Interrupt unblocks its loop).
type job struct {
	proc *coprocess.Process
	result chan callResult
}

type callResult struct {
	val interface{}
	err error
}

// CoprocessProvider is a Provider backing a service whose implementation
// must run out-of-process: ProvideFor spawns a worker and issues one CALL
// that blocks until ReleaseFor interrupts it; ReleaseFor's return value
// is whatever that CALL eventually replies with.
type CoprocessProvider struct {
	// FuncName is the function the worker binary dispatches the CALL to.
	FuncName string
	// BuildArgs derives the CALL arguments from the needer and its
	// service-want kwargs, e.g. the equipment serial and output path.
	BuildArgs func(needer interface{}, kwargs signalbus.Payload) []interface{}
	// ParseResult converts the raw CALL reply into the provider's
	// documented release value (a measurement summary, a time series).
	ParseResult func(raw interface{}) (interface{}, error)

	mu sync.Mutex
	jobs map[neederKey]*job
}

func neederKeyFor(needer interface{}, kwargs signalbus.Payload) neederKey {
	return neederKey{needer: needer, key: fingerprintKwargs(kwargs)}
}

// ProvideFor spawns a worker and starts its sampling CALL, idempotently
// per (needer identity, kwargs fingerprint): re-requesting returns the
// in-flight job.
func (p *CoprocessProvider) ProvideFor(needer interface{}, kwargs signalbus.Payload) (interface{}, error) {
	p.mu.Lock()
	if p.jobs == nil {
		p.jobs = make(map[neederKey]*job)
	}
	key := neederKeyFor(needer, kwargs)
	if existing, ok := p.jobs[key]; ok {
		p.mu.Unlock()
		return existing, nil
	}
	p.mu.Unlock()

	proc, err := coprocess.Start(WorkerPath)
	if err != nil {
		return nil, err
	}

	j := &job{proc: proc, result: make(chan callResult, 1)}
	args := p.BuildArgs(needer, kwargs)
	go func() {
		v, err := proc.Call(p.FuncName, args...)
		j.result <- callResult{val: v, err: err}
	}()

	p.mu.Lock()
	p.jobs[key] = j
	p.mu.Unlock()
	return j, nil
}

// ReleaseFor interrupts the worker for (needer, kwargs) and waits up to
// Grace for its final reply, returning the parsed result. Releasing a
// (needer, kwargs) that was never provided is a no-op, handled by
// the Manager before ReleaseFor is even called; ReleaseFor itself only
// guards the case where the job vanished underneath it.
func (p *CoprocessProvider) ReleaseFor(needer interface{}, kwargs signalbus.Payload) (interface{}, error) {
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

	if err := j.proc.Interrupt(Grace); err != nil {
		j.proc.Close()
		return nil, err
	}

	var raw interface{}
	select {
	case r := <-j.result:
		raw = r.val
		if r.err != nil {
			j.proc.Close()
			return nil, r.err
		}
	case <-time.After(Grace):
		// Abandoned worker: a worker that dies without a reply yields
		// nothing, and release stays best-effort rather than surfacing
		// an error to the needer.
		j.proc.Close()
		return nil, nil
	}
	j.proc.Close()

	if p.ParseResult != nil {
		return p.ParseResult(raw)
	}
	return raw, nil
}

// Close kills every outstanding worker, called once at service-manager
// shutdown.
func (p *CoprocessProvider) Close() error {
	p.mu.Lock()
	jobs := make([]*job, 0, len(p.jobs))
	for _, j := range p.jobs {
		jobs = append(jobs, j)
	}
	p.jobs = nil
	p.mu.Unlock()

	var firstErr error
	for _, j := range jobs {
		if err := j.proc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Provider = (*CoprocessProvider)(nil)

func requireString(kwargs signalbus.Payload, key string) (string, error) {
	v, ok := kwargs[key]
	if !ok {
		return "", errors.NewConfigNotFoundError(key)
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.NewConfigValueError(key, fmt.Sprintf("want string, got %T", v))
	}
	return s, nil
}
