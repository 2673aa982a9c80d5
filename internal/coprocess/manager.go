package coprocess

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-plugin"
	"golang.org/x/sys/unix"

	"devtester/internal/errors"
	"devtester/internal/xcontext"
)

// Process is a running coprocess: a second devtester-worker binary
// reachable over the net/rpc connection go-plugin negotiated for it,
// controlled through the usual start/call/interrupt/wait/close shape.
type Process struct {
	client *plugin.Client
	worker Worker

	mu sync.Mutex
	closed bool
}

// Start spawns workerPath as a coprocess and completes the handshake.
// workerPath is normally the devtester-worker binary built alongside this
// module; passing a distinct function registry per worker type happens
// through CallRequest.FuncName, not through distinct binaries.
func Start(workerPath string, args...string) (*Process, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: PluginMap,
		Cmd: exec.Command(workerPath, args...),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, errors.NewTestRunnerError(fmt.Sprintf("starting coprocess %q: %v", workerPath, err))
	}
	raw, err := rpcClient.Dispense("worker")
	if err != nil {
		client.Kill()
		return nil, errors.NewTestRunnerError(fmt.Sprintf("dispensing coprocess %q: %v", workerPath, err))
	}
	worker, ok := raw.(Worker)
	if !ok {
		client.Kill()
		return nil, errors.NewTestRunnerError(fmt.Sprintf("coprocess %q returned unexpected plugin type", workerPath))
	}
	return &Process{client: client, worker: worker}, nil
}

// Call invokes a registered function in the coprocess and waits for its
// result, the Go equivalent of sending a CALL message and blocking for
// the matching response.
func (p *Process) Call(funcName string, args...interface{}) (interface{}, error) {
	resp, err := p.worker.Call(CallRequest{FuncName: funcName, Args: args})
	if err != nil {
		return nil, errors.NewTestRunnerError(fmt.Sprintf("coprocess call %q: %v", funcName, err))
	}
	if resp.ErrMsg != "" {
		return nil, errors.NewTestRunnerError(fmt.Sprintf("coprocess call %q failed: %s", funcName, resp.ErrMsg))
	}
	return resp.Result, nil
}

// Ping verifies the coprocess is still responsive.
func (p *Process) Ping() error {
	_, err := p.worker.Ping()
	return err
}

// Interrupt sends SIGINT to the coprocess and waits up to grace before
// escalating to SIGKILL. A worker that ignores the interrupt is treated
// as abandoned rather than as an error; releases are best-effort.
func (p *Process) Interrupt(grace time.Duration) error {
	rc := p.client.ReattachConfig()
	if rc == nil || rc.Pid == 0 {
		p.client.Kill()
		return nil
	}
	if err := unix.Kill(rc.Pid, unix.SIGINT); err != nil {
		p.client.Kill()
		return nil
	}

	done := make(chan struct{})
	go func() {
		for !p.client.Exited() {
			time.Sleep(20 * time.Millisecond)
		}
		close(done)
	}()

	gctx, cancel := xcontext.WithGracePeriod(context.Background(), grace)
	defer cancel(errors.NewTestIncomplete("interrupt complete"))
	select {
	case <-done:
	case <-gctx.Done():
		p.client.Kill()
	}
	return nil
}

// Close terminates the coprocess unconditionally. Safe to call more than
// once.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.client.Kill()
	return nil
}
