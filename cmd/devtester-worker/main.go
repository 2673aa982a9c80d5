// Package main implements devtester-worker, the coprocess binary spawned
// by internal/service's CoprocessProvider for services that must block on
// native I/O (logcat, monsoon) without exposing that blocking call or its
// signal handling to the main process.
package main

import (
	"os"
	"os/signal"

	"github.com/hashicorp/go-plugin"
	"golang.org/x/sys/unix"

	"devtester/internal/coprocess"
)

// interrupted is closed once when SIGINT arrives, unblocking whichever
// funcRegistry entry is currently running its sampling loop so it can
// return its accumulated result.
var interrupted = make(chan struct{})

func installInterruptHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGINT)
	go func() {
		<-ch
		close(interrupted)
	}()
}

type server struct{}

func (server) Call(req coprocess.CallRequest) (coprocess.CallResponse, error) {
	fn, ok := funcRegistry[req.FuncName]
	if !ok {
		return coprocess.CallResponse{ErrMsg: "devtester-worker: unknown function " + req.FuncName}, nil
	}
	result, err := fn(req.Args)
	if err != nil {
		return coprocess.CallResponse{ErrMsg: err.Error()}, nil
	}
	return coprocess.CallResponse{Result: result}, nil
}

func (server) Ping() (string, error) { return "pong", nil }

func main() {
	installInterruptHandler()

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: coprocess.Handshake,
		Plugins: map[string]plugin.Plugin{
			"worker": &coprocess.WorkerPlugin{Impl: server{}},
		},
	})
}
