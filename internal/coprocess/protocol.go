// Package coprocess implements the forked-worker protocol:
// a parent/child message channel carrying CALL/EXIT/PING, used by service
// providers that must block on native I/O or install signal handlers
// incompatible with the main process.
//
// Go has no fork-and-share-the-image primitive, so the worker is a
// second compiled binary (cmd/devtester-worker) spawned through
// github.com/hashicorp/go-plugin and driven over a net/rpc connection.
// CALL invokes a registered function out-of-process and returns its
// result or error; EXIT/Kill ends the child. No generated code is
// involved, unlike a gRPC-based plugin.
package coprocess

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Handshake identifies this module's worker protocol to go-plugin so it
// refuses to dispense a mismatched binary.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion: 1,
	MagicCookieKey: "DEVTESTER_COPROCESS",
	MagicCookieValue: "b9f132e4-coprocess",
}

// CallRequest names the registered function to invoke and its arguments.
// FuncName is resolved against the worker binary's own function registry
// (see cmd/devtester-worker); no code crosses the channel.
type CallRequest struct {
	FuncName string
	Args []interface{}
}

// CallResponse carries the outcome of one CALL.
type CallResponse struct {
	Result interface{}
	ErrMsg string // non-empty iff the call failed
}

// Worker is the client-visible interface to a running coprocess.
type Worker interface {
	Call(req CallRequest) (CallResponse, error)
	Ping() (string, error)
}

// PluginMap is the go-plugin plugin set this module's client and server
// both use to identify the single "worker" plugin.
var PluginMap = map[string]plugin.Plugin{
	"worker": &WorkerPlugin{},
}

// WorkerPlugin adapts a Worker implementation to go-plugin's net/rpc
// transport.
type WorkerPlugin struct {
	Impl Worker // set on the server side only
}

func (p *WorkerPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &rpcServer{impl: p.Impl}, nil
}

func (p *WorkerPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &rpcClient{client: c}, nil
}

type rpcServer struct{ impl Worker }

func (s *rpcServer) Call(req CallRequest, resp *CallResponse) error {
	r, err := s.impl.Call(req)
	*resp = r
	return err
}

func (s *rpcServer) Ping(_ struct{}, resp *string) error {
	pong, err := s.impl.Ping()
	*resp = pong
	return err
}

type rpcClient struct{ client *rpc.Client }

func (c *rpcClient) Call(req CallRequest) (CallResponse, error) {
	var resp CallResponse
	err := c.client.Call("Plugin.Call", req, &resp)
	return resp, err
}

func (c *rpcClient) Ping() (string, error) {
	var resp string
	err := c.client.Call("Plugin.Ping", struct{}{}, &resp)
	return resp, err
}
