package testbed

import (
	"fmt"
	"net"

	"golang.org/x/crypto/ssh"
	"golang.org/x/net/proxy"

	"devtester/internal/errors"
)

// ConsoleSetup is the `console` attribute: {device, setup}. Device
// names either a local serial path or a "host:port" terminal-server
// proxy; Setup, when non-empty, is a login account auto-typed once the
// console connects.
type ConsoleSetup struct {
	Device string
	Setup string
	Account string
	Password string
	// Proxy, if set, is the "host:port" of a SOCKS5 jump host shared-lab
	// equipment is commonly reached through.
	Proxy string
}

// ConsoleSession is the live connection Console returns: a read/write
// stream plus Close.
type ConsoleSession interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// SerialDialer opens a local serial device as a ConsoleSession; supplied
// by the device-driver library this core treats as an external
// collaborator.
type SerialDialer func(device string) (ConsoleSession, error)

// sshConsoleSession adapts an SSH session's combined I/O to
// ConsoleSession.
type sshConsoleSession struct {
	client *ssh.Client
	session *ssh.Session
	stdin interface {
		Write([]byte) (int, error)
	}
	stdout interface {
		Read([]byte) (int, error)
	}
}

func (s *sshConsoleSession) Write(p []byte) (int, error) { return s.stdin.Write(p) }
func (s *sshConsoleSession) Read(p []byte) (int, error) { return s.stdout.Read(p) }
func (s *sshConsoleSession) Close() error {
	s.session.Close()
	return s.client.Close()
}

// Console builds this equipment's console transport from its `console`
// attribute: a local serial device dialed through dial, or a
// "host:port" terminal-server proxy dialed over SSH (optionally via a
// SOCKS proxy), with Setup's account auto-logged in once connected.
// The result is cached like Device.
func (e *EquipmentRuntime) Console(cfg ConsoleSetup, dial SerialDialer) (ConsoleSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.console != nil {
		return e.console.(ConsoleSession), nil
	}

	var session ConsoleSession
	var err error
	if host, _, splitErr := net.SplitHostPort(cfg.Device); splitErr == nil && host != "" {
		session, err = dialTerminalServer(cfg)
	} else {
		if dial == nil {
			return nil, errors.NewConfigError(nil, "no serial dialer configured for console device "+cfg.Device)
		}
		session, err = dial(cfg.Device)
	}
	if err != nil {
		return nil, errors.NewControllerError(err, "opening console for "+e.Name())
	}

	if cfg.Setup != "" && cfg.Account != "" {
		if err := autoLogin(session, cfg); err != nil {
			session.Close()
			return nil, errors.NewControllerError(err, "console auto-login for "+e.Name())
		}
	}

	e.console = session
	return session, nil
}

func dialTerminalServer(cfg ConsoleSetup) (ConsoleSession, error) {
	sshCfg := &ssh.ClientConfig{
		User: cfg.Account,
		Auth: []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // lab terminal servers rarely publish host keys
	}

	var conn net.Conn
	var err error
	if cfg.Proxy != "" {
		dialer, derr := proxy.SOCKS5("tcp", cfg.Proxy, nil, proxy.Direct)
		if derr != nil {
			return nil, derr
		}
		conn, err = dialer.Dial("tcp", cfg.Device)
	} else {
		conn, err = net.Dial("tcp", cfg.Device)
	}
	if err != nil {
		return nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, cfg.Device, sshCfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	client := ssh.NewClient(c, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, err
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		client.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		client.Close()
		return nil, err
	}
	if err := session.Shell(); err != nil {
		client.Close()
		return nil, err
	}
	return &sshConsoleSession{client: client, session: session, stdin: stdin, stdout: stdout}, nil
}

func autoLogin(s ConsoleSession, cfg ConsoleSetup) error {
	if _, err := fmt.Fprintf(s, "%s\n", cfg.Account); err != nil {
		return err
	}
	if cfg.Password != "" {
		if _, err := fmt.Fprintf(s, "%s\n", cfg.Password); err != nil {
			return err
		}
	}
	return nil
}
