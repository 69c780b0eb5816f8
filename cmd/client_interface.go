package cmd

import (
	"context"
	"syscall"

	"firestige.xyz/vrtbridge/internal/bridge"
)

// ClientInterface controls a running bridge.
type ClientInterface interface {
	Stop(ctx context.Context) error
	Reload(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
}

// Status describes the process recorded in the PID file.
type Status struct {
	PID     int
	Running bool
	PIDFile string
}

// signalClient reaches the bridge through its PID file: SIGTERM stops it
// and SIGHUP makes it reload its configuration.
type signalClient struct {
	pidFile string
}

func newClient() ClientInterface {
	return &signalClient{pidFile: pidFile}
}

func (c *signalClient) Stop(context.Context) error {
	_, err := bridge.Signal(c.pidFile, syscall.SIGTERM)
	return err
}

func (c *signalClient) Reload(context.Context) error {
	_, err := bridge.Signal(c.pidFile, syscall.SIGHUP)
	return err
}

func (c *signalClient) Status(context.Context) (Status, error) {
	pid, running := bridge.Alive(c.pidFile)
	return Status{PID: pid, Running: running, PIDFile: c.pidFile}, nil
}
