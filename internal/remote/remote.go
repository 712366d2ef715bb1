// Package remote runs single commands on remote hosts over SSH.
//
// A Session holds one authenticated connection. Callers upload files,
// run one command at a time and always Close the session, on success and
// failure paths alike. Nothing in this package retries.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultConnectTimeout = 20 * time.Second

var (
	ErrConnect     = errors.New("remote connection failed")
	ErrExec        = errors.New("remote command failed")
	ErrTransfer    = errors.New("remote file transfer failed")
	ErrExitMissing = errors.New("remote command exited without status")
	ErrCredentials = errors.New("exactly one of password or private key is required")
)

type Target struct {
	Host string
	Port int
	User string
}

func (t Target) Address() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

func (t Target) String() string {
	return t.User + "@" + t.Address()
}

// Credentials carries exactly one of Password or PrivateKey (PEM).
type Credentials struct {
	Password   string
	PrivateKey string
}

func (c Credentials) Validate() error {
	hasPassword := c.Password != ""
	hasKey := strings.TrimSpace(c.PrivateKey) != ""
	if hasPassword == hasKey {
		return ErrCredentials
	}
	return nil
}

type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// Chunk is one read from the remote stdout or stderr, in arrival order.
type Chunk struct {
	Stream Stream
	Data   []byte
}

type Dialer interface {
	Dial(ctx context.Context, target Target, creds Credentials) (Session, error)
}

type Session interface {
	Upload(ctx context.Context, path string, content []byte, mode os.FileMode) error
	Run(ctx context.Context, command string) (*Execution, error)
	Close() error
}

// Execution is a started command. Output must be drained; it is closed
// once both remote streams reach EOF. Wait blocks until the exit status
// is known.
type Execution struct {
	output   <-chan Chunk
	done     chan struct{}
	exitCode int
	err      error
}

// NewExecution wraps an output channel. The returned finish func records
// the exit status and must be called exactly once, after output is closed.
func NewExecution(output <-chan Chunk) (*Execution, func(exitCode int, err error)) {
	e := &Execution{
		output: output,
		done:   make(chan struct{}),
	}
	return e, func(exitCode int, err error) {
		e.exitCode = exitCode
		e.err = err
		close(e.done)
	}
}

func (e *Execution) Output() <-chan Chunk {
	return e.output
}

// Wait returns the remote exit status. A non-nil error means no status was
// received; ErrExitMissing marks a connection that closed without one.
func (e *Execution) Wait() (int, error) {
	<-e.done
	return e.exitCode, e.err
}

// Collect drains the execution and returns the combined output with its
// exit status.
func Collect(e *Execution) (string, int, error) {
	var sb strings.Builder
	for chunk := range e.Output() {
		sb.Write(chunk.Data)
	}
	code, err := e.Wait()
	return sb.String(), code, err
}

// RunCommand runs one command on an open session and collects its output.
// It returns as soon as ctx is done, even if the command is still running;
// closing the session is then up to the caller.
func RunCommand(ctx context.Context, sess Session, command string) (string, int, error) {
	exec, err := sess.Run(ctx, command)
	if err != nil {
		return "", -1, err
	}

	type collected struct {
		output string
		code   int
		err    error
	}
	done := make(chan collected, 1)
	go func() {
		output, code, err := Collect(exec)
		done <- collected{output, code, err}
	}()

	select {
	case c := <-done:
		return c.output, c.code, c.err
	case <-ctx.Done():
		return "", -1, fmt.Errorf("%w: %w", ErrExec, ctx.Err())
	}
}

// ExitError reports a command that ran to completion with a non-zero status.
type ExitError struct {
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("remote command exited with code %d", e.Code)
}

// Quote wraps s in single quotes for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
