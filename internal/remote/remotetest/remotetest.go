// Package remotetest provides a scripted remote.Dialer for tests.
package remotetest

import (
	"context"
	"os"
	"sync"

	"github.com/2026musik-code/autoscrip/internal/remote"
)

// Result scripts the outcome of one Run call.
type Result struct {
	Output   []string
	Stderr   []string
	ExitCode int
	WaitErr  error
	StartErr error
	// Gate, when set, holds the command open until it is closed.
	Gate <-chan struct{}
}

type Handler func(target remote.Target, command string) Result

type Dialer struct {
	Handler   Handler
	DialErr   error
	UploadErr error

	mu       sync.Mutex
	dials    []remote.Target
	creds    []remote.Credentials
	commands []string
	files    map[string][]byte
	open     int
	closed   int
}

func NewDialer(h Handler) *Dialer {
	return &Dialer{Handler: h, files: make(map[string][]byte)}
}

// Succeed returns a Result that prints output and exits 0.
func Succeed(output ...string) Result {
	return Result{Output: output}
}

func (d *Dialer) Dial(_ context.Context, target remote.Target, creds remote.Credentials) (remote.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials = append(d.dials, target)
	d.creds = append(d.creds, creds)
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	d.open++
	return &session{dialer: d, target: target}, nil
}

func (d *Dialer) Dials() []remote.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]remote.Target(nil), d.dials...)
}

func (d *Dialer) Credentials() []remote.Credentials {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]remote.Credentials(nil), d.creds...)
}

func (d *Dialer) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

func (d *Dialer) File(path string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.files[path]
	return b, ok
}

func (d *Dialer) SetFile(path string, content []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[path] = content
}

// Open reports sessions dialed but not yet closed.
func (d *Dialer) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open - d.closed
}

func (d *Dialer) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type session struct {
	dialer *Dialer
	target remote.Target
	once   sync.Once
}

func (s *session) Upload(_ context.Context, path string, content []byte, _ os.FileMode) error {
	s.dialer.mu.Lock()
	defer s.dialer.mu.Unlock()
	if s.dialer.UploadErr != nil {
		return s.dialer.UploadErr
	}
	s.dialer.files[path] = append([]byte(nil), content...)
	return nil
}

func (s *session) Run(_ context.Context, command string) (*remote.Execution, error) {
	s.dialer.mu.Lock()
	s.dialer.commands = append(s.dialer.commands, command)
	handler := s.dialer.Handler
	s.dialer.mu.Unlock()

	var res Result
	if handler != nil {
		res = handler(s.target, command)
	}
	if res.StartErr != nil {
		return nil, res.StartErr
	}

	output := make(chan remote.Chunk)
	exec, finish := remote.NewExecution(output)
	go func() {
		for _, line := range res.Output {
			output <- remote.Chunk{Stream: remote.Stdout, Data: []byte(line)}
		}
		for _, line := range res.Stderr {
			output <- remote.Chunk{Stream: remote.Stderr, Data: []byte(line)}
		}
		if res.Gate != nil {
			<-res.Gate
		}
		close(output)
		finish(res.ExitCode, res.WaitErr)
	}()
	return exec, nil
}

func (s *session) Close() error {
	s.once.Do(func() {
		s.dialer.mu.Lock()
		s.dialer.closed++
		s.dialer.mu.Unlock()
	})
	return nil
}
