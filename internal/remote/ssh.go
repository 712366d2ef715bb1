package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const readBufferSize = 32 * 1024

type Config struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	KnownHostsFile string        `mapstructure:"known_hosts_file"`
}

type SSHDialer struct {
	timeout         time.Duration
	hostKeyCallback ssh.HostKeyCallback
}

func NewSSHDialer(cfg Config) (*SSHDialer, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	callback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		callback = cb
	} else {
		slog.Warn("SSH host key verification disabled, no known_hosts_file configured")
	}

	return &SSHDialer{
		timeout:         timeout,
		hostKeyCallback: callback,
	}, nil
}

func (d *SSHDialer) Dial(ctx context.Context, target Target, creds Credentials) (Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	authMethods, err := authMethodsFor(creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	config := &ssh.ClientConfig{
		User:            target.User,
		Auth:            authMethods,
		HostKeyCallback: d.hostKeyCallback,
		Timeout:         d.timeout,
	}

	addr := target.Address()
	dialCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	netDialer := &net.Dialer{Timeout: d.timeout}
	conn, err := netDialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	// The handshake and authentication share the connect deadline.
	_ = conn.SetDeadline(time.Now().Add(d.timeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &sshSession{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

func authMethodsFor(creds Credentials) ([]ssh.AuthMethod, error) {
	if creds.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(creds.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	password := creds.Password
	return []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = password
			}
			return answers, nil
		}),
	}, nil
}

type sshSession struct {
	client    *ssh.Client
	closeOnce sync.Once
	closeErr  error
}

func (s *sshSession) Upload(_ context.Context, path string, content []byte, mode os.FileMode) error {
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransfer, err)
	}
	defer client.Close()

	f, err := client.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrTransfer, path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %w", ErrTransfer, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrTransfer, path, err)
	}
	if err := client.Chmod(path, mode); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ErrTransfer, path, err)
	}
	return nil
}

func (s *sshSession) Run(ctx context.Context, command string) (*Execution, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExec, err)
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("%w: %w", ErrExec, err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("%w: %w", ErrExec, err)
	}

	if err := sess.Start(command); err != nil {
		sess.Close()
		return nil, fmt.Errorf("%w: %w", ErrExec, err)
	}

	output := make(chan Chunk)
	exec, finish := NewExecution(output)

	var readers sync.WaitGroup
	readers.Add(2)
	go pump(&readers, output, Stdout, stdout)
	go pump(&readers, output, Stderr, stderr)

	stop := context.AfterFunc(ctx, func() { sess.Close() })

	go func() {
		readers.Wait()
		close(output)

		code, err := exitStatus(sess.Wait())
		stop()
		sess.Close()
		finish(code, err)
	}()

	return exec, nil
}

func pump(wg *sync.WaitGroup, out chan<- Chunk, stream Stream, r io.Reader) {
	defer wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			out <- Chunk{Stream: stream, Data: data}
		}
		if err != nil {
			return
		}
	}
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	var missingErr *ssh.ExitMissingError
	if errors.As(err, &missingErr) {
		return -1, ErrExitMissing
	}
	return -1, fmt.Errorf("%w: %w", ErrExec, err)
}

func (s *sshSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}
