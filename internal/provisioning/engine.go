package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/2026musik-code/autoscrip/internal/license"
	"github.com/2026musik-code/autoscrip/internal/outcome"
	"github.com/2026musik-code/autoscrip/internal/remote"
	"github.com/2026musik-code/autoscrip/internal/secretbox"
	"github.com/2026musik-code/autoscrip/internal/session"
	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/google/uuid"
)

const (
	DefaultRemoteScriptPath = "/root/install_enhanced.sh"
	DefaultAdminPath        = "/admin_login.php"
	DefaultRebuildScriptURL = "https://raw.githubusercontent.com/bin456789/reinstall/main/reinstall.sh"
	DefaultRebootDelay      = 5 * time.Second
)

var (
	ErrMarkerMissing = errors.New("installation finished without an admin credential")
	ErrNonZeroExit   = errors.New("installation failed (non-zero exit code)")
	ErrRebuildFailed = errors.New("rebuild did not confirm success")
	ErrShuttingDown  = errors.New("provisioning engine is shutting down")
)

type Config struct {
	InstallScript    string        `mapstructure:"install_script"`
	RemoteScriptPath string        `mapstructure:"remote_script_path"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	AdminPath        string        `mapstructure:"admin_path"`
	RebuildScriptURL string        `mapstructure:"rebuild_script_url"`
	RebootDelay      time.Duration `mapstructure:"reboot_delay"`
}

func (c *Config) applyDefaults() {
	if c.RemoteScriptPath == "" {
		c.RemoteScriptPath = DefaultRemoteScriptPath
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = remote.DefaultConnectTimeout
	}
	if c.AdminPath == "" {
		c.AdminPath = DefaultAdminPath
	}
	if !strings.HasPrefix(c.AdminPath, "/") {
		c.AdminPath = "/" + c.AdminPath
	}
	if c.RebuildScriptURL == "" {
		c.RebuildScriptURL = DefaultRebuildScriptURL
	}
	if c.RebootDelay <= 0 {
		c.RebootDelay = DefaultRebootDelay
	}
}

// Engine drives install and rebuild runs. Submit calls validate
// synchronously and return; the run itself continues in the background and
// reports through the session registry.
type Engine struct {
	cfg      Config
	script   []byte
	dialer   remote.Dialer
	store    store.Store
	ledger   *license.Ledger
	cipher   *secretbox.Cipher
	sessions *session.Registry
	now      func() time.Time

	mu      sync.Mutex
	closed  bool
	running sync.WaitGroup
}

// NewEngine loads the install script from cfg.InstallScript unless script
// is given.
func NewEngine(
	cfg Config,
	script []byte,
	dialer remote.Dialer,
	st store.Store,
	ledger *license.Ledger,
	cipher *secretbox.Cipher,
	sessions *session.Registry,
) (*Engine, error) {
	cfg.applyDefaults()
	if script == nil {
		if cfg.InstallScript == "" {
			return nil, fmt.Errorf("install script path is not configured")
		}
		b, err := os.ReadFile(cfg.InstallScript)
		if err != nil {
			return nil, fmt.Errorf("failed to read install script: %w", err)
		}
		script = b
	}

	return &Engine{
		cfg:      cfg,
		script:   script,
		dialer:   dialer,
		store:    st,
		ledger:   ledger,
		cipher:   cipher,
		sessions: sessions,
		now:      time.Now,
	}, nil
}

// AdminURL is the admin login address of an installation on domain.
func (e *Engine) AdminURL(domain string) string {
	return "https://" + domain + e.cfg.AdminPath
}

func (e *Engine) SubmitInstall(ctx context.Context, req InstallRequest) error {
	req.normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	lic, err := e.ledger.Validate(ctx, req.LicenseToken)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) || errors.Is(err, license.ErrAlreadyUsed) {
			return &ValidationError{Field: "licenseToken", Message: err.Error(), Err: err}
		}
		return err
	}
	req.LicenseToken = lic.Token

	rec, err := e.newRecord(req)
	if err != nil {
		return err
	}

	return e.start(func() {
		e.runInstall(context.WithoutCancel(ctx), req, rec)
	})
}

func (e *Engine) SubmitRebuild(ctx context.Context, req RebuildRequest) error {
	req.normalize()
	if err := req.Validate(); err != nil {
		return err
	}
	return e.start(func() {
		e.runRebuild(context.WithoutCancel(ctx), req)
	})
}

func (e *Engine) start(fn func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrShuttingDown
	}
	e.running.Add(1)
	go func() {
		defer e.running.Done()
		fn()
	}()
	return nil
}

// Wait blocks until every submitted run has finished or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting runs and waits for in-flight ones.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return e.Wait(ctx)
}

func (e *Engine) newRecord(req InstallRequest) (store.ServerRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return store.ServerRecord{}, fmt.Errorf("failed to generate record id: %w", err)
	}

	rec := store.ServerRecord{
		ID:           id.String(),
		Host:         req.Host,
		Port:         req.Port,
		Domain:       req.Domain,
		Username:     req.Username,
		AuthType:     req.AuthKind,
		OS:           req.OS,
		AdminURL:     e.AdminURL(req.Domain),
		LicenseToken: req.LicenseToken,
		Status:       store.StatusActive,
	}

	switch req.AuthKind {
	case store.AuthPrivateKey:
		rec.EncryptedPrivateKey, err = e.cipher.Encrypt(req.PrivateKey)
	default:
		rec.EncryptedPassword, err = e.cipher.Encrypt(req.Password)
	}
	if err != nil {
		return store.ServerRecord{}, fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return rec, nil
}

func (e *Engine) runInstall(ctx context.Context, req InstallRequest, rec store.ServerRecord) {
	r := e.newRun(req.SessionID, "install", req.Host)
	r.logger.Info("Install run started", "domain", req.Domain)

	target := remote.Target{Host: req.Host, Port: req.Port, User: req.Username}
	creds := remote.Credentials{}
	if req.AuthKind == store.AuthPrivateKey {
		creds.PrivateKey = req.PrivateKey
	} else {
		creds.Password = req.Password
	}

	upload := func(sess remote.Session) error {
		r.log("Connected! Uploading installation script...\n")
		if err := sess.Upload(ctx, e.cfg.RemoteScriptPath, e.script, 0o755); err != nil {
			r.logf("SFTP Error: %v\n", err)
			return err
		}
		r.log("Script uploaded. Making executable...\n")
		return nil
	}

	command := InstallCommand(e.cfg.RemoteScriptPath, req.Domain, req.OS)
	output, code, err := e.execute(ctx, r, target, creds, upload, command)
	if err != nil && !errors.Is(err, remote.ErrExitMissing) {
		r.fail(err)
		return
	}

	r.enter(StateParsing)
	if code != 0 {
		r.fail(ErrNonZeroExit)
		return
	}
	result, ok := outcome.ExtractInstall(output)
	if !ok {
		r.fail(ErrMarkerMissing)
		return
	}

	r.enter(StateCommitting)
	rec.AdminUUID = result.AdminPass
	now := e.now()
	rec.CreatedAt = now.UTC()
	err = e.store.Mutate(ctx, func(doc *store.Document) error {
		expiry, err := e.ledger.Consume(doc, req.LicenseToken, req.Domain, now)
		if err != nil {
			return err
		}
		rec.ExpiresAt = &expiry
		doc.Servers = append(doc.Servers, rec)
		return nil
	})
	if err != nil {
		r.logf("Failed to save installation: %v\n", err)
		r.fail(err)
		return
	}

	r.logger.Info("Install run committed", "server_id", rec.ID, "domain", rec.Domain, "expires_at", rec.ExpiresAt)
	r.succeed(session.StatusSuccess, InstallResult{
		Domain:   rec.Domain,
		UUID:     rec.AdminUUID,
		AdminURL: rec.AdminURL,
	})
}

func (e *Engine) runRebuild(ctx context.Context, req RebuildRequest) {
	r := e.newRun(req.SessionID, "rebuild", req.Host)
	r.logger.Info("Rebuild run started", "target_os", req.TargetOS, "target_version", req.TargetVersion)

	target := remote.Target{Host: req.Host, Port: req.Port, User: req.Username}
	creds := remote.Credentials{Password: req.CurrentPassword}
	prepare := func(remote.Session) error {
		r.logf("Connected! Starting rebuild to %s %s...\n", req.TargetOS, req.TargetVersion)
		return nil
	}

	command := RebuildCommand(e.cfg.RebuildScriptURL, req.TargetOS, req.TargetVersion, req.NewPassword, e.cfg.RebootDelay)
	output, code, err := e.execute(ctx, r, target, creds, prepare, command)
	if err != nil && !errors.Is(err, remote.ErrExitMissing) {
		r.failWith(session.StatusError, err)
		return
	}

	r.enter(StateParsing)
	// A reboot may drop the connection before an exit status arrives.
	exitedCleanly := code == 0 || errors.Is(err, remote.ErrExitMissing)
	if !exitedCleanly || !outcome.HasRebuildMarker(output) {
		r.failWith(session.StatusError, ErrRebuildFailed)
		return
	}

	r.logf("Rebuild accepted. The server will reboot into %s %s.\n", req.TargetOS, req.TargetVersion)
	r.succeed(session.StatusRebuild, map[string]string{
		"ip":      req.Host,
		"os":      req.TargetOS,
		"version": req.TargetVersion,
	})
}

// execute connects, runs prepare and the command, and streams every chunk
// to the session as it arrives. The connection is always closed.
func (e *Engine) execute(
	ctx context.Context,
	r *run,
	target remote.Target,
	creds remote.Credentials,
	prepare func(remote.Session) error,
	command string,
) (string, int, error) {
	r.enter(StateConnecting)
	r.logf("Connecting to %s...\n", target)

	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.ConnectTimeout)
	sess, err := e.dialer.Dial(dialCtx, target, creds)
	cancel()
	if err != nil {
		r.logf("Connection Error: %v\n", err)
		return "", -1, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			r.logger.Debug("Failed to close remote session", "error", err)
		}
	}()

	if prepare != nil {
		if err := prepare(sess); err != nil {
			return "", -1, err
		}
	}

	r.enter(StateExecuting)
	exec, err := sess.Run(ctx, command)
	if err != nil {
		r.logf("Exec Error: %v\n", err)
		return "", -1, err
	}

	var output strings.Builder
	for chunk := range exec.Output() {
		output.Write(chunk.Data)
		r.publish(session.Log(string(chunk.Data)))
	}
	code, err := exec.Wait()
	r.logf("\nProcess finished with code: %d\n", code)
	return output.String(), code, err
}

// run tracks one provisioning attempt and guarantees a single terminal
// status event.
type run struct {
	sessions  *session.Registry
	sessionID string
	logger    *slog.Logger
	started   time.Time
	state     State
	finished  bool
}

func (e *Engine) newRun(sessionID, kind, host string) *run {
	return &run{
		sessions:  e.sessions,
		sessionID: sessionID,
		logger:    slog.With("session_id", sessionID, "run", kind, "host", host),
		started:   time.Now(),
		state:     StateValidating,
	}
}

func (r *run) enter(s State) {
	r.logger.Debug("Provisioning state changed", "from", r.state, "to", s)
	r.state = s
}

func (r *run) publish(ev session.Event) {
	r.sessions.Publish(r.sessionID, ev)
}

func (r *run) log(text string) {
	r.publish(session.Log(text))
}

func (r *run) logf(format string, args ...any) {
	r.log(fmt.Sprintf(format, args...))
}

func (r *run) succeed(status session.RunStatus, data any) {
	if r.finished {
		return
	}
	r.finished = true
	r.enter(StateDone)
	r.logger.Info("Provisioning run succeeded", "duration", time.Since(r.started))
	r.publish(session.Status(status, data))
}

func (r *run) fail(err error) {
	r.failWith(session.StatusError, err)
}

func (r *run) failWith(status session.RunStatus, err error) {
	if r.finished {
		return
	}
	r.finished = true
	failedIn := r.state
	r.enter(StateDone)
	r.logger.Error("Provisioning run failed", "state", failedIn, "error", err, "duration", time.Since(r.started))
	r.publish(session.Status(status, map[string]string{"message": err.Error()}))
}
