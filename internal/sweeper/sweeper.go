package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/2026musik-code/autoscrip/internal/license"
	"github.com/2026musik-code/autoscrip/internal/provisioning"
	"github.com/2026musik-code/autoscrip/internal/remote"
	"github.com/2026musik-code/autoscrip/internal/store"
)

const (
	DefaultInterval        = 24 * time.Hour
	DefaultTeardownTimeout = 10 * time.Minute
)

type Config struct {
	Enabled           bool          `mapstructure:"enabled"`
	Interval          time.Duration `mapstructure:"interval"`
	ServiceName       string        `mapstructure:"service_name"`
	InstallDir        string        `mapstructure:"install_dir"`
	NginxAvailableDir string        `mapstructure:"nginx_available_dir"`
	NginxEnabledDir   string        `mapstructure:"nginx_enabled_dir"`
	TeardownTimeout   time.Duration `mapstructure:"teardown_timeout"`
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.TeardownTimeout <= 0 {
		c.TeardownTimeout = DefaultTeardownTimeout
	}
	if c.ServiceName == "" {
		c.ServiceName = "xray"
	}
	if c.InstallDir == "" {
		c.InstallDir = "/var/www/html"
	}
	if c.NginxAvailableDir == "" {
		c.NginxAvailableDir = "/etc/nginx/sites-available"
	}
	if c.NginxEnabledDir == "" {
		c.NginxEnabledDir = "/etc/nginx/sites-enabled"
	}
}

// Result summarizes one sweep cycle.
type Result struct {
	Expired  int // active records past their expiry date
	TornDown int
	Failed   int
	Skipped  int // credentials could not be decrypted
}

var errUnchanged = errors.New("record no longer active")

// Sweeper periodically tears down installations whose license expired
// and marks their records expired.
type Sweeper struct {
	cfg    Config
	store  store.Store
	dialer remote.Dialer
	cipher store.Decrypter
	now    func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
	running bool
}

func New(cfg Config, st store.Store, dialer remote.Dialer, cipher store.Decrypter) *Sweeper {
	cfg.applyDefaults()
	return &Sweeper{
		cfg:    cfg,
		store:  st,
		dialer: dialer,
		cipher: cipher,
		now:    time.Now,
	}
}

// Start runs one sweep immediately, then one per interval until Stop is
// called or ctx is done. Stop cancels the context handed to the sweep.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.cancel = cancel
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	slog.Info("Expiry sweeper started", "interval", s.cfg.Interval)

	go func() {
		defer close(done)
		defer cancel()
		s.runOnce(ctx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runOnce(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the ticker, aborts an in-progress teardown and waits for the
// sweep goroutine to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	slog.Info("Expiry sweeper stopped")
}

func (s *Sweeper) runOnce(ctx context.Context) {
	res, err := s.Sweep(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("Expiry sweep interrupted", "torn_down", res.TornDown)
		return
	}
	if err != nil {
		slog.Error("Expiry sweep failed", "error", err)
		return
	}
	if res.Expired > 0 {
		slog.Info("Expiry sweep finished",
			"expired", res.Expired,
			"torn_down", res.TornDown,
			"failed", res.Failed,
			"skipped", res.Skipped)
	}
}

// Sweep runs one cycle. A host that fails teardown stays active and is
// retried next cycle; it never stops the others.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result

	doc, err := s.store.Read(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read store: %w", err)
	}

	today := license.Today(s.now())
	for _, rec := range doc.Servers {
		if !isExpired(rec, today) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Expired++
		logger := slog.With("server_id", rec.ID, "domain", rec.Domain, "host", rec.Host)

		creds, err := rec.Credentials(s.cipher)
		if err != nil {
			res.Skipped++
			logger.Error("Cannot tear down expired server, credentials unusable", "error", err)
			continue
		}

		if err := s.teardown(ctx, rec, creds); err != nil {
			res.Failed++
			logger.Warn("Teardown of expired server failed, will retry next cycle", "error", err)
			continue
		}

		err = s.store.Mutate(ctx, func(doc *store.Document) error {
			i := doc.ServerIndex(rec.ID)
			if i < 0 || doc.Servers[i].Status != store.StatusActive {
				return errUnchanged
			}
			doc.Servers[i].Status = store.StatusExpired
			return nil
		})
		if err != nil && !errors.Is(err, errUnchanged) {
			res.Failed++
			logger.Error("Failed to mark server expired", "error", err)
			continue
		}

		res.TornDown++
		logger.Info("Expired server torn down")
	}

	return res, nil
}

func isExpired(rec store.ServerRecord, today time.Time) bool {
	return rec.Status == store.StatusActive && rec.ExpiresAt != nil && rec.ExpiresAt.Before(today)
}

func (s *Sweeper) teardown(ctx context.Context, rec store.ServerRecord, creds remote.Credentials) error {
	cmd, err := s.TeardownCommand(rec.Domain)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TeardownTimeout)
	defer cancel()

	sess, err := s.dialer.Dial(ctx, rec.Target(), creds)
	if err != nil {
		return err
	}
	defer sess.Close()

	output, code, err := remote.RunCommand(ctx, sess, cmd)
	if err != nil {
		return err
	}
	if code != 0 {
		return &remote.ExitError{Code: code, Output: output}
	}
	return nil
}

// TeardownCommand stops and disables the installed service, deletes its
// files and removes the domain's nginx site.
func (s *Sweeper) TeardownCommand(domain string) (string, error) {
	if err := provisioning.ValidateDomain(domain); err != nil {
		return "", err
	}

	svc := remote.Quote(s.cfg.ServiceName)
	sites := []string{
		remote.Quote(path.Join(s.cfg.NginxAvailableDir, domain)),
		remote.Quote(path.Join(s.cfg.NginxAvailableDir, domain+".conf")),
		remote.Quote(path.Join(s.cfg.NginxEnabledDir, domain)),
		remote.Quote(path.Join(s.cfg.NginxEnabledDir, domain+".conf")),
	}

	steps := []string{
		fmt.Sprintf("systemctl stop %s >/dev/null 2>&1", svc),
		fmt.Sprintf("systemctl disable %s >/dev/null 2>&1", svc),
		fmt.Sprintf("rm -rf %s && rm -f %s", remote.Quote(s.cfg.InstallDir), strings.Join(sites, " ")),
		"if command -v nginx >/dev/null 2>&1; then nginx -t >/dev/null 2>&1 && systemctl reload nginx; fi; true",
	}
	// The last step's status is ignored; rm decides the outcome.
	return strings.Join(steps[:3], "; ") + " && { " + steps[3] + "; }", nil
}
