// Package hostops runs administrative commands against provisioned
// servers using their stored credentials.
package hostops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/2026musik-code/autoscrip/internal/remote"
	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/charmbracelet/x/ansi"
)

const (
	DefaultAccessTokenFile = "/etc/autoscrip/access_tokens.json"
	DefaultSpeedtestURL    = "http://speedtest.tele2.net/10MB.zip"
)

var (
	ErrServerNotFound    = errors.New("server not found")
	ErrUnknownDiagnostic = errors.New("unknown diagnostic kind")
	ErrTokenExists       = errors.New("access token already present")
	ErrTokenNotFound     = errors.New("access token not present")
	ErrInvalidTokenFile  = errors.New("remote access token file is not valid JSON")
)

type Kind string

const (
	KindTraffic Kind = "traffic"
	KindSpeed   Kind = "speed"
)

type Config struct {
	AccessTokenFile  string `mapstructure:"access_token_file"`
	SpeedtestURL     string `mapstructure:"speedtest_url"`
	TrafficInterface string `mapstructure:"traffic_interface"`
}

type Service struct {
	cfg    Config
	store  store.Store
	dialer remote.Dialer
	cipher store.Decrypter
}

func NewService(cfg Config, st store.Store, dialer remote.Dialer, cipher store.Decrypter) *Service {
	if cfg.AccessTokenFile == "" {
		cfg.AccessTokenFile = DefaultAccessTokenFile
	}
	if cfg.SpeedtestURL == "" {
		cfg.SpeedtestURL = DefaultSpeedtestURL
	}
	return &Service{cfg: cfg, store: st, dialer: dialer, cipher: cipher}
}

// Report is the result of one diagnostic run.
type Report struct {
	ServerID  string   `json:"server_id"`
	Kind      Kind     `json:"kind"`
	Output    string   `json:"output"`
	SpeedMbps *float64 `json:"speed_mbps,omitempty"`
}

func (s *Service) Diagnose(ctx context.Context, serverID string, kind Kind) (Report, error) {
	var cmd string
	switch kind {
	case KindTraffic:
		cmd = s.trafficCommand()
	case KindSpeed:
		cmd = fmt.Sprintf("curl -o /dev/null -s -w '%%{speed_download}' --max-time 30 %s", remote.Quote(s.cfg.SpeedtestURL))
	default:
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownDiagnostic, kind)
	}

	report := Report{ServerID: serverID, Kind: kind}
	err := s.withSession(ctx, serverID, func(sess remote.Session) error {
		output, code, err := remote.RunCommand(ctx, sess, cmd)
		if err != nil {
			return err
		}
		if code != 0 {
			return &remote.ExitError{Code: code, Output: output}
		}
		report.Output = strings.TrimSpace(ansi.Strip(output))
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	if kind == KindSpeed {
		bytesPerSec, err := strconv.ParseFloat(report.Output, 64)
		if err == nil {
			mbps := bytesPerSec * 8 / 1_000_000
			report.SpeedMbps = &mbps
		}
	}
	return report, nil
}

func (s *Service) trafficCommand() string {
	vnstat := "vnstat"
	proc := "cat /proc/net/dev"
	if iface := s.cfg.TrafficInterface; iface != "" {
		vnstat = "vnstat -i " + remote.Quote(iface)
		proc = fmt.Sprintf("grep -E %s /proc/net/dev", remote.Quote("^ *"+iface+":"))
	}
	return fmt.Sprintf("if command -v vnstat >/dev/null 2>&1; then %s; else %s; fi", vnstat, proc)
}

// AccessToken is one entry of the remote access token file. Unknown fields
// already present on the host are preserved.
type AccessToken map[string]any

func (t AccessToken) Token() string {
	v, _ := t["token"].(string)
	return v
}

func (s *Service) ListAccessTokens(ctx context.Context, serverID string) ([]AccessToken, error) {
	var tokens []AccessToken
	err := s.withSession(ctx, serverID, func(sess remote.Session) error {
		var err error
		tokens, err = s.readTokens(ctx, sess)
		return err
	})
	return tokens, err
}

func (s *Service) AddAccessToken(ctx context.Context, serverID, token, note string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("access token is required")
	}
	return s.editTokens(ctx, serverID, func(tokens []AccessToken) ([]AccessToken, error) {
		for _, t := range tokens {
			if t.Token() == token {
				return nil, ErrTokenExists
			}
		}
		entry := AccessToken{"token": token, "created_at": time.Now().UTC().Format(time.RFC3339)}
		if note != "" {
			entry["note"] = note
		}
		return append(tokens, entry), nil
	})
}

func (s *Service) RemoveAccessToken(ctx context.Context, serverID, token string) error {
	token = strings.TrimSpace(token)
	return s.editTokens(ctx, serverID, func(tokens []AccessToken) ([]AccessToken, error) {
		out := tokens[:0]
		for _, t := range tokens {
			if t.Token() != token {
				out = append(out, t)
			}
		}
		if len(out) == len(tokens) {
			return nil, ErrTokenNotFound
		}
		return out, nil
	})
}

// editTokens reads the token file, applies fn and writes the result to a
// temp file that is then moved over the original.
func (s *Service) editTokens(ctx context.Context, serverID string, fn func([]AccessToken) ([]AccessToken, error)) error {
	return s.withSession(ctx, serverID, func(sess remote.Session) error {
		tokens, err := s.readTokens(ctx, sess)
		if err != nil {
			return err
		}
		tokens, err = fn(tokens)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(tokens, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode access tokens: %w", err)
		}
		data = append(data, '\n')

		path := s.cfg.AccessTokenFile
		tmp := path + ".tmp"
		if err := sess.Upload(ctx, tmp, data, 0o600); err != nil {
			return err
		}
		output, code, err := remote.RunCommand(ctx, sess, fmt.Sprintf("mv -f %s %s", remote.Quote(tmp), remote.Quote(path)))
		if err != nil {
			return err
		}
		if code != 0 {
			return &remote.ExitError{Code: code, Output: output}
		}

		slog.Info("Access token file updated", "server_id", serverID, "entries", len(tokens))
		return nil
	})
}

func (s *Service) readTokens(ctx context.Context, sess remote.Session) ([]AccessToken, error) {
	path := remote.Quote(s.cfg.AccessTokenFile)
	output, code, err := remote.RunCommand(ctx, sess, fmt.Sprintf("if [ -f %s ]; then cat %s; fi", path, path))
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, &remote.ExitError{Code: code, Output: output}
	}

	tokens := []AccessToken{}
	output = strings.TrimSpace(output)
	if output == "" {
		return tokens, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(output)))
	dec.UseNumber()
	if err := dec.Decode(&tokens); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTokenFile, err)
	}
	return tokens, nil
}

func (s *Service) withSession(ctx context.Context, serverID string, fn func(remote.Session) error) error {
	doc, err := s.store.Read(ctx)
	if err != nil {
		return err
	}
	i := doc.ServerIndex(serverID)
	if i < 0 {
		return ErrServerNotFound
	}
	rec := doc.Servers[i]

	creds, err := rec.Credentials(s.cipher)
	if err != nil {
		return err
	}

	sess, err := s.dialer.Dial(ctx, rec.Target(), creds)
	if err != nil {
		return err
	}
	defer sess.Close()

	return fn(sess)
}
