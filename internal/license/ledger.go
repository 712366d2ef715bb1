package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/2026musik-code/autoscrip/internal/store"
)

const MaxMonths = 120

var (
	ErrNotFound      = errors.New("license token not found")
	ErrAlreadyUsed   = errors.New("license token already used")
	ErrInvalidMonths = fmt.Errorf("months must be between 1 and %d", MaxMonths)
)

// Ledger issues and validates license tokens. Consumption happens inside
// the store mutation that creates the server record, via Consume.
type Ledger struct {
	store store.Store
	now   func() time.Time
}

func NewLedger(st store.Store) *Ledger {
	return &Ledger{store: st, now: time.Now}
}

func (l *Ledger) Issue(ctx context.Context, months int, note string) (store.LicenseToken, error) {
	if months < 1 || months > MaxMonths {
		return store.LicenseToken{}, ErrInvalidMonths
	}

	var issued store.LicenseToken
	err := l.store.Mutate(ctx, func(doc *store.Document) error {
		token, err := NewToken()
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		if doc.TokenIndex(token) >= 0 {
			return fmt.Errorf("token collision, try again")
		}
		issued = store.LicenseToken{
			Token:     token,
			Months:    months,
			CreatedAt: l.now().UTC(),
			Note:      note,
		}
		doc.LicenseTokens = append(doc.LicenseTokens, issued)
		return nil
	})
	if err != nil {
		return store.LicenseToken{}, err
	}

	slog.Info("License token issued", "token", issued.Token, "months", months)
	return issued, nil
}

// List returns all tokens, newest first.
func (l *Ledger) List(ctx context.Context) ([]store.LicenseToken, error) {
	doc, err := l.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	tokens := doc.LicenseTokens
	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
	return tokens, nil
}

func (l *Ledger) Validate(ctx context.Context, token string) (store.LicenseToken, error) {
	doc, err := l.store.Read(ctx)
	if err != nil {
		return store.LicenseToken{}, err
	}
	return Check(&doc, token)
}

// Check finds an unused token in doc.
func Check(doc *store.Document, token string) (store.LicenseToken, error) {
	i := doc.TokenIndex(Normalize(token))
	if i < 0 {
		return store.LicenseToken{}, ErrNotFound
	}
	if doc.LicenseTokens[i].IsUsed {
		return store.LicenseToken{}, ErrAlreadyUsed
	}
	return doc.LicenseTokens[i], nil
}

// Consume marks token used by domain and returns the expiry date it
// grants. It must run inside the same store mutation that records the
// server the token pays for.
func (l *Ledger) Consume(doc *store.Document, token, domain string, now time.Time) (time.Time, error) {
	lic, err := Check(doc, token)
	if err != nil {
		return time.Time{}, err
	}

	i := doc.TokenIndex(lic.Token)
	usedAt := now.UTC()
	doc.LicenseTokens[i].IsUsed = true
	doc.LicenseTokens[i].UsedAt = &usedAt
	doc.LicenseTokens[i].UsedByDomain = domain

	return ExpiryDate(now, lic.Months), nil
}

// ExpiryDate adds whole calendar months to the UTC date of from. When the
// target month is shorter, the date clamps to its last day, so Jan 31 plus
// one month is Feb 28 (or 29).
func ExpiryDate(from time.Time, months int) time.Time {
	from = from.UTC()
	y, m, d := from.Date()

	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, time.UTC)
}

// Today returns the UTC calendar date of t at midnight.
func Today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
