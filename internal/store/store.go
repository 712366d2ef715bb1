package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrCorrupt = errors.New("store document is corrupt")
	ErrWrite   = errors.New("store document could not be written")
)

// Store owns the persisted Document. Mutate runs fn inside a single
// serialized critical section over a fresh copy of the document and
// persists the result atomically; if fn returns an error nothing is
// written and that error is returned unchanged.
type Store interface {
	Read(ctx context.Context) (Document, error)
	Mutate(ctx context.Context, fn func(doc *Document) error) error
	Close() error
}

const (
	DriverFile     = "file"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver         string `mapstructure:"driver"`
	Path           string `mapstructure:"path"`
	BoltPath       string `mapstructure:"bolt_path"`
	PostgresURL    string `mapstructure:"postgres_url"`
	PostgresSchema string `mapstructure:"postgres_schema"`
}

func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFile:
		return OpenFile(cfg.Path)
	case DriverBolt:
		return OpenBolt(cfg.BoltPath)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresURL, cfg.PostgresSchema)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

func decode(data []byte) (Document, error) {
	var doc Document
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}
	doc.normalize()
	return doc, nil
}

func encode(doc *Document) ([]byte, error) {
	doc.normalize()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return data, nil
}
