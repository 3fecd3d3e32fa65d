package artifacts

import (
	"context"
	"fmt"
	"strings"
)

// Type names an artifact backend.
type Type string

const (
	TypeNone     Type = ""
	TypeMemory   Type = "memory"
	TypeLocal    Type = "local"
	TypePostgres Type = "postgres"
	TypeS3       Type = "s3"
)

func (t Type) String() string { return string(t) }

// ParseType accepts the backend name and its common aliases. An empty
// string disables artifact delivery.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "disabled":
		return TypeNone, nil
	case "memory":
		return TypeMemory, nil
	case "local", "file", "filesystem":
		return TypeLocal, nil
	case "postgres", "postgresql", "pg":
		return TypePostgres, nil
	case "s3", "aws", "amazon":
		return TypeS3, nil
	default:
		return "", fmt.Errorf("unknown artifact backend type: %s", s)
	}
}

// Config selects one backend and carries the settings of each.
type Config struct {
	Type     string         `yaml:"type" json:"type"`
	Local    LocalConfig    `yaml:"local" json:"local"`
	S3       S3Config       `yaml:"s3" json:"s3"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
}

// Open builds the store described by cfg. It returns (nil, nil) when
// artifact delivery is disabled.
func Open(ctx context.Context, cfg Config) (Store, error) {
	backend, err := ParseType(cfg.Type)
	if err != nil {
		return nil, err
	}

	switch backend {
	case TypeNone:
		return nil, nil
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeLocal:
		return NewLocalStore(cfg.Local)
	case TypeS3:
		return NewS3Store(ctx, cfg.S3)
	case TypePostgres:
		return NewPostgresStore(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported artifact backend: %s", backend)
	}
}
