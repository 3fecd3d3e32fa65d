package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresConfig configures the PostgreSQL store. DSN, when set, wins over
// the individual connection fields.
type PostgresConfig struct {
	DSN          string `yaml:"dsn" json:"-"`
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	Database     string `yaml:"database" json:"database"`
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password" json:"-"`
	SSLMode      string `yaml:"ssl_mode" json:"ssl_mode"`
	Schema       string `yaml:"schema" json:"schema"`
	TableName    string `yaml:"table_name" json:"table_name"`
	ConnTimeout  int    `yaml:"conn_timeout" json:"conn_timeout"`
	MaxConns     int    `yaml:"max_conns" json:"max_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns" json:"max_idle_conns"`
}

// ConnectionString renders the lib/pq URL for cfg.
func (cfg PostgresConfig) ConnectionString() string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return u.String()
}

// PostgresStore keeps artifacts as rows of a single table.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore connects, pings and creates the artifact table when it
// does not exist.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	connector, err := pq.NewConnector(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL configuration: %w", err)
	}
	db := sql.OpenDB(connector)

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnTimeout > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnTimeout) * time.Second)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	store := NewPostgresStoreFromDB(db, cfg.Schema, cfg.TableName)
	if err := store.createTable(ctx, cfg.Schema); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreFromDB wraps an already opened database.
func NewPostgresStoreFromDB(db *sql.DB, schema, table string) *PostgresStore {
	if schema == "" {
		schema = "public"
	}
	if table == "" {
		table = "waterfall_artifacts"
	}
	return &PostgresStore{
		db:    db,
		table: pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table),
	}
}

func (s *PostgresStore) createTable(ctx context.Context, schema string) error {
	if schema != "" && schema != "public" {
		if _, err := s.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(schema)); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			content_type TEXT NOT NULL DEFAULT '',
			data BYTEA NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create artifact table: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error) {
	if err := ValidateKey(key); err != nil {
		return nil, &StoreError{Backend: TypePostgres, Operation: "put", Key: key, Err: err}
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`
		INSERT INTO %s (key, content_type, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key)
		DO UPDATE SET
			content_type = EXCLUDED.content_type,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`, s.table)

	if _, err := s.db.ExecContext(ctx, query, key, contentType, data, now); err != nil {
		return nil, &StoreError{Backend: TypePostgres, Operation: "put", Key: key, Err: err}
	}
	return &Artifact{Key: key, ContentType: contentType, Size: int64(len(data)), UpdatedAt: now}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Artifact, error) {
	query := fmt.Sprintf(`SELECT content_type, data, updated_at FROM %s WHERE key = $1`, s.table)

	artifact := &Artifact{Key: key}
	err := s.db.QueryRowContext(ctx, query, key).Scan(&artifact.ContentType, &artifact.Data, &artifact.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return nil, &StoreError{Backend: TypePostgres, Operation: "get", Key: key, Err: err}
	}
	artifact.Size = int64(len(artifact.Data))
	return artifact, nil
}

func (s *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf(`SELECT key FROM %s WHERE key LIKE $1 ESCAPE '\' ORDER BY key`, s.table)

	rows, err := s.db.QueryContext(ctx, query, likePrefix(prefix))
	if err != nil {
		return nil, &StoreError{Backend: TypePostgres, Operation: "list", Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &StoreError{Backend: TypePostgres, Operation: "list", Err: err}
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Backend: TypePostgres, Operation: "list", Err: err}
	}
	return keys, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return &StoreError{Backend: TypePostgres, Operation: "delete", Key: key, Err: err}
	}
	return nil
}

// likePrefix escapes LIKE wildcards in prefix and appends '%'.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
