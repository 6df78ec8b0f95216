package filestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

const objectTable = "mailrag_objects"

//go:embed migrations/*.sql
var migrationsFS embed.FS

type postgresConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c *postgresConfig) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.DBName, sslmode)
}

// postgresStore keeps objects as rows of a single table. The schema is
// applied on first use, so constructing the store never dials.
type postgresStore struct {
	db *sqlx.DB

	mu       sync.Mutex
	migrated bool
}

func init() {
	Register("postgres", createPostgresStore)
}

func createPostgresStore(args interface{}) (Store, error) {
	cfg := &postgresConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.DSN == "" && (cfg.Host == "" || cfg.DBName == "") {
		return nil, fmt.Errorf("%w: postgres store needs dsn or host/dbname", appErr.ErrConfig)
	}
	db, err := sqlx.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", appErr.ErrConfig, err)
	}
	return NewPostgres(db), nil
}

func NewPostgres(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) Name() string {
	return "postgres"
}

func (s *postgresStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if err := s.migrate(ctx); err != nil {
		return false, err
	}
	sqlStr, args, err := buildQuery(map[string]interface{}{"key": key}, []string{"size"})
	if err != nil {
		return false, err
	}
	var size int64
	if err := s.db.GetContext(ctx, &size, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, classifyPGError(err)
	}
	return true, nil
}

func (s *postgresStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.migrate(ctx); err != nil {
		return err
	}
	const query = `
		INSERT INTO mailrag_objects (key, data, size, ctime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			size = EXCLUDED.size,
			ctime = EXCLUDED.ctime
	`
	if _, err := s.db.ExecContext(ctx, query, key, data, len(data), time.Now().Unix()); err != nil {
		return classifyPGError(err)
	}
	return nil
}

func (s *postgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	sqlStr, args, err := buildQuery(map[string]interface{}{"key": key}, []string{"data"})
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := s.db.GetContext(ctx, &data, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", appErr.ErrNotFound, key)
		}
		return nil, classifyPGError(err)
	}
	return data, nil
}

// List matches with LIKE and then filters exactly; '_' in a prefix is a
// LIKE wildcard.
func (s *postgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	sqlStr, args, err := buildQuery(map[string]interface{}{"key like": prefix + "%"}, []string{"key"})
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, sqlStr, args...); err != nil {
		return nil, classifyPGError(err)
	}
	return filterPrefix(keys, prefix), nil
}

func (s *postgresStore) migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.migrated {
		return nil
	}
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := migrationsFS.ReadFile(file)
		if err != nil {
			return err
		}
		for _, q := range strings.Split(string(content), ";") {
			if q = strings.TrimSpace(q); q == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("apply %s: %w", file, classifyPGError(err))
			}
		}
	}
	s.migrated = true
	return nil
}

func buildQuery(where map[string]interface{}, fields []string) (string, []interface{}, error) {
	sqlStr, args, err := builder.BuildSelect(objectTable, where, fields)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.DOLLAR, sqlStr), args, nil
}

func filterPrefix(keys []string, prefix string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// classifyPGError marks connection level failures as transient. Errors
// reported by the server itself pass through unchanged.
func classifyPGError(err error) error {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		if pgErr.Code.Class() == "08" || pgErr.Code.Class() == "57" {
			return fmt.Errorf("%w: postgres: %v", appErr.ErrTransient, err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: postgres: %v", appErr.ErrTransient, err)
}
