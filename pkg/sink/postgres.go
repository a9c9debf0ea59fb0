package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq" // PostgreSQL driver
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// PostgresSink 旧式写入：每个样本一行
type PostgresSink struct {
	db        *sql.DB
	tableName string
	query     string
}

// OpenPostgres 打开连接并校验可用
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresSink(db, table)
}

func NewPostgresSink(db *sql.DB, table string) (*PostgresSink, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSink{
		db:        db,
		tableName: table,
		query: "INSERT INTO " + table +
			" (path, value, type, create_command, cycle_time, min, max, tags, ts) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)",
	}, nil
}

func (p *PostgresSink) Name() string { return "postgres" }

func (p *PostgresSink) SupportsTags() bool { return true }

func (p *PostgresSink) Write(ctx context.Context, path string, value *float64, typ string, opts WriteOptions) error {
	var tags any
	if len(opts.Tags) > 0 {
		b, err := json.Marshal(opts.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		tags = string(b)
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := p.db.ExecContext(ctx, p.query,
		path,
		nullFloat(value),
		typ,
		opts.CreateCommand,
		int64(opts.CycleTime/time.Second),
		nullFloat(opts.Min),
		nullFloat(opts.Max),
		tags,
		ts,
	)
	return err
}

func (p *PostgresSink) Close() error {
	return p.db.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

var (
	_ Writer    = (*PostgresSink)(nil)
	_ TagWriter = (*PostgresSink)(nil)
	_ Closer    = (*PostgresSink)(nil)
)
