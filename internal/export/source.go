package export

import (
	"context"

	"github.com/jackc/pgx/v5"

	"datasender/cli/internal/dsn"
	"datasender/cli/internal/errors"
)

// Rows is a forward-only cursor over a query result.
type Rows interface {
	Columns() []string
	Next() bool
	Values() ([]any, error)
	Err() error
	Close()
}

// Source runs read-only queries against the data source.
type Source interface {
	Query(ctx context.Context, sql string) (Rows, error)
	Close(ctx context.Context) error
}

// Opener opens a Source. One Source is opened per export and closed before
// the export returns.
type Opener interface {
	Open(ctx context.Context) (Source, error)
}

// PgxOpener opens PostgreSQL connections with pgx.
type PgxOpener struct {
	// ConnString is a postgres URL, a keyword/value string or an ADO-style string.
	ConnString string
}

// Open normalizes the connection string and connects.
func (o PgxOpener) Open(ctx context.Context) (Source, error) {
	normalized, err := dsn.Parse(o.ConnString)
	if err != nil {
		return nil, errors.Wrap(errors.Config, "invalid Database.ConnectionString", err)
	}
	conn, err := pgx.Connect(ctx, normalized)
	if err != nil {
		return nil, err
	}
	return &pgxSource{conn: conn}, nil
}

type pgxSource struct {
	conn *pgx.Conn
}

// Query runs sql inside a read-only transaction that lives as long as the rows.
func (s *pgxSource) Query(ctx context.Context, sql string) (Rows, error) {
	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, sql)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}
	return &pgxRows{ctx: ctx, tx: tx, rows: rows, cols: cols}, nil
}

func (s *pgxSource) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

type pgxRows struct {
	ctx  context.Context
	tx   pgx.Tx
	rows pgx.Rows
	cols []string
}

func (r *pgxRows) Columns() []string      { return r.cols }
func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Values() ([]any, error) { return r.rows.Values() }
func (r *pgxRows) Err() error             { return r.rows.Err() }

func (r *pgxRows) Close() {
	r.rows.Close()
	_ = r.tx.Rollback(r.ctx)
}
