// Package export runs the configured query and serializes its result set to a
// new file in the output folder: delimited text (TSV or CSV) or a SQLite
// database holding one fixed-schema table.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"datasender/cli/internal/errors"
)

// Format is the artifact encoding.
type Format string

const (
	FormatTSV    Format = "tsv"
	FormatCSV    Format = "csv"
	FormatSQLite Format = "sqlite"
)

// ParseFormat maps a configuration value to a Format; empty means TSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTSV, nil
	case FormatTSV, FormatCSV, FormatSQLite:
		return f, nil
	default:
		return "", errors.New(errors.Config, fmt.Sprintf("unknown output format %q", s))
	}
}

// Artifact describes a file produced by one export.
type Artifact struct {
	Path      string
	Format    Format
	CreatedAt time.Time
	Rows      int
	Columns   []string
}

// Exporter runs the query and writes the artifact.
type Exporter struct {
	Opener Opener
	// Fs hosts delimited artifacts. SQLite artifacts are always written to the
	// OS filesystem because the driver opens the file itself.
	Fs     afero.Fs
	Clock  clockwork.Clock
	Table  Table
	Logger *zap.Logger
}

// ArtifactPath names the artifact after now: yyyyMMdd-HHmmss for delimited
// formats, yyyyMMdd for SQLite.
func ArtifactPath(folder string, format Format, now time.Time) string {
	if format == FormatSQLite {
		return filepath.Join(folder, now.Format("20060102")+".sqlite")
	}
	return filepath.Join(folder, now.Format("20060102-150405")+"."+string(format))
}

// Export executes query and writes the result to a new file in folder.
// Partial files are left in place on failure.
func (e *Exporter) Export(ctx context.Context, query, folder string, format Format) (*Artifact, error) {
	fs := e.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	clock := e.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	table := e.Table
	if table.Name == "" {
		table = DefaultTable
	}
	log := e.Logger
	if log == nil {
		log = zap.NewNop()
	}

	now := clock.Now()
	path := ArtifactPath(folder, format, now)

	switch format {
	case FormatTSV, FormatCSV:
	case FormatSQLite:
		if _, err := os.Stat(path); err == nil {
			return nil, errors.New(errors.Export, fmt.Sprintf("%s already exists", path))
		}
	default:
		return nil, errors.New(errors.Export, fmt.Sprintf("unsupported format %q", format))
	}

	src, err := e.Opener.Open(ctx)
	if err != nil {
		if errors.KindOf(err) != "" {
			return nil, err
		}
		return nil, errors.Wrap(errors.Connectivity, "cannot connect to the data source", err)
	}
	defer func() {
		if cerr := src.Close(ctx); cerr != nil {
			log.Warn("closing data source failed", zap.Error(cerr))
		}
	}()

	rows, err := src.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(errors.Export, "query failed", err)
	}
	defer rows.Close()

	art := &Artifact{Path: path, Format: format, CreatedAt: now, Columns: rows.Columns()}

	switch format {
	case FormatSQLite:
		art.Rows, err = writeSQLite(ctx, path, table, rows)
		if err != nil {
			return nil, errors.Wrapf(errors.Export, err, "cannot write %s", path)
		}
	default:
		f, err := fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errors.Wrapf(errors.Export, err, "cannot create %s", path)
		}
		art.Rows, err = writeDelimited(f, format, rows)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, errors.Wrapf(errors.Export, err, "cannot write %s", path)
		}
	}

	return art, nil
}
