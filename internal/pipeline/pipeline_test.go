package pipeline

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	dserrors "datasender/cli/internal/errors"
	"datasender/cli/internal/export"
)

type memRows struct {
	cols []string
	data [][]any
	pos  int
}

func (r *memRows) Columns() []string { return r.cols }
func (r *memRows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}
func (r *memRows) Values() ([]any, error) { return r.data[r.pos-1], nil }
func (r *memRows) Err() error             { return nil }
func (r *memRows) Close()                 {}

type memSource struct{ rows *memRows }

func (s memSource) Query(context.Context, string) (export.Rows, error) { return s.rows, nil }
func (s memSource) Close(context.Context) error                        { return nil }

type memOpener struct{ rows *memRows }

func (o memOpener) Open(context.Context) (export.Source, error) { return memSource(o), nil }

type fakeAck struct {
	name  string
	found bool
	err   error
	calls int
}

func (a *fakeAck) FindAndConsume(context.Context) (string, bool, error) {
	a.calls++
	return a.name, a.found, a.err
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, path string) error {
	n.sent = append(n.sent, path)
	return n.err
}

var now = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func newPipeline(t *testing.T, fs afero.Fs) (*Pipeline, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	clock := clockwork.NewFakeClockAt(now)
	rows := &memRows{
		cols: []string{"code", "name", "note"},
		data: [][]any{
			{int64(1), "saw", "sharp\tedge"},
			{int64(2), "hammer", "line\nbreak"},
		},
	}
	return &Pipeline{
		Query:  "SELECT code, name, note FROM items",
		Folder: "out",
		Format: export.FormatTSV,
		Exporter: &export.Exporter{
			Opener: memOpener{rows: rows},
			Fs:     fs,
			Clock:  clock,
		},
		Fs:     fs,
		Clock:  clock,
		Logger: zap.New(core),
	}, logs
}

func messages(logs *observer.ObservedLogs) []string {
	var out []string
	for _, e := range logs.All() {
		out = append(out, e.Message)
	}
	return out
}

func TestRun_ScenarioA_EmptyFolderExports(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("out", 0o755))
	p, logs := newPipeline(t, fs)
	n := &fakeNotifier{}
	p.Notifier = n

	outcome, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Done, outcome)

	path := filepath.Join("out", "20240102-093000.tsv")
	content, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Len(t, strings.Split(l, "\t"), 3)
	}
	assert.Equal(t, "1\tsaw\tsharp edge", lines[1])

	assert.Equal(t, []string{path}, n.sent)
	assert.Equal(t, []string{
		"Starting the process...",
		"Checking the output directory is empty...",
		"Executing SQL Select statement and Save data to TSV...",
		"Data saved to " + path,
		"Sending email...",
		"Email sent successfully.",
		"Process completed successfully.",
	}, messages(logs))

	r := p.Report()
	assert.Equal(t, Done, r.Outcome)
	require.NotNil(t, r.Artifact)
	assert.Equal(t, 2, r.Artifact.Rows)
	assert.NotEmpty(t, r.RunID)
}

func TestRun_ScenarioB_LeftoverSkips(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join("out", "20231231-093000.tsv"), []byte("x"), 0o644))
	p, logs := newPipeline(t, fs)

	outcome, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome)
	assert.Equal(t, 1, logs.FilterMessage("Output directory is not empty.").Len())

	entries, err := afero.ReadDir(fs, "out")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, dserrors.ExitSkipped, ExitCode(outcome, err))
}

func TestRun_MissingFolderSkips(t *testing.T) {
	p, _ := newPipeline(t, afero.NewMemMapFs())

	outcome, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome)
}

func TestRun_ScenarioC_AcknowledgmentDeletesThenExports(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join("out", "2024-01-01.tsv"), []byte("old"), 0o644))
	p, logs := newPipeline(t, fs)
	ack := &fakeAck{name: "2024-01-01.tsv", found: true}
	p.Acknowledger = ack

	outcome, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Done, outcome)
	assert.Equal(t, 1, ack.calls)

	exists, err := afero.Exists(fs, filepath.Join("out", "2024-01-01.tsv"))
	require.NoError(t, err)
	assert.False(t, exists)

	msgs := messages(logs)
	assert.Contains(t, msgs, "Deleting files that have been updated.")
	assert.Contains(t, msgs, "Checking the output directory is empty...")
	assert.NotContains(t, msgs, "Output directory is not empty.")
	assert.Equal(t, "2024-01-01.tsv", p.Report().Acknowledged)
}

func TestRun_AcknowledgedFileMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("out", 0o755))
	p, logs := newPipeline(t, fs)
	p.Acknowledger = &fakeAck{name: "gone.tsv", found: true}

	outcome, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Done, outcome)
	assert.Equal(t, 1, logs.FilterMessage("Target File Not Found.").Len())
}

type statErrFs struct {
	afero.Fs
	path string
	err  error
}

func (f statErrFs) Stat(name string) (os.FileInfo, error) {
	if name == f.path {
		return nil, &os.PathError{Op: "stat", Path: name, Err: f.err}
	}
	return f.Fs.Stat(name)
}

func TestRun_AcknowledgedFileUnreadable(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, filepath.Join("out", "a.tsv"), []byte("x"), 0o644))
	fs := statErrFs{Fs: mem, path: filepath.Join("out", "a.tsv"), err: os.ErrPermission}
	p, logs := newPipeline(t, fs)
	p.Acknowledger = &fakeAck{name: "a.tsv", found: true}

	outcome, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, Failed, outcome)
	assert.Equal(t, dserrors.Export, dserrors.KindOf(err))
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, 0, logs.FilterMessage("Target File Not Found.").Len())

	exists, _ := afero.Exists(mem, filepath.Join("out", "a.tsv"))
	assert.True(t, exists)
}

func TestRun_AcknowledgedNameOutsideFolder(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "keep.txt", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join("out", "a.tsv"), []byte("x"), 0o644))
	p, logs := newPipeline(t, fs)
	p.Acknowledger = &fakeAck{name: "../keep.txt", found: true}

	outcome, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome)
	assert.Equal(t, 1, logs.FilterMessage("Target File Not Found.").Len())

	exists, _ := afero.Exists(fs, "keep.txt")
	assert.True(t, exists)
}

func TestRun_Failures(t *testing.T) {
	t.Run("mailbox", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		p, logs := newPipeline(t, fs)
		p.Acknowledger = &fakeAck{err: dserrors.Wrap(dserrors.Connectivity, "cannot open the mailbox", stderrors.New("auth failed"))}

		outcome, err := p.Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, Failed, outcome)
		assert.Equal(t, dserrors.ExitConnectivity, ExitCode(outcome, err))
		assert.Equal(t, 1, logs.FilterMessage("Error: cannot open the mailbox: auth failed").Len())
		assert.Equal(t, 0, logs.FilterMessage("Checking the output directory is empty...").Len())
	})

	t.Run("export", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("out", 0o755))
		p, _ := newPipeline(t, fs)
		p.Exporter = failingExporter{err: dserrors.New(dserrors.Export, "query failed")}
		n := &fakeNotifier{}
		p.Notifier = n

		outcome, err := p.Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, Failed, outcome)
		assert.Equal(t, dserrors.ExitExport, ExitCode(outcome, err))
		assert.Empty(t, n.sent)
	})

	t.Run("notify", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("out", 0o755))
		p, logs := newPipeline(t, fs)
		p.Notifier = &fakeNotifier{err: dserrors.New(dserrors.Connectivity, "relay down")}

		outcome, err := p.Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, Failed, outcome)
		assert.Equal(t, 0, logs.FilterMessage("Process completed successfully.").Len())
	})

	t.Run("error line is masked", func(t *testing.T) {
		p, logs := newPipeline(t, afero.NewMemMapFs())
		p.Acknowledger = &fakeAck{err: stderrors.New("dial postgres://app:hunter2@db/shop failed")}

		_, err := p.Run(context.Background())
		require.Error(t, err)
		entries := logs.FilterLevelExact(zap.ErrorLevel).All()
		require.Len(t, entries, 1)
		assert.NotContains(t, entries[0].Message, "hunter2")
	})
}

type failingExporter struct{ err error }

func (e failingExporter) Export(context.Context, string, string, export.Format) (*export.Artifact, error) {
	return nil, e.err
}

func TestRun_LockHeld(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "log", "datasender.lock")
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0o755))
	holder := flock.New(lockPath)
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer holder.Unlock()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("out", 0o755))
	p, logs := newPipeline(t, fs)
	p.LockFile = lockPath
	ack := &fakeAck{}
	p.Acknowledger = ack

	outcome, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Locked, outcome)
	assert.Equal(t, []string{
		"Starting the process...",
		"Acquiring the run lock...",
		"Another run is in progress.",
	}, messages(logs))
	assert.Equal(t, dserrors.ExitLocked, ExitCode(outcome, err))
	assert.Equal(t, 0, ack.calls)

	entries, err := afero.ReadDir(fs, "out")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_LockReleasedAfterRun(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "datasender.lock")
	fs := afero.NewMemMapFs()
	p, logs := newPipeline(t, fs)
	p.LockFile = lockPath

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, logs.All())
	assert.Equal(t, "Acquiring the run lock...", messages(logs)[1])

	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	assert.True(t, locked)
	require.NoError(t, other.Unlock())
}

func TestRun_WritesMetrics(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("out", 0o755))
	p, _ := newPipeline(t, fs)
	p.MetricsPath = filepath.Join(t.TempDir(), "datasender.prom")

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	b, err := os.ReadFile(p.MetricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), `datasender_last_run_outcome{outcome="done"} 1`)
	assert.Contains(t, string(b), "datasender_last_export_rows 2")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, dserrors.ExitOK, ExitCode(Done, nil))
	assert.Equal(t, dserrors.ExitSkipped, ExitCode(Skipped, nil))
	assert.Equal(t, dserrors.ExitLocked, ExitCode(Locked, nil))
	assert.Equal(t, dserrors.ExitConfig, ExitCode(Failed, dserrors.New(dserrors.Config, "x")))
	assert.Equal(t, dserrors.ExitFailure, ExitCode(Failed, stderrors.New("x")))
}
