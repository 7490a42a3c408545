// Package pipeline runs one export-and-handoff cycle:
//
//	Lock -> (Acknowledge) -> GateCheck -> {Skip | Export -> (Notify)} -> Done
//
// Any state may end the run with a typed error. Every state writes one
// progress line to the run log before it acts.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"datasender/cli/internal/errors"
	"datasender/cli/internal/export"
	"datasender/cli/internal/gate"
	"datasender/cli/internal/logging"
	"datasender/cli/internal/metrics"
	"datasender/cli/internal/runlock"
)

// Outcome is the terminal state of a run.
type Outcome string

const (
	// Done means the run completed, with or without an export.
	Done Outcome = "done"
	// Skipped means the output folder still held a previous artifact.
	Skipped Outcome = "skipped"
	// Locked means another run held the run lock.
	Locked Outcome = "locked"
	// Failed means the run stopped on an error.
	Failed Outcome = "failed"
)

// ExitCode maps an outcome and its error to the process exit code.
func ExitCode(o Outcome, err error) int {
	switch {
	case err != nil:
		return errors.ExitCode(err)
	case o == Skipped:
		return errors.ExitSkipped
	case o == Locked:
		return errors.ExitLocked
	default:
		return errors.ExitOK
	}
}

// Acknowledger consumes the newest acknowledgment from the mailbox.
type Acknowledger interface {
	FindAndConsume(ctx context.Context) (name string, found bool, err error)
}

// Exporter writes the query result to a new artifact.
type Exporter interface {
	Export(ctx context.Context, query, folder string, format export.Format) (*export.Artifact, error)
}

// Notifier mails an artifact.
type Notifier interface {
	Send(ctx context.Context, artifactPath string) error
}

// Pipeline holds the settings and collaborators of one run.
// Acknowledger and Notifier are optional; nil disables the step.
type Pipeline struct {
	Query  string
	Folder string
	Format export.Format
	// LockFile enables the run lock when set.
	LockFile string
	// MetricsPath enables the textfile metrics when set.
	MetricsPath string

	Acknowledger Acknowledger
	Exporter     Exporter
	Notifier     Notifier

	Fs     afero.Fs
	Clock  clockwork.Clock
	Logger *zap.Logger

	report Report
}

// Report summarizes the last run.
type Report struct {
	RunID        string
	Outcome      Outcome
	Acknowledged string
	Artifact     *export.Artifact
	Started      time.Time
	Elapsed      time.Duration
}

// Report returns the summary of the last Run.
func (p *Pipeline) Report() Report { return p.report }

// Run executes the pipeline once. A skipped or locked run is not an error.
// A failed run logs "Error: <message>" and returns the typed error.
func (p *Pipeline) Run(ctx context.Context) (Outcome, error) {
	if p.Fs == nil {
		p.Fs = afero.NewOsFs()
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	start := p.Clock.Now()
	p.report = Report{RunID: uuid.NewString(), Started: start}
	m := metrics.New()

	p.Logger.Info("Starting the process...", zap.String("run", p.report.RunID))
	outcome, err := p.run(ctx, m)
	if err != nil {
		outcome = Failed
		p.Logger.Error("Error: " + logging.Mask(err.Error()))
	}

	p.report.Outcome = outcome
	p.report.Elapsed = p.Clock.Since(start)
	p.writeMetrics(m, err)
	return outcome, err
}

func (p *Pipeline) run(ctx context.Context, m *metrics.Run) (Outcome, error) {
	if p.LockFile != "" {
		p.Logger.Info("Acquiring the run lock...")
		lock, err := runlock.TryAcquire(p.LockFile)
		if err != nil {
			return Failed, err
		}
		if lock == nil {
			p.Logger.Info("Another run is in progress.", zap.String("lock", p.LockFile))
			return Locked, nil
		}
		defer func() {
			if err := lock.Release(); err != nil {
				p.Logger.Warn("releasing run lock failed", zap.Error(err))
			}
		}()
	}

	if p.Acknowledger != nil {
		if err := p.acknowledge(ctx, m); err != nil {
			return Failed, err
		}
	}

	p.Logger.Info("Checking the output directory is empty...")
	empty, err := gate.IsEmpty(p.Fs, p.Folder)
	if err != nil {
		return Failed, errors.Wrapf(errors.Export, err, "cannot inspect output folder %q", p.Folder)
	}
	if !empty {
		p.Logger.Info("Output directory is not empty.")
		return Skipped, nil
	}

	p.Logger.Info(exportLine(p.Format))
	art, err := p.Exporter.Export(ctx, p.Query, p.Folder, p.Format)
	if err != nil {
		return Failed, err
	}
	p.report.Artifact = art
	m.ExportedRows.Set(float64(art.Rows))
	p.Logger.Info("Data saved to "+art.Path, zap.Int("rows", art.Rows))

	if p.Notifier != nil {
		p.Logger.Info("Sending email...")
		if err := p.Notifier.Send(ctx, art.Path); err != nil {
			return Failed, err
		}
		p.Logger.Info("Email sent successfully.")
	}

	p.Logger.Info("Process completed successfully.")
	return Done, nil
}

// acknowledge consumes one acknowledgment and removes the file it names.
// A missing or invalid file name is logged and never fails the run.
func (p *Pipeline) acknowledge(ctx context.Context, m *metrics.Run) error {
	p.Logger.Info("Checking for updated notification mail...")
	name, found, err := p.Acknowledger.FindAndConsume(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	p.report.Acknowledged = name
	m.Acknowledged.Set(1)

	p.Logger.Info("Deleting files that have been updated.", zap.String("file", name))
	if !isPlainFileName(name) {
		warn := errors.New(errors.NotFound, "Target File Not Found.")
		p.Logger.Warn(warn.Message, zap.String("reason", "not a file name"), zap.String("file", name))
		return nil
	}

	target := filepath.Join(p.Folder, name)
	if _, err := p.Fs.Stat(target); err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrapf(errors.Export, err, "cannot inspect %q", target)
		}
		p.Logger.Warn("Target File Not Found.", zap.String("file", name))
		return nil
	}
	if err := p.Fs.Remove(target); err != nil {
		return errors.Wrapf(errors.Export, err, "cannot delete %q", target)
	}
	return nil
}

func (p *Pipeline) writeMetrics(m *metrics.Run, runErr error) {
	if p.MetricsPath == "" {
		return
	}
	m.Finish(p.report.Started, p.report.Elapsed, string(p.report.Outcome), string(errors.KindOf(runErr)))
	if err := m.WriteTextfile(p.MetricsPath); err != nil {
		p.Logger.Warn("writing metrics failed", zap.String("path", p.MetricsPath), zap.Error(err))
	}
}

func exportLine(f export.Format) string {
	switch f {
	case export.FormatSQLite:
		return "Executing SQL Select statement and Save data to SQLite DB..."
	case export.FormatCSV:
		return "Executing SQL Select statement and Save data to CSV..."
	default:
		return "Executing SQL Select statement and Save data to TSV..."
	}
}

// isPlainFileName reports whether name names an entry directly inside the
// output folder.
func isPlainFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
