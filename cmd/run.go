// Copyright (c) 2025 DataSender
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pterm/pterm"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"datasender/cli/internal/config"
	"datasender/cli/internal/errors"
	"datasender/cli/internal/export"
	"datasender/cli/internal/keychain"
	"datasender/cli/internal/logging"
	"datasender/cli/internal/mailack"
	"datasender/cli/internal/notify"
	"datasender/cli/internal/pipeline"
)

// runOnce loads the configuration, opens the run log and runs the pipeline.
// It returns the process exit code.
func runOnce(ctx context.Context, explicitConfig, logDirFlag string, echo bool) int {
	clock := clockwork.NewRealClock()
	start := clock.Now()

	cfg, cfgErr := loadConfig(explicitConfig)

	dir := logDirFlag
	if cfg != nil {
		if err := cfg.CheckLogFolder(dir); err != nil {
			cfgErr, dir = err, ""
		}
		if dir == "" {
			dir = cfg.Log.Folder
		}
	}
	if dir == "" {
		dir = config.DefaultLogFolder
	}

	var echoTo io.Writer
	if echo {
		echoTo = os.Stderr
		pterm.EnableDebugMessages()
	}
	runLog, err := logging.OpenRunLog(dir, start, echoTo)
	if err != nil {
		pterm.Error.Println(logging.PresentError("cannot open run log", err))
		return errors.ExitFailure
	}
	defer runLog.Close()
	log := runLog.Logger

	if cfgErr != nil {
		log.Info("Starting the process...")
		log.Error("Error: " + logging.Mask(cfgErr.Error()))
		pterm.Error.Println(logging.PresentError("configuration", cfgErr))
		return errors.ExitCode(cfgErr)
	}

	p, err := buildPipeline(cfg, clock, log)
	if err != nil {
		log.Error("Error: " + logging.Mask(err.Error()))
		pterm.Error.Println(logging.PresentError("configuration", err))
		return errors.ExitCode(err)
	}

	outcome, runErr := p.Run(ctx)
	printSummary(p.Report(), runErr, runLog.Path)
	return pipeline.ExitCode(outcome, runErr)
}

// loadConfig locates and loads the configuration, filling empty secrets from
// the OS keychain when one is available.
func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.Locate(explicit)
	if err != nil {
		return nil, err
	}
	var secrets config.SecretSource
	if km, err := keychain.NewManager(); err == nil {
		secrets = km
	}
	return config.Load(path, secrets)
}

// buildPipeline wires the configured steps. Mail steps are enabled only when
// their group is present.
func buildPipeline(cfg *config.Config, clock clockwork.Clock, log *zap.Logger) (*pipeline.Pipeline, error) {
	format, err := export.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	fs := afero.NewOsFs()

	p := &pipeline.Pipeline{
		Query:       cfg.Database.Query,
		Folder:      cfg.Output.Folder,
		Format:      format,
		LockFile:    cfg.Lock.File,
		MetricsPath: cfg.Metrics.TextfilePath,
		Exporter: &export.Exporter{
			Opener: export.PgxOpener{ConnString: cfg.Database.ConnectionString},
			Fs:     fs,
			Clock:  clock,
			Table:  tableFromConfig(cfg.Output.Table),
			Logger: log,
		},
		Fs:     fs,
		Clock:  clock,
		Logger: log,
	}

	if cfg.AckEnabled() {
		pop := cfg.Email.Pop3
		p.Acknowledger = &mailack.Acknowledger{
			Dialer: mailack.POP3Dialer{
				Host:     pop.Server,
				Port:     pop.Port,
				User:     pop.User,
				Password: pop.Password,
			},
			Subject: pop.Subject,
			Logger:  log,
		}
	}

	if cfg.NotifyEnabled() {
		smtp := cfg.Email.Smtp
		p.Notifier = &notify.Notifier{
			Settings: notify.Settings{
				Server:   smtp.Server,
				Port:     smtp.Port,
				User:     smtp.User,
				Password: smtp.Password,
				From:     smtp.From,
				To:       smtp.Recipients(),
				Subject:  cfg.SendSubject(),
			},
			Logger: log,
		}
	}
	return p, nil
}

func tableFromConfig(t *config.Table) export.Table {
	if t == nil {
		return export.DefaultTable
	}
	out := export.Table{Name: t.Name, Columns: make([]export.Column, len(t.Columns))}
	for i, c := range t.Columns {
		out.Columns[i] = export.Column{Name: c.Name, Type: c.Type}
	}
	return out
}

func printSummary(r pipeline.Report, err error, logPath string) {
	switch r.Outcome {
	case pipeline.Done:
		if r.Artifact != nil {
			pterm.Success.Printfln("Data saved to %s (%d rows, %s)", r.Artifact.Path, r.Artifact.Rows, r.Elapsed.Round(time.Millisecond))
		} else {
			pterm.Success.Println("Process completed successfully.")
		}
	case pipeline.Skipped:
		pterm.Info.Println("Output directory is not empty, export skipped.")
	case pipeline.Locked:
		pterm.Warning.Println("Another run is in progress.")
	case pipeline.Failed:
		pterm.Error.Println(logging.PresentError("run failed", err))
	}
	if r.Acknowledged != "" {
		pterm.Info.Printfln("Acknowledged: %s", r.Acknowledged)
	}
	pterm.Debug.Printfln("run %s, log %s", r.RunID, logPath)
}
