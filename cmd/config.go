// Copyright (c) 2025 DataSender
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"datasender/cli/internal/config"
	"datasender/cli/internal/logging"
)

// configCmd shows the effective configuration with secrets masked.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `The config command loads and validates the configuration document the same
way a run does, including secrets from the OS keychain, and prints the result.
Passwords and the password part of the connection string are replaced with ***.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Locate(configPath)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(path)
		if err != nil {
			return err
		}

		pterm.DefaultSection.Println("Configuration " + path)
		if err := pterm.DefaultTable.WithHasHeader().WithData(configRows(cfg)).Render(); err != nil {
			return err
		}
		pterm.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func configRows(c *config.Config) pterm.TableData {
	rows := pterm.TableData{
		{"Setting", "Value"},
		{"Database.ConnectionString", maskPassword(c.Database.ConnectionString)},
		{"Database.Query", c.Database.Query},
		{"Output.Folder", c.Output.Folder},
		{"Output.Format", c.Output.Format},
	}
	if t := c.Output.Table; t != nil {
		cols := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			cols[i] = col.Name + " " + col.Type
		}
		rows = append(rows, []string{"Output.Table", fmt.Sprintf("%s (%s)", t.Name, strings.Join(cols, ", "))})
	}
	if p := c.Email.Pop3; p != nil {
		rows = append(rows,
			[]string{"Email.Pop3.Server", p.Server + ":" + strconv.Itoa(p.Port)},
			[]string{"Email.Pop3.User", p.User},
			[]string{"Email.Pop3.Password", logging.MaskSecret(p.Password)},
			[]string{"Email.Pop3.Subject", p.Subject},
		)
	} else {
		rows = append(rows, []string{"Email.Pop3", "disabled"})
	}
	if s := c.Email.Smtp; s != nil {
		rows = append(rows,
			[]string{"Email.Smtp.Server", s.Server + ":" + strconv.Itoa(s.Port)},
			[]string{"Email.Smtp.User", s.User},
			[]string{"Email.Smtp.Password", logging.MaskSecret(s.Password)},
			[]string{"Email.Smtp.From", s.From},
			[]string{"Email.Smtp.To", strings.Join(s.Recipients(), ", ")},
			[]string{"Subject sent", c.SendSubject()},
		)
	} else {
		rows = append(rows, []string{"Email.Smtp", "disabled"})
	}
	rows = append(rows,
		[]string{"Log.Folder", c.Log.Folder},
		[]string{"Lock.File", c.Lock.File},
	)
	if c.Metrics.TextfilePath != "" {
		rows = append(rows, []string{"Metrics.TextfilePath", c.Metrics.TextfilePath})
	}
	return rows
}

// maskPassword replaces the password in a connection string with ***.
// URL-style strings are rewritten through net/url; anything else goes through
// the log masking rules.
func maskPassword(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil || u.Scheme == "" {
		return logging.Mask(dsn)
	}
	if _, has := u.User.Password(); !has {
		return dsn
	}
	u.User = url.UserPassword(u.User.Username(), "***")
	return strings.Replace(u.String(), ":%2A%2A%2A@", ":***@", 1)
}
