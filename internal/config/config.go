// Package config loads the run configuration document.
// The document is read once per run; groups that are present enable the
// matching feature (Email.Pop3 enables acknowledgments, Email.Smtp enables the
// notification mail) and every required field of an enabled group is checked
// at load time.
package config

import (
	"bytes"
	"encoding/xml"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"datasender/cli/internal/errors"
	"datasender/cli/internal/xdg"
)

// Output formats.
const (
	FormatTSV    = "tsv"
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Default ports and locations.
const (
	DefaultPop3Port  = 995
	DefaultSmtpPort  = 587
	DefaultLogFolder = "log"
	LockFileName     = "datasender.lock"
)

// Keys looked up in the secret store when the document leaves them empty.
const (
	SecretDB   = "db"
	SecretPop3 = "pop3"
	SecretSmtp = "smtp"
)

// Config holds the settings of one pipeline run.
type Config struct {
	Database Database `xml:"Database" yaml:"database"`
	Output   Output   `xml:"Output" yaml:"output"`
	Email    Email    `xml:"Email" yaml:"email"`
	Company  *Company `xml:"Company" yaml:"company"`
	Log      Log      `xml:"Log" yaml:"log"`
	Lock     Lock     `xml:"Lock" yaml:"lock"`
	Metrics  Metrics  `xml:"Metrics" yaml:"metrics"`
}

// Database holds the data source settings.
type Database struct {
	ConnectionString string `xml:"ConnectionString" yaml:"connectionString" validate:"required"`
	Query            string `xml:"Query" yaml:"query" validate:"required"`
}

// Output holds the delivery folder and artifact format.
type Output struct {
	Folder string `xml:"Folder" yaml:"folder" validate:"required"`
	Format string `xml:"Format" yaml:"format" validate:"oneof=tsv csv sqlite"`
	Table  *Table `xml:"Table" yaml:"table"`
}

// Table overrides the schema of the SQLite artifact.
type Table struct {
	Name    string   `xml:"Name,attr" yaml:"name" validate:"required"`
	Columns []Column `xml:"Column" yaml:"columns" validate:"required,min=1,dive"`
}

// Column is one declared column of the SQLite artifact.
type Column struct {
	Name string `xml:"Name,attr" yaml:"name" validate:"required"`
	Type string `xml:"Type,attr" yaml:"type" validate:"oneof=INTEGER TEXT REAL"`
}

// Email groups the optional mail features.
type Email struct {
	Pop3 *Pop3 `xml:"Pop3" yaml:"pop3"`
	Smtp *Smtp `xml:"Smtp" yaml:"smtp"`
}

// Pop3 holds the acknowledgment mailbox settings.
type Pop3 struct {
	Server   string `xml:"Server" yaml:"server" validate:"required"`
	Port     int    `xml:"Port" yaml:"port" validate:"min=1,max=65535"`
	User     string `xml:"User" yaml:"user" validate:"required"`
	Password string `xml:"Password" yaml:"password" validate:"required"`
	Subject  string `xml:"Subject" yaml:"subject" validate:"required"`
}

// Smtp holds the notification mail settings.
type Smtp struct {
	To       string `xml:"To" yaml:"to" validate:"required"`
	From     string `xml:"From" yaml:"from" validate:"required,email"`
	Server   string `xml:"Server" yaml:"server" validate:"required"`
	Port     int    `xml:"Port" yaml:"port" validate:"min=1,max=65535"`
	User     string `xml:"User" yaml:"user" validate:"required"`
	Password string `xml:"Password" yaml:"password" validate:"required"`
	Subject  string `xml:"Subject" yaml:"subject" validate:"required"`
}

// Company identifies the sender; its Id is appended to the notification subject.
type Company struct {
	ID string `xml:"Id" yaml:"id"`
}

// Log holds the log folder.
type Log struct {
	Folder string `xml:"Folder" yaml:"folder"`
}

// Lock holds the run lock location.
type Lock struct {
	File string `xml:"File" yaml:"file"`
}

// Metrics holds the optional textfile-collector output path.
type Metrics struct {
	TextfilePath string `xml:"TextfilePath" yaml:"textfilePath"`
}

// SecretSource resolves secrets that are not stored in the document.
type SecretSource interface {
	Lookup(key string) (string, error)
}

// AckEnabled reports whether the mailbox acknowledgment step runs.
func (c *Config) AckEnabled() bool { return c.Email.Pop3 != nil }

// NotifyEnabled reports whether the notification mail is sent.
func (c *Config) NotifyEnabled() bool { return c.Email.Smtp != nil }

// SendSubject returns the notification subject with the company id appended.
func (c *Config) SendSubject() string {
	if c.Email.Smtp == nil {
		return ""
	}
	if c.Company == nil {
		return c.Email.Smtp.Subject
	}
	return c.Email.Smtp.Subject + c.Company.ID
}

// Recipients splits the Smtp To field on commas and semicolons.
func (s *Smtp) Recipients() []string {
	var out []string
	for _, r := range strings.FieldsFunc(s.To, func(r rune) bool { return r == ',' || r == ';' }) {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Locate returns the configuration document to use. An explicit path wins;
// otherwise config.xml, config.yaml and config.yml are tried in the working
// directory, then config.xml in the XDG config directory.
func Locate(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	candidates := []string{"config.xml", "config.yaml", "config.yml"}
	if dir, err := xdg.ConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "config.xml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", errors.New(errors.Config, fmt.Sprintf("configuration document not found (tried %s)", strings.Join(candidates, ", ")))
}

// Load reads, decodes, completes and validates the document at path.
// secrets may be nil.
func Load(path string, secrets SecretSource) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.Config, err, "cannot read configuration %q", path)
	}
	c, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	c.resolveSecrets(secrets)
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes a document; ext selects YAML (".yaml", ".yml") or XML (anything else).
func Parse(data []byte, ext string) (*Config, error) {
	c := &Config{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return nil, errors.Wrap(errors.Config, "malformed YAML configuration", err)
		}
	default:
		if err := xml.Unmarshal(data, c); err != nil {
			return nil, errors.Wrap(errors.Config, "malformed XML configuration", err)
		}
	}
	c.trim()
	return c, nil
}

func (c *Config) trim() {
	for _, p := range []*string{
		&c.Database.ConnectionString, &c.Database.Query,
		&c.Output.Folder, &c.Output.Format,
		&c.Log.Folder, &c.Lock.File, &c.Metrics.TextfilePath,
	} {
		*p = strings.TrimSpace(*p)
	}
	c.Output.Format = strings.ToLower(c.Output.Format)
	if p := c.Email.Pop3; p != nil {
		p.Server, p.User, p.Subject = strings.TrimSpace(p.Server), strings.TrimSpace(p.User), strings.TrimSpace(p.Subject)
	}
	if s := c.Email.Smtp; s != nil {
		s.To, s.From, s.Server = strings.TrimSpace(s.To), strings.TrimSpace(s.From), strings.TrimSpace(s.Server)
		s.User, s.Subject = strings.TrimSpace(s.User), strings.TrimSpace(s.Subject)
	}
	if c.Company != nil {
		c.Company.ID = strings.TrimSpace(c.Company.ID)
	}
	if t := c.Output.Table; t != nil {
		t.Name = strings.TrimSpace(t.Name)
		for i := range t.Columns {
			t.Columns[i].Name = strings.TrimSpace(t.Columns[i].Name)
			t.Columns[i].Type = strings.ToUpper(strings.TrimSpace(t.Columns[i].Type))
		}
	}
}

func (c *Config) resolveSecrets(secrets SecretSource) {
	if secrets == nil {
		return
	}
	lookup := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, err := secrets.Lookup(key); err == nil {
			*dst = v
		}
	}
	lookup(&c.Database.ConnectionString, SecretDB)
	if c.Email.Pop3 != nil {
		lookup(&c.Email.Pop3.Password, SecretPop3)
	}
	if c.Email.Smtp != nil {
		lookup(&c.Email.Smtp.Password, SecretSmtp)
	}
}

func (c *Config) applyDefaults() {
	if c.Output.Format == "" {
		c.Output.Format = FormatTSV
	}
	if c.Log.Folder == "" {
		c.Log.Folder = DefaultLogFolder
	}
	if c.Lock.File == "" {
		c.Lock.File = filepath.Join(c.Log.Folder, LockFileName)
	}
	if c.Email.Pop3 != nil && c.Email.Pop3.Port == 0 {
		c.Email.Pop3.Port = DefaultPop3Port
	}
	if c.Email.Smtp != nil && c.Email.Smtp.Port == 0 {
		c.Email.Smtp.Port = DefaultSmtpPort
	}
}

// Validate checks the required fields of every enabled group.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("xml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	var problems []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !stderrors.As(err, &verrs) {
			return errors.Wrap(errors.Config, "invalid configuration", err)
		}
		for _, e := range verrs {
			problems = append(problems, describe(e))
		}
	}

	if c.Output.Folder != "" {
		side := []struct{ name, path string }{
			{"Log.Folder", c.Log.Folder},
			{"Lock.File", c.Lock.File},
			{"Metrics.TextfilePath", c.Metrics.TextfilePath},
		}
		for _, f := range side {
			if f.path != "" && within(c.Output.Folder, f.path) {
				problems = append(problems, fmt.Sprintf("%s must not be inside Output.Folder", f.name))
			}
		}
	}

	if len(problems) > 0 {
		return errors.New(errors.Config, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}

// CheckLogFolder rejects a run log folder inside Output.Folder; the run log
// would otherwise keep the output folder from ever being empty.
func (c *Config) CheckLogFolder(dir string) error {
	if dir != "" && c.Output.Folder != "" && within(c.Output.Folder, dir) {
		return errors.New(errors.Config, fmt.Sprintf("log folder %s must not be inside Output.Folder", dir))
	}
	return nil
}

func describe(e validator.FieldError) string {
	path := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", path)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", path, e.Param(), fmt.Sprint(e.Value()))
	case "email":
		return fmt.Sprintf("%s must be an email address", path)
	default:
		return fmt.Sprintf("%s failed %q validation", path, e.ActualTag())
	}
}

func within(dir, p string) bool {
	absDir, err1 := filepath.Abs(dir)
	absP, err2 := filepath.Abs(p)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absP)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
