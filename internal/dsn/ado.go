// Copyright (c) 2025 DataSender
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"strings"
)

// ADOResolver handles "Server=host,port;Database=db;User Id=u;Password=p;" strings.
type ADOResolver struct{}

// NewADOResolver creates a new ADO-style resolver
func NewADOResolver() *ADOResolver {
	return &ADOResolver{}
}

// Parse parses an ADO-style connection string. Unknown keys are ignored.
func (r *ADOResolver) Parse(dsn string) (*DSNInfo, error) {
	info := &DSNInfo{Type: DBTypePostgreSQL, Port: DefaultPort, Params: map[string]string{}, Original: dsn}

	for _, pair := range strings.Split(dsn, ";") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			if strings.TrimSpace(pair) != "" {
				return nil, NewParseError(dsn, "segment without '=': "+strings.TrimSpace(pair), "use Key=Value pairs separated by ';'")
			}
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "server", "data source", "address", "host":
			host := strings.TrimPrefix(value, "tcp:")
			if h, p, ok := strings.Cut(host, ","); ok {
				info.Host, info.Port = strings.TrimSpace(h), strings.TrimSpace(p)
			} else if h, p, ok := strings.Cut(host, ":"); ok {
				info.Host, info.Port = h, p
			} else {
				info.Host = host
			}
		case "port":
			info.Port = value
		case "database", "initial catalog":
			info.Database = value
		case "user id", "uid", "user", "username":
			info.User = value
		case "password", "pwd":
			info.Password = value
		case "encrypt", "ssl mode", "sslmode":
			info.Params["sslmode"] = sslMode(value)
		case "application name":
			info.Params["application_name"] = value
		}
	}
	return info, nil
}

func sslMode(v string) string {
	switch strings.ToLower(v) {
	case "true", "yes", "mandatory", "strict", "require":
		return "require"
	case "false", "no", "optional", "disable":
		return "disable"
	default:
		return strings.ToLower(v)
	}
}
