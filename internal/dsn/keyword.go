// Copyright (c) 2025 DataSender
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
)

// KeywordResolver handles libpq keyword/value strings ("host=db user=app ...").
// Parsing is delegated to pgconn so quoting rules match the driver exactly.
type KeywordResolver struct{}

// NewKeywordResolver creates a new keyword/value resolver
func NewKeywordResolver() *KeywordResolver {
	return &KeywordResolver{}
}

// Parse parses a keyword/value connection string.
func (r *KeywordResolver) Parse(dsn string) (*DSNInfo, error) {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return nil, NewParseError(dsn, err.Error(), "use host=... port=... user=... password=... dbname=...")
	}

	info := &DSNInfo{
		Type:     DBTypePostgreSQL,
		Host:     cfg.Host,
		Port:     strconv.Itoa(int(cfg.Port)),
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		Params:   map[string]string{},
		Original: dsn,
	}
	for k, v := range cfg.RuntimeParams {
		info.Params[k] = v
	}
	if cfg.TLSConfig == nil {
		info.Params["sslmode"] = "disable"
	}
	return info, nil
}
