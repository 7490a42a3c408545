// Copyright (c) 2025 DataSender
// Licensed under the MIT License. See LICENSE file in the project root for details.

package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestE_Error(t *testing.T) {
	assert.Equal(t, "cannot read config.xml", New(Config, "cannot read config.xml").Error())
	assert.Equal(t, "cannot connect: EOF", Wrap(Connectivity, "cannot connect", io.EOF).Error())
	assert.Equal(t, "query failed on db: EOF", Wrapf(Export, io.EOF, "query failed on %s", "db").Error())
}

func TestE_UnwrapKeepsCause(t *testing.T) {
	err := fmt.Errorf("run: %w", Wrap(Export, "write failed", io.ErrShortWrite))

	assert.True(t, stderrors.Is(err, io.ErrShortWrite))
	assert.Equal(t, Export, KindOf(err))
	assert.True(t, Is(err, Export))
	assert.False(t, Is(err, Config))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(io.EOF))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.False(t, Is(nil, Config))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "config", err: New(Config, "x"), want: ExitConfig},
		{name: "lock", err: New(Lock, "x"), want: ExitConfig},
		{name: "connectivity", err: New(Connectivity, "x"), want: ExitConnectivity},
		{name: "export", err: New(Export, "x"), want: ExitExport},
		{name: "wrapped export", err: fmt.Errorf("outer: %w", New(Export, "x")), want: ExitExport},
		{name: "untyped", err: io.EOF, want: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
