// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holosim/pkg/errutil"
)

// mockMigrate implements migrateIface for testing.
type mockMigrate struct {
	upErr          error
	downErr        error
	versionVal     uint
	versionErr     error
	dirty          bool
	forceErr       error
	closeSourceErr error
	closeDbErr     error
}

func (m *mockMigrate) Up() error                    { return m.upErr }
func (m *mockMigrate) Down() error                  { return m.downErr }
func (m *mockMigrate) Version() (uint, bool, error) { return m.versionVal, m.dirty, m.versionErr }
func (m *mockMigrate) Force(_ int) error            { return m.forceErr }
func (m *mockMigrate) Close() (error, error)        { return m.closeSourceErr, m.closeDbErr }

func TestNewMigrator_PostgresqlScheme(t *testing.T) {
	// postgresql:// is rewritten to pgx5:// for the golang-migrate driver.
	// Connection to the non-existent host fails, but the scheme must be
	// recognized rather than rejected as an unknown driver.
	_, err := NewMigrator("postgresql://localhost:5432/testdb")
	require.Error(t, err, "should fail due to connection, not URL scheme")
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
	assert.NotContains(t, err.Error(), "unknown driver")
}

func TestNewMigrator_InvalidScheme(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/testdb")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestMigrator_Up(t *testing.T) {
	tests := []struct {
		name     string
		upErr    error
		wantErr  bool
		wantCode string
	}{
		{name: "success"},
		{name: "no change is success", upErr: migrate.ErrNoChange},
		{
			name:     "failure",
			upErr:    errors.New("database locked"),
			wantErr:  true,
			wantCode: "MIGRATION_UP_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{m: &mockMigrate{upErr: tt.upErr}}
			err := m.Up()
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestMigrator_Down(t *testing.T) {
	tests := []struct {
		name     string
		downErr  error
		wantErr  bool
		wantCode string
	}{
		{name: "success"},
		{name: "no change is success", downErr: migrate.ErrNoChange},
		{
			name:     "failure",
			downErr:  errors.New("constraint violation"),
			wantErr:  true,
			wantCode: "MIGRATION_DOWN_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{m: &mockMigrate{downErr: tt.downErr}}
			err := m.Down()
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestMigrator_Version(t *testing.T) {
	t.Run("reports version and dirty state", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{versionVal: 3, dirty: true}}
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(3), version)
		assert.True(t, dirty)
	})

	t.Run("nil version means nothing applied", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{versionErr: migrate.ErrNilVersion}}
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Zero(t, version)
		assert.False(t, dirty)
	})

	t.Run("failure", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{versionErr: errors.New("broken")}}
		_, _, err := m.Version()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_Force(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{}}
		require.NoError(t, m.Force(2))
	})

	t.Run("negative version rejected", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{}}
		err := m.Force(-1)
		errutil.AssertErrorCode(t, err, "INVALID_VERSION")
	})

	t.Run("failure", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{forceErr: errors.New("broken")}}
		err := m.Force(1)
		errutil.AssertErrorCode(t, err, "MIGRATION_FORCE_FAILED")
	})
}

func TestMigrator_Close(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{}}
		require.NoError(t, m.Close())
	})

	t.Run("source error", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{closeSourceErr: errors.New("source broken")}}
		err := m.Close()
		errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
	})

	t.Run("both errors", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{
			closeSourceErr: errors.New("source broken"),
			closeDbErr:     errors.New("db broken"),
		}}
		err := m.Close()
		errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
		assert.Contains(t, err.Error(), "source broken")
		assert.Contains(t, err.Error(), "db broken")
	})
}
