package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type ledgerRow struct {
	ID   int
	Memo string `gorm:"uniqueIndex"`
}

func sqliteConfig() config.DBConfig {
	return config.DBConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:db_" + uuid.NewString() + "?mode=memory&cache=shared",
	}
}

func openTestClient(t *testing.T, cfg config.DBConfig, logg *logger.Logger) *Client {
	t.Helper()
	client, err := New(context.Background(), cfg, logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&ledgerRow{}))
	return client
}

func countRows(t *testing.T, client *Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, client.DB().Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsOrRollsBack(t *testing.T) {
	client := openTestClient(t, sqliteConfig(), nil)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Memo: "kept"}).Error
	}))
	assert.Equal(t, int64(1), countRows(t, client))

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ledgerRow{Memo: "discarded"}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), countRows(t, client))
}

func TestWithTxRollsBackAndRepanics(t *testing.T) {
	client := openTestClient(t, sqliteConfig(), nil)

	assert.PanicsWithValue(t, "boom", func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ledgerRow{Memo: "panicked"}).Error)
			panic("boom")
		})
	})
	assert.Zero(t, countRows(t, client))
}

func TestNewPingsAndValidates(t *testing.T) {
	client := openTestClient(t, sqliteConfig(), nil)
	assert.NoError(t, client.Ping(context.Background()))

	_, err := New(context.Background(), config.DBConfig{}, nil)
	assert.Error(t, err)
}

func TestSlowQueriesAreLogged(t *testing.T) {
	var buf bytes.Buffer
	cfg := sqliteConfig()
	cfg.SlowQuery = time.Nanosecond
	client := openTestClient(t, cfg, logger.New(logger.Options{ServiceName: "test", Output: &buf}))

	buf.Reset()
	require.NoError(t, client.DB().Create(&ledgerRow{Memo: "slow"}).Error)
	assert.Contains(t, buf.String(), `"message":"slow query"`)
	assert.Contains(t, buf.String(), "INSERT INTO")
}

func TestQueryLoggerIgnoresLookupMisses(t *testing.T) {
	var buf bytes.Buffer
	cfg := sqliteConfig()
	client := openTestClient(t, cfg, logger.New(logger.Options{ServiceName: "test", Output: &buf}))

	buf.Reset()
	var row ledgerRow
	err := client.DB().First(&row, "memo = ?", "absent").Error
	assert.True(t, IsNotFound(err))
	assert.Empty(t, buf.String())

	err = client.DB().Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"message":"query failed"`)
}

func TestIsUniqueViolation(t *testing.T) {
	client := openTestClient(t, sqliteConfig(), nil)
	require.NoError(t, client.DB().Create(&ledgerRow{Memo: "dup"}).Error)
	assert.True(t, IsUniqueViolation(client.DB().Create(&ledgerRow{Memo: "dup"}).Error, ""))

	pgErr := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "ux_procurement_pending"})
	assert.True(t, IsUniqueViolation(pgErr, "ux_procurement_pending"))
	assert.False(t, IsUniqueViolation(pgErr, "other_constraint"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}

type optionalVariantRow struct {
	ID        int
	VariantID *uuid.UUID `gorm:"type:uuid"`
}

func TestNullableUUIDScope(t *testing.T) {
	conn := openTestClient(t, sqliteConfig(), nil).DB()
	require.NoError(t, conn.AutoMigrate(&optionalVariantRow{}))
	variant := uuid.New()
	require.NoError(t, conn.Create(&[]optionalVariantRow{{ID: 1}, {ID: 2, VariantID: &variant}}).Error)

	var central []optionalVariantRow
	require.NoError(t, conn.Scopes(NullableUUID("variant_id", nil)).Find(&central).Error)
	require.Len(t, central, 1)
	assert.Equal(t, 1, central[0].ID)

	var scoped []optionalVariantRow
	require.NoError(t, conn.Scopes(NullableUUID("variant_id", &variant)).Find(&scoped).Error)
	require.Len(t, scoped, 1)
	assert.Equal(t, 2, scoped[0].ID)
}
