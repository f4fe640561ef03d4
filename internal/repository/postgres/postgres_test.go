package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestPgCode(t *testing.T) {
	wrapped := fmt.Errorf("lock account: %w", &pgconn.PgError{Code: pgLockNotAvailable})

	assert.Equal(t, pgLockNotAvailable, pgCode(wrapped))
	assert.Equal(t, pgUniqueViolation, pgCode(&pgconn.PgError{Code: pgUniqueViolation}))
	assert.Empty(t, pgCode(errors.New("connection reset")))
	assert.Empty(t, pgCode(nil))
}

func TestSchemaIsEmbedded(t *testing.T) {
	for _, table := range []string{"customers", "accounts", "transactions", "transaction_audit", "fee_structures"} {
		assert.True(t, strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table), "schema is missing %s", table)
	}
}
