package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsSerializationFailure(t *testing.T) {
	require.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	require.True(t, IsSerializationFailure(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40001"})))
	require.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsSerializationFailure(errors.New("plain")))
	require.False(t, IsSerializationFailure(nil))
}
