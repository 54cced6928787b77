package store

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slasher.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddGetRemove(t *testing.T) {
	s := openTestStore(t)
	id := big.NewInt(1)

	_, ok, err := s.Get(id)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Add(id, 1120, 1060))
	order, ok, err := s.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1120, order.ExpiresAt)
	require.EqualValues(t, 1060, order.LockExpiresAt)

	require.NoError(t, s.Remove(id))
	_, ok, err = s.Get(id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoveMissingIsNotError(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Remove(big.NewInt(999)))
}

func TestAddOverwritesExisting(t *testing.T) {
	s := openTestStore(t)
	id := big.NewInt(42)
	require.NoError(t, s.Add(id, 100, 90))
	require.NoError(t, s.Add(id, 200, 150))

	order, ok, err := s.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 200, order.ExpiresAt)
	require.EqualValues(t, 150, order.LockExpiresAt)
}

func TestDueBeforeOrdering(t *testing.T) {
	s := openTestStore(t)
	// Two rows sharing the same expires_at must tie-break by request_id
	// ascending, and request_id 9 must sort before 10 numerically even
	// though "10" < "9" lexically.
	require.NoError(t, s.Add(big.NewInt(10), 100, 50))
	require.NoError(t, s.Add(big.NewInt(9), 100, 50))
	require.NoError(t, s.Add(big.NewInt(5), 50, 40))
	require.NoError(t, s.Add(big.NewInt(1), 500, 400))

	due, err := s.DueBefore(100)
	require.NoError(t, err)
	require.Len(t, due, 3)
	require.Equal(t, "5", due[0].String())
	require.Equal(t, "9", due[1].String())
	require.Equal(t, "10", due[2].String())
}

func TestDueBeforeExcludesFutureRows(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Add(big.NewInt(1), 100, 90))
	require.NoError(t, s.Add(big.NewInt(2), 200, 150))

	due, err := s.DueBefore(150)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "1", due[0].String())
}

func TestCursorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetCursor()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetCursor(10))
	block, ok, err := s.GetCursor()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 10, block)
}

func TestCursorRejectsRegression(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SetCursor(10))
	err := s.SetCursor(9)
	require.ErrorIs(t, err, ErrCursorRegression)

	block, ok, err := s.GetCursor()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 10, block, "rejected write must not have applied")
}

func TestCursorAllowsEqualValue(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SetCursor(10))
	require.NoError(t, s.SetCursor(10))
}

func TestApplyingAddTwiceIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	id := big.NewInt(7)
	require.NoError(t, s.Add(id, 100, 90))
	require.NoError(t, s.Add(id, 100, 90))

	due, err := s.DueBefore(100)
	require.NoError(t, err)
	require.Len(t, due, 1)
}
