package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFEnsureTokenIsStable(t *testing.T) {
	m := NewCSRFManager("csrfsecret")
	sess := &Session{ID: "abc", values: map[string]string{}}

	first, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	second, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NoError(t, m.VerifyToken(context.Background(), sess, first))
}

func TestCSRFVerifyFailures(t *testing.T) {
	m := NewCSRFManager("csrfsecret")
	sess := &Session{ID: "abc", values: map[string]string{}}
	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	assert.ErrorIs(t, m.VerifyToken(context.Background(), nil, token), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, token+"x"), ErrCSRFTokenMismatch)

	other := &Session{ID: "other", values: map[string]string{CSRFSessionKey: token}}
	assert.ErrorIs(t, m.VerifyToken(context.Background(), other, token), ErrCSRFTokenMismatch)
}
