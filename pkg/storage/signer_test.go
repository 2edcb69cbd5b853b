package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignerGenerateAndParse(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("session-1", "materials/m1/notes.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	resourceID, key, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "session-1", resourceID)
	require.Equal(t, "materials/m1/notes.pdf", key)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignerExpired(t *testing.T) {
	signer := NewSigner("secret", time.Millisecond*10)
	token, _, err := signer.Generate("session-1", "materials/m1/notes.pdf")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 20)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	resourceID, key, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "session-1", resourceID)
	require.Equal(t, "materials/m1/notes.pdf", key)
}

func TestSignerRejectsTampering(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, _, err := signer.Generate("session-1", "materials/m1/notes.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "session-2"
	_, _, _, err = signer.Parse(strings.Join(parts, "."), false)
	require.Error(t, err)
}

func TestSignerRejectsForeignSecret(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, _, err := signer.Generate("session-1", "materials/m1/notes.pdf")
	require.NoError(t, err)

	other := NewSigner("different", time.Hour)
	_, _, _, err = other.Parse(token, false)
	require.Error(t, err)
}
