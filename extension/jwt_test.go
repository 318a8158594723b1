package extension

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecret() string {
	return base64.StdEncoding.EncodeToString([]byte("super-secret-extension-key"))
}

func TestNewSignerRejectsInvalidSecret(t *testing.T) {
	_, err := NewSigner("not!!base64!!")
	require.Error(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, err := NewSigner(testSecret())
	require.NoError(t, err)

	token, err := signer.Sign("owner-1", "channel-44", time.Minute)
	require.NoError(t, err)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", claims.UserID)
	assert.Equal(t, "external", claims.Role)
	assert.Equal(t, "channel-44", claims.ChannelID)
	assert.Nil(t, claims.PubsubPerms)
}

func TestSignBroadcastGrantsPubsubSend(t *testing.T) {
	signer, err := NewSigner(testSecret())
	require.NoError(t, err)

	token, err := signer.SignBroadcast("owner-1", "channel-44", time.Minute)
	require.NoError(t, err)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	require.NotNil(t, claims.PubsubPerms)
	assert.Equal(t, []string{"broadcast"}, claims.PubsubPerms.Send)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	signer, err := NewSigner(testSecret())
	require.NoError(t, err)

	token, err := signer.Sign("owner-1", "", -time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	signer, err := NewSigner(testSecret())
	require.NoError(t, err)
	other, err := NewSigner(base64.StdEncoding.EncodeToString([]byte("a-different-key")))
	require.NoError(t, err)

	token, err := other.Sign("owner-1", "", time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	signer, err := NewSigner(testSecret())
	require.NoError(t, err)

	token, err := signer.Sign("owner-1", "", time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify(token + "x")
	require.Error(t, err)
}
