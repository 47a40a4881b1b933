package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateCodecRoundTrip(t *testing.T) {
	clock := &testClock{current: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	codec, err := NewStateCodec([]byte("0123456789abcdef0123456789abcdef"), 10*time.Minute, clock.Now)
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{
		Provider: " GitHub ",
		Nonce:    "nonce-1",
		PKCE:     "verifier-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	payload, err := codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, "github", payload.Provider)
	require.Equal(t, "nonce-1", payload.Nonce)
	require.Equal(t, "verifier-1", payload.PKCE)
	require.True(t, payload.IssuedAt.Equal(clock.Now().UTC()))
}

func TestStateCodecExpiry(t *testing.T) {
	clock := &testClock{current: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	codec, err := NewStateCodec([]byte("0123456789abcdef0123456789abcdef"), 5*time.Minute, clock.Now)
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{Provider: "github"})
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)

	_, err = codec.Decode(token)
	require.ErrorIs(t, err, ErrStateExpired)
}

func TestStateCodecRejectsTampering(t *testing.T) {
	codec, err := NewStateCodec([]byte("0123456789abcdef0123456789abcdef"), time.Minute, nil)
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{Provider: "oidc"})
	require.NoError(t, err)

	_, err = codec.Decode(token[:len(token)-4] + "AAAA")
	require.ErrorIs(t, err, ErrStateInvalid)

	_, err = codec.Decode("")
	require.ErrorIs(t, err, ErrStateInvalid)
}

func TestNewStateCodecValidatesKeyLength(t *testing.T) {
	_, err := NewStateCodec([]byte("short"), time.Minute, nil)
	require.Error(t, err)
}

func TestGeneratePKCE(t *testing.T) {
	pair, err := GeneratePKCE()
	require.NoError(t, err)
	require.NotEmpty(t, pair.Verifier)
	require.NotEmpty(t, pair.Challenge)
	require.NotEqual(t, pair.Verifier, pair.Challenge)
}
