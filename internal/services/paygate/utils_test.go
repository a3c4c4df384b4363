package paygate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHmac256_Deterministic(t *testing.T) {
	body := []byte(`{"sessionId":"sess-1"}`)
	key := []byte("shared-key")

	first := Hmac256(body, key)
	second := Hmac256(body, key)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // hex-encoded sha256
}

func TestHmac256_KeySensitive(t *testing.T) {
	body := []byte(`{"sessionId":"sess-1"}`)

	assert.NotEqual(t, Hmac256(body, []byte("key-a")), Hmac256(body, []byte("key-b")))
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"sessionId":"sess-1","txnRef":"TXN123"}`)
	key := "shared-key"

	signature := Hmac256(body, []byte(key))

	assert.True(t, VerifyHMAC(body, key, signature))
	assert.False(t, VerifyHMAC(body, key, "deadbeef"))
	assert.False(t, VerifyHMAC(body, "wrong-key", signature))
	assert.False(t, VerifyHMAC([]byte("tampered"), key, signature))
}

func TestWebhookSecret_RoundTrip(t *testing.T) {
	hash, err := HashWebhookSecret("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, CompareWebhookSecret(hash, "s3cret"))
	assert.False(t, CompareWebhookSecret(hash, "guess"))
	assert.False(t, CompareWebhookSecret(hash, ""))
}

func TestRandomNumber(t *testing.T) {
	n, err := randomNumber()

	require.NoError(t, err)
	assert.Len(t, n, 18)
}
