package gcs

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClientWithKey(t *testing.T) (*Client, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &Client{
		defaultBucket: "atelier-files",
		account: &serviceAccountInfo{
			clientEmail: "signer@test.iam.gserviceaccount.com",
			privateKey:  key,
		},
	}, key
}

func TestSignedReadURL(t *testing.T) {
	client, key := testClientWithKey(t)
	expires := time.Now().Add(2 * time.Minute)

	signed, err := client.SignedReadURL("orders/model-kit.stl", expires)
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "storage.googleapis.com", parsed.Host)
	assert.Equal(t, "/atelier-files/orders/model-kit.stl", parsed.Path)

	q := parsed.Query()
	assert.Equal(t, "signer@test.iam.gserviceaccount.com", q.Get("GoogleAccessId"))
	assert.Equal(t, fmt.Sprintf("%d", expires.Unix()), q.Get("Expires"))

	sig, err := base64.StdEncoding.DecodeString(q.Get("Signature"))
	require.NoError(t, err)

	toSign := fmt.Sprintf("GET\n\n\n%d\n/atelier-files/orders/model-kit.stl", expires.Unix())
	hash := sha256.Sum256([]byte(toSign))
	require.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, hash[:], sig))
}

func TestSignedReadURL_TrimsLeadingSlash(t *testing.T) {
	client, _ := testClientWithKey(t)

	signed, err := client.SignedReadURL("/orders/model-kit.stl", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, strings.Contains(signed, "//orders"))
}

func TestSignedReadURL_RequiresServiceAccount(t *testing.T) {
	client := &Client{defaultBucket: "atelier-files"}

	_, err := client.SignedReadURL("orders/model-kit.stl", time.Now().Add(time.Minute))
	require.Error(t, err)
}

func TestSignedReadURL_RequiresObject(t *testing.T) {
	client, _ := testClientWithKey(t)

	_, err := client.SignedReadURL("", time.Now().Add(time.Minute))
	require.Error(t, err)
}
