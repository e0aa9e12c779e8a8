package objectstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedDownloadURLVerifiesWithinTTL(t *testing.T) {
	c, err := New("account", "key", "invoices", "https://blob.example.com", time.Hour)
	require.NoError(t, err)

	url := c.SignedDownloadURL("INV-2026-007")
	assert.Contains(t, url, "invoice_INV-2026-007.pdf")

	parsed, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	expires := parsed.URL.Query().Get("se")
	sig := parsed.URL.Query().Get("sig")
	require.NotEmpty(t, expires)
	require.NotEmpty(t, sig)

	expiresInt, err := strconv.ParseInt(expires, 10, 64)
	require.NoError(t, err)
	assert.True(t, c.VerifySignedURL("INV-2026-007", expiresInt, sig))
}

func TestVerifySignedURLRejectsExpiredToken(t *testing.T) {
	c, err := New("account", "key", "invoices", "https://blob.example.com", time.Hour)
	require.NoError(t, err)

	expired := time.Now().Add(-time.Minute).Unix()
	sig := c.sign("invoices/invoice_INV-2026-007.pdf/r:" + strconv.FormatInt(expired, 10))
	assert.False(t, c.VerifySignedURL("INV-2026-007", expired, sig))
}

func TestVerifySignedURLRejectsTamperedSignature(t *testing.T) {
	c, err := New("account", "key", "invoices", "https://blob.example.com", time.Hour)
	require.NoError(t, err)

	expires := time.Now().Add(time.Hour).Unix()
	assert.False(t, c.VerifySignedURL("INV-2026-007", expires, "not-the-real-signature"))
}

func TestTwoAccountKeysProduceDifferentSignatures(t *testing.T) {
	a, err := New("account", "key-a", "invoices", "https://blob.example.com", time.Hour)
	require.NoError(t, err)
	b, err := New("account", "key-b", "invoices", "https://blob.example.com", time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, a.sign("payload"), b.sign("payload"))
}

func TestUploadSendsBlobPutWithSharedKeyAuth(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotBlobType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBlobType = r.Header.Get("X-Ms-Blob-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := New("account", "key", "invoices", srv.URL, time.Hour)
	require.NoError(t, err)

	err = c.Upload(context.Background(), "INV-2026-007", []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/invoices/invoice_INV-2026-007.pdf", gotPath)
	assert.Contains(t, gotAuth, "SharedKey account:")
	assert.Equal(t, "BlockBlob", gotBlobType)
}

func TestUploadReturnsErrorOnNon2xxResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := New("account", "key", "invoices", srv.URL, time.Hour)
	require.NoError(t, err)

	err = c.Upload(context.Background(), "INV-2026-007", []byte("%PDF-1.4"))
	assert.Error(t, err)
}
