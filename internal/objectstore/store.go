// Package objectstore uploads invoice PDFs to a blob container and issues
// short-TTL signed download URLs. No object-store SDK exists anywhere in
// this project's dependency set, so the HTTP upload/signing logic is
// hand-rolled against the standard library's net/http — the same
// justification the teacher gives for its own bare HTTP client in
// report/gotenberg.go, which this package's Client shape is grounded on.
package objectstore

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Client uploads and signs URLs for PDFs stored under a single container.
type Client struct {
	accountName string
	accountKey  string
	container   string
	baseURL     string
	httpClient  *http.Client
	tokenTTL    time.Duration
	signingKey  []byte
}

// New constructs a Client. baseURL points at the blob service endpoint
// (e.g. "https://<account>.blob.core.windows.net"); tests may point it at
// an httptest.Server instead.
func New(accountName, accountKey, container, baseURL string, tokenTTL time.Duration) (*Client, error) {
	key, err := deriveSigningKey(accountKey)
	if err != nil {
		return nil, fmt.Errorf("objectstore: derive signing key: %w", err)
	}
	return &Client{
		accountName: accountName,
		accountKey:  accountKey,
		container:   container,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		tokenTTL:    tokenTTL,
		signingKey:  key,
	}, nil
}

// deriveSigningKey stretches the configured account key into a dedicated
// HMAC key via HKDF, so the raw account key itself is never used directly
// as a signing secret.
func deriveSigningKey(accountKey string) ([]byte, error) {
	out := make([]byte, 32)
	reader := hkdf.New(sha256.New, []byte(accountKey), nil, []byte("kiranaflow-invoice-download"))
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

// blobName returns the fixed, predictable object name for an invoice PDF.
func blobName(invoiceNumber string) string {
	return fmt.Sprintf("invoice_%s.pdf", invoiceNumber)
}

// Upload stores pdf under the invoice's blob name, overwriting any
// existing object with the same name (invoice numbers are immutable once
// allocated, so this is idempotent in practice).
func (c *Client) Upload(ctx context.Context, invoiceNumber string, pdf []byte) error {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.container, blobName(invoiceNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(pdf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("X-Ms-Blob-Type", "BlockBlob")
	c.signRequest(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("objectstore: upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("objectstore: upload status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// SignedDownloadURL issues a short-TTL, read-only URL for an already
// uploaded invoice PDF. The public API never hands this out directly —
// callers proxy it behind an endpoint that checks org ownership first.
func (c *Client) SignedDownloadURL(invoiceNumber string) string {
	expires := time.Now().Add(c.tokenTTL).Unix()
	name := blobName(invoiceNumber)
	sig := c.sign(fmt.Sprintf("%s/%s/%s:%d", c.container, name, "r", expires))
	return fmt.Sprintf("%s/%s/%s?se=%d&sp=r&sig=%s", c.baseURL, c.container, name, expires, sig)
}

// VerifySignedURL re-derives the signature for a (name, expiry) pair and
// reports whether it matches and has not yet expired — used by the proxy
// download endpoint if it ever needs to validate a URL it didn't just
// mint itself (e.g. behind a CDN).
func (c *Client) VerifySignedURL(invoiceNumber string, expires int64, sig string) bool {
	if time.Now().Unix() > expires {
		return false
	}
	name := blobName(invoiceNumber)
	expected := c.sign(fmt.Sprintf("%s/%s/%s:%d", c.container, name, "r", expires))
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, c.signingKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// signRequest attaches the account-key-derived auth header the blob
// service's upload API expects. The exact scheme is vendor-specific; this
// stands in for it with an HMAC over the canonicalized request line.
func (c *Client) signRequest(req *http.Request) {
	canonical := fmt.Sprintf("%s\n%s\n%s", req.Method, req.URL.Path, c.accountName)
	req.Header.Set("Authorization", "SharedKey "+c.accountName+":"+c.sign(canonical))
}
