package httpsig

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	gohttpsig "github.com/go-fed/httpsig"
	"github.com/nao1215/threadcap/internal/fetch"
)

const testKeyID = "https://example.social/users/capture#main-key"

var fixedTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

var signatureParam = regexp.MustCompile(`(\w+)="([^"]*)"`)

// parseSignature returns the parameters of a Signature header and its
// decoded signature.
func parseSignature(t *testing.T, header string) (map[string]string, []byte) {
	t.Helper()

	params := make(map[string]string)
	for _, m := range signatureParam.FindAllStringSubmatch(header, -1) {
		params[m[1]] = m[2]
	}
	sig, err := base64.StdEncoding.DecodeString(params["signature"])
	if err != nil || len(sig) == 0 {
		t.Fatalf("malformed signature header %q", header)
	}
	return params, sig
}

// signingString builds the draft-cavage signing string for a GET request.
func signingString(path, host, date string) string {
	return "(request-target): get " + path + "\nhost: " + host + "\ndate: " + date
}

// verifyRequest checks r's signature with the signing library's verifier.
// Servers see Host outside the header map, so it is put back first.
func verifyRequest(r *http.Request, pub crypto.PublicKey, algorithm gohttpsig.Algorithm) (string, error) {
	if r.Header.Get("Host") == "" {
		r.Header.Set("Host", r.Host)
	}
	v, err := gohttpsig.NewVerifier(r)
	if err != nil {
		return "", err
	}
	return v.KeyId(), v.Verify(pub, algorithm)
}

// signedRequest builds the request a client would send with out applied.
func signedRequest(t *testing.T, rawURL string, out *fetch.SignedHeaders) *http.Request {
	t.Helper()

	r, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.Header.Set("Signature", out.Signature)
	r.Header.Set("Date", out.Date)
	r.Header.Set("Host", r.URL.Host)
	return r
}

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func TestSign(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	signer := NewSigner(WithClock(func() time.Time { return fixedTime }))

	t.Run("rsa-sha256 verifies with the public key", func(t *testing.T) {
		t.Parallel()

		key := newRSAKey(t)
		out, err := signer.Sign(ctx, fetch.SignInput{
			URL:        "https://example.social/notes/1",
			KeyID:      testKeyID,
			PrivateKey: key,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Date != "Tue, 02 Jan 2024 03:04:05 GMT" {
			t.Errorf("unexpected date %q", out.Date)
		}

		params, sig := parseSignature(t, out.Signature)
		if params["keyId"] != testKeyID || params["algorithm"] != "rsa-sha256" || params["headers"] != SignedComponents {
			t.Errorf("unexpected parameters %v", params)
		}
		keyID, err := verifyRequest(signedRequest(t, "https://example.social/notes/1", out), &key.PublicKey, gohttpsig.RSA_SHA256)
		if err != nil {
			t.Errorf("signature does not verify: %v", err)
		}
		if keyID != testKeyID {
			t.Errorf("unexpected key id %q", keyID)
		}

		// The signing string follows draft-cavage exactly.
		digest := sha256.Sum256([]byte(signingString("/notes/1", "example.social", out.Date)))
		if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
			t.Errorf("signature does not cover the expected signing string: %v", err)
		}
	})

	t.Run("query and empty path are part of the request target", func(t *testing.T) {
		t.Parallel()

		key := newRSAKey(t)
		tests := []struct {
			url    string
			target string
		}{
			{"https://example.social/notes/1?page=true", "/notes/1?page=true"},
			{"https://example.social", "/"},
		}
		for _, tt := range tests {
			out, err := signer.Sign(ctx, fetch.SignInput{URL: tt.url, KeyID: testKeyID, PrivateKey: key})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_, sig := parseSignature(t, out.Signature)
			digest := sha256.Sum256([]byte(signingString(tt.target, "example.social", out.Date)))
			if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
				t.Errorf("%s: expected request target %q: %v", tt.url, tt.target, err)
			}
		}
	})

	t.Run("ed25519 keys sign with ed25519", func(t *testing.T) {
		t.Parallel()

		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}
		out, err := signer.Sign(ctx, fetch.SignInput{
			URL:        "https://example.social/notes/1",
			KeyID:      testKeyID,
			PrivateKey: priv,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		params, sig := parseSignature(t, out.Signature)
		if params["algorithm"] != "ed25519" {
			t.Errorf("expected ed25519, got %q", params["algorithm"])
		}
		if !ed25519.Verify(pub, []byte(signingString("/notes/1", "example.social", out.Date)), sig) {
			t.Error("signature does not verify")
		}
		if _, err := verifyRequest(signedRequest(t, "https://example.social/notes/1", out), pub, gohttpsig.ED25519); err != nil {
			t.Errorf("verifier rejected the signature: %v", err)
		}
	})

	t.Run("missing key id", func(t *testing.T) {
		t.Parallel()

		_, err := signer.Sign(ctx, fetch.SignInput{URL: "https://example.social/", PrivateKey: newRSAKey(t)})
		if !errors.Is(err, ErrMissingKeyID) {
			t.Errorf("expected ErrMissingKeyID, got %v", err)
		}
	})

	t.Run("unsupported key type", func(t *testing.T) {
		t.Parallel()

		ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}
		_, err = signer.Sign(ctx, fetch.SignInput{URL: "https://example.social/", KeyID: testKeyID, PrivateKey: ecKey})
		if !errors.Is(err, ErrUnsupportedKeyType) {
			t.Errorf("expected ErrUnsupportedKeyType, got %v", err)
		}
	})

	t.Run("missing private key", func(t *testing.T) {
		t.Parallel()

		_, err := signer.Sign(ctx, fetch.SignInput{URL: "https://example.social/", KeyID: testKeyID})
		if !errors.Is(err, ErrMissingPrivateKey) {
			t.Errorf("expected ErrMissingPrivateKey, got %v", err)
		}
	})
}

func TestParsePrivateKey(t *testing.T) {
	t.Parallel()

	t.Run("pkcs1 rsa", func(t *testing.T) {
		t.Parallel()

		key := newRSAKey(t)
		data := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
		got, err := ParsePrivateKey(data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := got.(*rsa.PrivateKey); !ok {
			t.Errorf("expected *rsa.PrivateKey, got %T", got)
		}
	})

	t.Run("pkcs8 ed25519 from file", func(t *testing.T) {
		t.Parallel()

		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}
		der, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			t.Fatalf("failed to marshal key: %v", err)
		}
		path := filepath.Join(t.TempDir(), "actor.pem")
		if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0600); err != nil {
			t.Fatalf("failed to write key: %v", err)
		}

		got, err := LoadPrivateKey(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := got.(ed25519.PrivateKey); !ok {
			t.Errorf("expected ed25519.PrivateKey, got %T", got)
		}
	})

	t.Run("not pem", func(t *testing.T) {
		t.Parallel()

		if _, err := ParsePrivateKey([]byte("not a key")); !errors.Is(err, ErrNoPEMBlock) {
			t.Errorf("expected ErrNoPEMBlock, got %v", err)
		}
	})

	t.Run("public key block", func(t *testing.T) {
		t.Parallel()

		data := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte{1, 2, 3}})
		if _, err := ParsePrivateKey(data); !errors.Is(err, ErrUnsupportedKeyType) {
			t.Errorf("expected ErrUnsupportedKeyType, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		if _, err := LoadPrivateKey(filepath.Join(t.TempDir(), "missing.pem")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected os.ErrNotExist, got %v", err)
		}
	})
}

// TestSigningAwareWithSigner checks the signer against a server that
// requires authorized fetch.
func TestSigningAwareWithSigner(t *testing.T) {
	t.Parallel()

	key := newRSAKey(t)
	var unsigned, signed atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Signature")
		if header == "" {
			unsigned.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if _, err := verifyRequest(r, &key.PublicKey, gohttpsig.RSA_SHA256); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		signed.Add(1)
		w.Header().Set("Content-Type", fetch.ActivityPubMediaType)
		_, _ = w.Write([]byte(`{"id":"x"}`))
	}))
	defer server.Close()

	fetcher, err := fetch.NewSigningAware(fetch.NewHTTPFetcher(server.Client()), testKeyID, key, NewSigner().Sign)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	headers := map[string]string{
		fetch.HeaderAccept:    fetch.ActivityPubMediaType,
		fetch.HeaderUserAgent: "threadcap-test",
	}
	for range 2 {
		resp, err := fetcher.Fetch(context.Background(), server.URL+"/notes/1", headers)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Status != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Status)
		}
	}
	if unsigned.Load() != 1 || signed.Load() != 2 {
		t.Errorf("expected one unsigned attempt and two signed requests, got %d and %d", unsigned.Load(), signed.Load())
	}
}
