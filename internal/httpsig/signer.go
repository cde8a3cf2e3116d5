package httpsig

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"
	"time"

	gohttpsig "github.com/go-fed/httpsig"
	"github.com/nao1215/threadcap/internal/fetch"
)

// SignedComponents are the pseudo-header and headers covered by a signature, in order.
const SignedComponents = "(request-target) host date"

// signedHeaders is SignedComponents in the form the signing library takes.
var signedHeaders = strings.Fields(SignedComponents)

// Signer produces signature headers. Its Sign method satisfies fetch.SignFunc.
type Signer struct {
	now func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock sets the clock used for the Date header.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner creates a Signer.
func NewSigner(opts ...Option) *Signer {
	s := &Signer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ fetch.SignFunc = NewSigner().Sign

// Sign computes the Signature and Date headers for in.
//
// Only bodiless requests are signed; in.Body is not digested.
func (s *Signer) Sign(ctx context.Context, in fetch.SignInput) (*fetch.SignedHeaders, error) {
	if in.KeyID == "" {
		return nil, ErrMissingKeyID
	}
	if in.PrivateKey == nil {
		return nil, ErrMissingPrivateKey
	}
	algorithm, err := algorithmFor(in.PrivateKey)
	if err != nil {
		return nil, err
	}

	method := in.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, in.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", in.URL, err)
	}
	if req.URL.Path == "" {
		req.URL.Path = "/"
	}

	// The library reads every signed header from req.Header, host included.
	date := s.now().UTC().Format(http.TimeFormat)
	req.Header.Set("Date", date)
	req.Header.Set("Host", req.URL.Host)

	signer, _, err := gohttpsig.NewSigner([]gohttpsig.Algorithm{algorithm}, gohttpsig.DigestSha256,
		signedHeaders, gohttpsig.Signature, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}
	if err := signer.SignRequest(in.PrivateKey, in.KeyID, req, nil); err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	return &fetch.SignedHeaders{Signature: req.Header.Get("Signature"), Date: date}, nil
}

// algorithmFor picks the signature algorithm matching the key type.
func algorithmFor(key any) (gohttpsig.Algorithm, error) {
	switch key.(type) {
	case *rsa.PrivateKey:
		return gohttpsig.RSA_SHA256, nil
	case ed25519.PrivateKey:
		return gohttpsig.ED25519, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedKeyType, key)
	}
}
