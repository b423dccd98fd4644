package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no bearer token is presented.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned when a presented token fails
	// verification for any reason.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// KeyLookup resolves a verification key by key id. It is consulted only
// on cache misses.
type KeyLookup func(ctx context.Context, kid string) (any, error)

// Verifier validates bearer tokens and extracts the owner identity.
//
// Two key modes are supported: a shared HMAC secret (the default, for
// single-operator deployments) and per-kid keys resolved through a
// KeyLookup (for deployments behind an identity provider). Tokens
// carrying a kid header use the lookup path when one is configured.
type Verifier struct {
	secret   []byte
	audience string
	lookup   KeyLookup
	cache    *KeyCache
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithAudience requires tokens to carry the given audience claim.
func WithAudience(aud string) VerifierOption {
	return func(v *Verifier) {
		v.audience = aud
	}
}

// WithKeyLookup enables per-kid key resolution. Resolved keys are cached.
func WithKeyLookup(lookup KeyLookup, cache *KeyCache) VerifierOption {
	return func(v *Verifier) {
		v.lookup = lookup
		v.cache = cache
	}
}

// NewVerifier creates a Verifier with the given shared HMAC secret.
func NewVerifier(secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{secret: []byte(secret)}
	for _, opt := range opts {
		opt(v)
	}
	if v.lookup != nil && v.cache == nil {
		v.cache = NewKeyCache(DefaultKeyTTL)
	}
	return v
}

// Verify validates the token and returns the subject claim as the owner
// identity.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", ErrMissingToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "RS256"}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenString, v.keyFunc(ctx), parserOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: no subject claim", ErrInvalidToken)
	}
	return subject, nil
}

// keyFunc selects the verification key for one token.
func (v *Verifier) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid != "" && v.lookup != nil {
			return v.resolveKey(ctx, kid)
		}

		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("signing method %s requires a key id", token.Method.Alg())
		}
		if len(v.secret) == 0 {
			return nil, errors.New("no shared secret configured")
		}
		return v.secret, nil
	}
}

// resolveKey returns the key for a kid, consulting the cache first.
func (v *Verifier) resolveKey(ctx context.Context, kid string) (any, error) {
	if key, ok := v.cache.Get(kid); ok {
		return key, nil
	}

	key, err := v.lookup(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("resolve key %s: %w", kid, err)
	}
	v.cache.Put(kid, key)
	return key, nil
}

// FromHeader extracts the bearer token from an Authorization header
// value. Returns an empty string when the header is absent or not a
// bearer scheme.
func FromHeader(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
