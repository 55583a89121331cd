// Package tokens signs and verifies the console cookie that ties a browser to
// its stored upstream credentials.
package tokens

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"
)

var (
	ErrLoadKeySet           = fmt.Errorf("failed to load JWK set")
	ErrNoSuitablePrivateKey = fmt.Errorf("no suitable private key found")
	ErrFailedToCastKey      = fmt.Errorf("failed to cast key to jwk.Key")
	ErrFailedToGetRawKey    = fmt.Errorf("failed to get raw key")
	ErrFailedToSignJWT      = fmt.Errorf("failed to sign JWT")
	ErrInvalidToken         = fmt.Errorf("invalid console token")
)

const (
	DefaultIssuer = "medstore-console"
	DefaultTTL    = 30 * 24 * time.Hour

	privatePrefix = "private:"
	publicPrefix  = "public:"
)

// Option configures a Signer.
type Option func(*Signer)

// WithIssuer sets the iss claim.
func WithIssuer(issuer string) Option {
	return func(s *Signer) { s.issuer = issuer }
}

// WithTTL sets the lifetime of issued tokens.
func WithTTL(ttl time.Duration) Option {
	return func(s *Signer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// Signer issues console tokens with key rotation over a JWK set.
type Signer struct {
	keys   jwk.Set
	issuer string
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	keyIndex int
}

type signingKey struct {
	raw    interface{}
	kid    string
	method jwt.SigningMethod
}

// NewSigner returns a Signer over keys. At least one key must be usable for
// signing.
func NewSigner(keys jwk.Set, opts ...Option) (*Signer, error) {
	s := &Signer{
		keys:   keys,
		issuer: DefaultIssuer,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.signingKeys(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadKeySet reads a JWKS document from path.
func LoadKeySet(path string) (jwk.Set, error) {
	set, err := jwk.ReadFile(path)
	if err != nil {
		slog.Error("failed to read JWK set", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLoadKeySet, err)
	}
	return set, nil
}

// GenerateKeySet returns n random HS256 keys. Tokens signed with them do not
// survive a restart.
func GenerateKeySet(n int) (jwk.Set, error) {
	if n < 1 {
		n = 1
	}
	set := jwk.NewSet()
	for i := 0; i < n; i++ {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
		key, err := jwk.New(secret)
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
		if err := key.Set(jwk.KeyIDKey, privatePrefix+uuid.NewString()); err != nil {
			return nil, err
		}
		if err := key.Set(jwk.AlgorithmKey, jwa.HS256); err != nil {
			return nil, err
		}
		set.Add(key)
	}
	return set, nil
}

// Issue signs a token naming workspace as its subject.
func (s *Signer) Issue(workspace string) (string, error) {
	ctx := context.Background()
	key, err := s.nextKey(ctx)
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   workspace,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := &jwt.Token{
		Header: map[string]interface{}{
			"typ": "JWT",
			"alg": key.method.Alg(),
			"kid": key.kid,
		},
		Claims: claims,
		Method: key.method,
	}

	signed, err := token.SignedString(key.raw)
	if err != nil {
		slog.ErrorContext(ctx, "failed to sign JWT", "error", err)
		return "", ErrFailedToSignJWT
	}
	return signed, nil
}

// Verify checks the signature, expiry and issuer of token and returns its
// workspace.
func (s *Signer) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, s.verificationKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || !claims.VerifyIssuer(s.issuer, true) || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *Signer) verificationKey(token *jwt.Token) (interface{}, error) {
	keyID, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("expecting JWT header to have 'kid'")
	}

	key, found := s.keys.LookupKeyID(keyID)
	if !found && strings.HasPrefix(keyID, privatePrefix) {
		key, found = s.keys.LookupKeyID(publicPrefix + strings.TrimPrefix(keyID, privatePrefix))
	}
	if !found {
		return nil, fmt.Errorf("unable to find key with ID '%s'", keyID)
	}
	if want := signingMethod(key).Alg(); token.Method.Alg() != want {
		return nil, fmt.Errorf("unexpected signing method %s, key requires %s", token.Method.Alg(), want)
	}

	if key.KeyType() != jwa.OctetSeq {
		pub, err := jwk.PublicKeyOf(key)
		if err != nil {
			return nil, fmt.Errorf("failed to derive public key: %w", err)
		}
		key = pub
	}
	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToGetRawKey, err)
	}
	return raw, nil
}

// nextKey returns the next signing key and rotates the key index.
func (s *Signer) nextKey(ctx context.Context) (signingKey, error) {
	keys, err := s.signingKeys(ctx)
	if err != nil {
		return signingKey{}, err
	}

	s.mu.Lock()
	selected := keys[s.keyIndex%len(keys)]
	s.keyIndex = (s.keyIndex + 1) % len(keys)
	s.mu.Unlock()
	return selected, nil
}

func (s *Signer) signingKeys(ctx context.Context) ([]signingKey, error) {
	if s.keys == nil {
		return nil, ErrNoSuitablePrivateKey
	}
	var keys []signingKey
	for it := s.keys.Iterate(ctx); it.Next(ctx); {
		key, ok := it.Pair().Value.(jwk.Key)
		if !ok {
			return nil, ErrFailedToCastKey
		}
		if !canUseForSigning(key) {
			continue
		}
		var raw interface{}
		if err := key.Raw(&raw); err != nil {
			slog.ErrorContext(ctx, "failed to get raw key", "error", err)
			return nil, ErrFailedToGetRawKey
		}
		kid := key.KeyID()
		if kid == "" {
			return nil, fmt.Errorf("%w: signing key %d has no kid", ErrNoSuitablePrivateKey, len(keys))
		}
		keys = append(keys, signingKey{raw: raw, kid: kid, method: signingMethod(key)})
	}
	if len(keys) == 0 {
		return nil, ErrNoSuitablePrivateKey
	}
	return keys, nil
}

func canUseForSigning(key jwk.Key) bool {
	switch key.KeyType() {
	case jwa.RSA:
		if rsaKey, ok := key.(jwk.RSAPrivateKey); ok {
			return rsaKey.D() != nil
		}
	case jwa.EC:
		if ecKey, ok := key.(jwk.ECDSAPrivateKey); ok {
			return ecKey.D() != nil
		}
	case jwa.OctetSeq:
		if symKey, ok := key.(jwk.SymmetricKey); ok {
			return len(symKey.Octets()) > 0
		}
	}
	return false
}

func signingMethod(key jwk.Key) jwt.SigningMethod {
	switch key.KeyType() {
	case jwa.OctetSeq:
		return jwt.SigningMethodHS256
	case jwa.EC:
		return jwt.SigningMethodES256
	default:
		return jwt.SigningMethodRS256
	}
}
