package jwt

import (
	"crypto/ed25519"
	"errors"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wareflow/authkit/permission"
)

// SigningMethod selects the algorithm an [Issuer] signs with.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret, matching the WareFlow backend.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
)

// IssuerConfig configures credential issuance.
type IssuerConfig struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	Issuer        string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Issuer mints signed credentials carrying the claims [Decode] reads. It is
// used by test fixtures and the local mock backend; production credentials
// come from the real backend.
type Issuer struct {
	config IssuerConfig
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Issuer{config: cfg}, nil
}

// Issue signs a credential for role and username that expires after the
// configured TTL.
func (i *Issuer) Issue(role permission.Role, username string) (string, error) {
	return i.IssueWithExpiry(role, username, i.config.Now().Add(i.config.TTL))
}

// IssueWithExpiry signs a credential with an explicit expiry. Role is not
// validated so fixtures can produce credentials the client must reject.
// Every credential carries a fresh jti, so two issued within the same
// second still differ.
func (i *Issuer) IssueWithExpiry(role permission.Role, username string, expiresAt time.Time) (string, error) {
	now := i.config.Now()
	claims := wireClaims{
		Role:     string(role),
		Username: username,
		RegisteredClaims: gjwt.RegisteredClaims{
			ExpiresAt: gjwt.NewNumericDate(expiresAt),
			IssuedAt:  gjwt.NewNumericDate(now),
			Issuer:    i.config.Issuer,
			ID:        uuid.NewString(),
		},
	}

	token := gjwt.NewWithClaims(i.method(), claims)
	key, err := i.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

func (i *Issuer) method() gjwt.SigningMethod {
	if i.config.SigningMethod == MethodEd25519 {
		return gjwt.SigningMethodEdDSA
	}
	return gjwt.SigningMethodHS256
}

func (i *Issuer) signKey() (interface{}, error) {
	if i.config.SigningMethod == MethodEd25519 {
		return parseEdPrivateKey(i.config.PrivateKey)
	}
	return i.config.PrivateKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := gjwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}
