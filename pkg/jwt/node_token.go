package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail verification for any reason
// other than expiry
var ErrInvalidToken = errors.New("invalid token")

// ErrTokenExpired is returned for well formed tokens past their expiry
var ErrTokenExpired = errors.New("token has expired")

// NodeTokenService issues and verifies node bearer tokens. The subject is the
// wallet address of the node operator.
type NodeTokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewNodeTokenService creates a new NodeTokenService
func NewNodeTokenService(cfg *config.Config) *NodeTokenService {
	return &NodeTokenService{
		secret: []byte(cfg.JWT.Secret),
		ttl:    cfg.JWT.TTL,
	}
}

// Enabled reports whether a signing secret is configured
func (s *NodeTokenService) Enabled() bool {
	return len(s.secret) > 0
}

// Issue signs a token for the wallet address
func (s *NodeTokenService) Issue(walletAddress string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   walletAddress,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks the token and returns its wallet address
func (s *NodeTokenService) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the alg is what you expect:
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
