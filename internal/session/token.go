package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds. A refresh token is never accepted where an access token is
// required, and vice versa; the typ claim is the discriminator.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Rejection reasons. Callers can tell "expired — re-authenticate" apart from
// "malformed — reject outright".
var (
	ErrTokenExpired   = errors.New("session: token expired")
	ErrTokenMalformed = errors.New("session: token malformed or badly signed")
	ErrWrongTokenKind = errors.New("session: wrong token kind")
)

// Claims is the minimal signed payload: subject, kind, timestamps. No
// secrets, no claim bundles.
type Claims struct {
	Kind     string `json:"typ"`
	Remember bool   `json:"rmb,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is an issued access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresInSeconds int64
}

// Service issues, verifies, and refreshes signed session tokens.
//
// Verification is stateless: no revocation list is consulted, so logout is a
// client-side signal only and a leaked token stays valid until natural
// expiry. That tradeoff is part of the contract; do not quietly bolt a
// revocation store onto this type.
type Service struct {
	secret      []byte
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	rememberTTL time.Duration
	leeway      time.Duration
	now         func() time.Time
}

// NewService creates a token service. leeway is the clock-skew tolerance
// applied on both issued-at and expiry checks; it absorbs drift between
// issuing and verifying hosts and is far smaller than the token lifetime.
func NewService(secret string, issuer string, accessTTL, refreshTTL, rememberTTL, leeway time.Duration) *Service {
	return &Service{
		secret:      []byte(secret),
		issuer:      issuer,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		rememberTTL: rememberTTL,
		leeway:      leeway,
		now:         time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Issue signs a new access/refresh pair for subject. rememberMe extends the
// refresh token to its long-lived horizon; the access token lifetime is
// unaffected.
func (s *Service) Issue(subject string, rememberMe bool) (*TokenPair, error) {
	accessToken, err := s.sign(subject, KindAccess, s.accessTTL, rememberMe)
	if err != nil {
		return nil, err
	}

	refreshTTL := s.refreshTTL
	if rememberMe {
		refreshTTL = s.rememberTTL
	}
	refreshToken, err := s.sign(subject, KindRefresh, refreshTTL, rememberMe)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresInSeconds: int64(s.accessTTL.Seconds()),
	}, nil
}

// VerifyAccess validates an access token and returns its claims.
func (s *Service) VerifyAccess(tokenString string) (*Claims, error) {
	return s.verify(tokenString, KindAccess)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (s *Service) VerifyRefresh(tokenString string) (*Claims, error) {
	return s.verify(tokenString, KindRefresh)
}

// Refresh exchanges a valid refresh token for a new pair, preserving the
// remember-me horizon the original pair was issued with.
func (s *Service) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := s.verify(refreshToken, KindRefresh)
	if err != nil {
		return nil, err
	}
	return s.Issue(claims.Subject, claims.Remember)
}

func (s *Service) sign(subject, kind string, ttl time.Duration, remember bool) (string, error) {
	now := s.now()
	claims := Claims{
		Kind:     kind,
		Remember: remember,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (s *Service) verify(tokenString, wantKind string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	if claims.Kind != wantKind {
		return nil, ErrWrongTokenKind
	}

	return claims, nil
}
