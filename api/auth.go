package api

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var errSessionExpired = errors.New("session expired")

// Sessions issues and validates HS256 session tokens.
type Sessions struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time

	parser *jwt.Parser
}

// NewSessions creates a token issuer. A non-positive ttl defaults to 12h.
func NewSessions(secret []byte, issuer string, ttl time.Duration) *Sessions {
	if len(secret) == 0 {
		panic("api.NewSessions: secret is empty")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Sessions{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

// Issue signs a token whose subject is userID.
func (s *Sessions) Issue(userID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp.UTC(), nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (s *Sessions) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return s.UserIDFromBearer(token)
}

// UserIDFromBearer extracts the user identifier from a raw bearer token.
func (s *Sessions) UserIDFromBearer(token string) (string, error) {
	if token == "" {
		return "", errBadAuthorization
	}

	parsed, err := s.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := s.now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyIssuedAt(now+60, false) {
		return "", errors.New("token used before issued")
	}
	if s.issuer != "" && !claims.VerifyIssuer(s.issuer, true) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}
