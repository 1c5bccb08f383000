// Package session issues and verifies the signed login token.
//
// Tokens are HS256 JWTs carried in the "auth" cookie. Sessions are
// stateless: logout only asks the browser to drop the cookie, and a copied
// token stays valid until it expires.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ohowe1/clipboard/internal/log"
	"github.com/ohowe1/clipboard/internal/xerrors"
)

const DefaultTTL = 365 * 24 * time.Hour

// Identity is the resolved caller. The zero value is anonymous.
type Identity struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (i Identity) Authenticated() bool { return i.Subject != "" }

// Claims keeps the "username" claim older tokens carry next to "sub".
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

type Config struct {
	Secret []byte
	// Issuer is used as both iss and aud.
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

type Gate struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewGate(cfg Config) (*Gate, error) {
	if len(cfg.Secret) == 0 {
		return nil, xerrors.New("session: signing secret is empty")
	}
	if cfg.Issuer == "" {
		return nil, xerrors.New("session: issuer is empty")
	}
	g := &Gate{secret: cfg.Secret, issuer: cfg.Issuer, ttl: cfg.TTL, now: cfg.Now}
	if g.ttl <= 0 {
		g.ttl = DefaultTTL
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g, nil
}

// Issue mints a token for subject and returns it with its expiry.
func (g *Gate) Issue(subject string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, xerrors.New("session: empty subject")
	}
	now := g.now().Truncate(time.Second)
	exp := now.Add(g.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Audience:  jwt.ClaimStrings{g.issuer},
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: subject,
	})
	signed, err := tok.SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, xerrors.Wrap(err, "session: sign token")
	}
	return signed, exp, nil
}

var errNoSubject = errors.New("token has no subject")

// Resolve verifies a presented token. Every failure, including an empty
// token, yields (Identity{}, false); the reason is only logged at debug.
func (g *Gate) Resolve(ctx context.Context, token string) (Identity, bool) {
	if token == "" {
		return Identity{}, false
	}
	id, err := g.verify(token)
	if err != nil {
		log.FromContext(ctx).Debug(ctx, "session token rejected", "reason", err.Error())
		return Identity{}, false
	}
	return id, true
}

func (g *Gate) verify(token string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return g.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.issuer),
		jwt.WithAudience(g.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(g.now),
		// jwt rejects now == exp; a token is still valid at its expiry instant
		jwt.WithLeeway(time.Nanosecond),
	)
	if err != nil {
		return Identity{}, err
	}
	if claims.IssuedAt == nil {
		return Identity{}, jwt.ErrTokenRequiredClaimMissing
	}
	// the leeway also applies to iat; keep that bound exact
	if g.now().Before(claims.IssuedAt.Time) {
		return Identity{}, jwt.ErrTokenUsedBeforeIssued
	}
	sub := claims.Subject
	if sub == "" {
		sub = claims.Username
	}
	if sub == "" {
		return Identity{}, errNoSubject
	}
	return Identity{
		Subject:   sub,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
