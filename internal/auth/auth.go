package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/ParcelBox/internal/apperr"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
)

const (
	Issuer     = "parcelbox"
	DefaultTTL = 7 * 24 * time.Hour

	nameClaim = "name"
)

// Guard issues and verifies HS256 bearer tokens. It keeps no session state.
type Guard struct {
	secret       []byte
	ttl          time.Duration
	legacyHeader bool
	now          func() time.Time
}

func NewGuard(secret string, ttl time.Duration, legacyHeader bool) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		secret:       []byte(secret),
		ttl:          ttl,
		legacyHeader: legacyHeader,
		now:          time.Now,
	}
}

func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

func (g *Guard) Issue(id models.Identity) (string, error) {
	if id.SupportID == "" {
		return "", errors.New("supportId is required")
	}
	now := g.now()
	tok, err := jwt.NewBuilder().
		Issuer(Issuer).
		Subject(id.SupportID).
		IssuedAt(now).
		Expiration(now.Add(g.ttl)).
		Claim(nameClaim, id.Name).
		Build()
	if err != nil {
		return "", errors.Wrap(err, "build token")
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, g.secret))
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return string(signed), nil
}

// Authenticate verifies an Authorization header value. A missing header is
// Unauthenticated; anything present but unusable is Forbidden.
func (g *Guard) Authenticate(header string) (models.Identity, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return models.Identity{}, apperr.New(apperr.KindUnauthenticated, apperr.CodeUnauthenticated, "authorization header is required")
	}

	raw, ok := g.extractToken(header)
	if !ok {
		return models.Identity{}, apperr.New(apperr.KindForbidden, apperr.CodeForbidden, "authorization scheme must be Bearer")
	}

	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, g.secret),
		jwt.WithIssuer(Issuer),
		jwt.WithClock(jwt.ClockFunc(g.now)),
	)
	if err != nil {
		return models.Identity{}, apperr.Wrap(err, apperr.KindForbidden, apperr.CodeForbidden, "invalid or expired token")
	}
	if tok.Subject() == "" {
		return models.Identity{}, apperr.New(apperr.KindForbidden, apperr.CodeForbidden, "token has no subject")
	}

	id := models.Identity{SupportID: tok.Subject()}
	if v, ok := tok.Get(nameClaim); ok {
		id.Name, _ = v.(string)
	}
	return id, nil
}

func (g *Guard) extractToken(header string) (string, bool) {
	scheme, rest, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "Bearer") {
		rest = strings.TrimSpace(rest)
		return rest, rest != ""
	}
	if !found && g.legacyHeader {
		return header, true
	}
	return "", false
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(models.Identity)
	return id, ok
}

// RequireAuth is chi-compatible middleware. Rejections are rendered by onError.
func (g *Guard) RequireAuth(onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := g.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
