package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/unkn0wn-root/tresor"
)

// HeaderJWT carries the dashboard-issued token.
const HeaderJWT = "X-JWT"

// Claims issued by the dashboard.
type Claims struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Teacher     bool   `json:"teacher,omitempty"`
	jwt.RegisteredClaims
}

// User is the authenticated caller.
type User struct {
	Email       string
	DisplayName string
	Teacher     bool
}

type userKey struct{}

// UserFrom returns the caller attached by the auth middleware.
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}

func withUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

var errAuth = &tresor.Error{Kind: tresor.KindAuthRequired, Op: "auth", Msg: "auth_required"}

// verifier checks HS256 tokens. exp is mandatory.
type verifier struct {
	secret []byte
	now    func() time.Time
}

func (v verifier) verify(token string) (User, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return User{}, &tresor.Error{Kind: tresor.KindAuthRequired, Op: "auth", Msg: "auth_required", Err: err}
	}
	if strings.TrimSpace(c.Email) == "" {
		return User{}, &tresor.Error{Kind: tresor.KindAuthRequired, Op: "auth", Msg: "auth_required", Err: errors.New("token without email")}
	}
	return User{Email: c.Email, DisplayName: c.DisplayName, Teacher: c.Teacher}, nil
}

// Sign issues a token for u valid for ttl. Used by operators and tests.
func Sign(secret []byte, u User, ttl time.Duration, now time.Time) (string, error) {
	c := Claims{
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Teacher:     u.Teacher,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

// requireUser wraps h so it only runs with a verified token.
func (s *Server) requireUser(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(HeaderJWT)
		if token == "" {
			s.fail(w, r, errAuth, nil)
			return
		}
		u, err := s.verifier.verify(token)
		if err != nil {
			s.fail(w, r, err, nil)
			return
		}
		local, _, _ := strings.Cut(u.Email, "@")
		s.log.Debug("["+local+"@jwt] "+r.URL.Path, tresor.Fields{"request_id": requestID(r.Context())})
		h(w, r.WithContext(withUser(r.Context(), u)))
	}
}
