package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dkeye/Parley/internal/adapters/signal"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoIdentity   = errors.New("missing identity")
	ErrInvalidToken = errors.New("invalid token")
)

const (
	sessionUserID   = "uid"
	sessionUsername = "uname"
)

// IdentityMiddleware resolves who is calling. With a secret, identity comes
// from an HMAC-signed JWT (Authorization: Bearer or ?token=); without one,
// from the userId query parameter. Either way it is remembered in the
// cookie session, which also serves requests that carry neither.
func IdentityMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, username, err := resolveIdentity(c.Request, secret)
		sess := sessions.Default(c)
		switch {
		case err == nil:
			sess.Set(sessionUserID, uid)
			sess.Set(sessionUsername, username)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		case errors.Is(err, ErrNoIdentity):
			uid, _ = sess.Get(sessionUserID).(string)
			username, _ = sess.Get(sessionUsername).(string)
		}
		if uid == "" {
			if err == nil {
				err = ErrNoIdentity
			}
			log.Debug().Err(err).Str("module", "adapters.http").Str("path", c.Request.URL.Path).Msg("unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(signal.CtxUserID, uid)
		c.Set(signal.CtxUsername, username)
		c.Next()
	}
}

func resolveIdentity(r *http.Request, secret string) (string, string, error) {
	if secret == "" {
		uid := strings.TrimSpace(r.URL.Query().Get("userId"))
		if uid == "" {
			return "", "", ErrNoIdentity
		}
		return uid, r.URL.Query().Get("username"), nil
	}

	tokenString := extractToken(r)
	if tokenString == "" {
		return "", "", ErrNoIdentity
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidToken
	}
	uid, _ := claims["user_id"].(string)
	if uid == "" {
		uid, _ = claims["sub"].(string)
	}
	if uid == "" {
		return "", "", ErrInvalidToken
	}
	username, _ := claims["username"].(string)
	return uid, username, nil
}

func extractToken(r *http.Request) string {
	bearerToken := r.Header.Get("Authorization")
	if strings.HasPrefix(bearerToken, "Bearer ") {
		return strings.TrimPrefix(bearerToken, "Bearer ")
	}
	// browsers cannot set headers on a WebSocket handshake
	return r.URL.Query().Get("token")
}
