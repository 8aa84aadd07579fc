package middleware

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/enzococca/mekan-admin/src/config"
	"github.com/enzococca/mekan-admin/src/logging"
	"github.com/enzococca/mekan-admin/src/models"
	"github.com/enzococca/mekan-admin/src/services"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxUserKey   = "user"
	ctxUserIDKey = "userId"

	flashCookie = "mekan_flash"
	flashMaxAge = 60
	loginPath   = "/login"
)

// UserLoader reloads the session's user on every request.
type UserLoader interface {
	ActiveUser(ctx context.Context, id int) (*models.UserModel, error)
}

// Sessions issues and verifies the signed session cookie.
type Sessions struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	now        func() time.Time
}

func NewSessions(cfg config.SessionConfig) *Sessions {
	return &Sessions{
		secret:     []byte(cfg.Secret),
		ttl:        cfg.TTL,
		cookieName: cfg.CookieName,
		secure:     cfg.Secure,
		now:        time.Now,
	}
}

// Sign returns a session token for userID.
func (s *Sessions) Sign(userID int) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"id":  userID,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks a session token and returns its user id.
func (s *Sessions) Verify(raw string) (int, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return 0, errors.New("invalid session")
	}
	id, ok := claims["id"].(float64)
	if !ok || id < 1 {
		return 0, errors.New("session without user")
	}
	return int(id), nil
}

// Issue sets the session cookie for userID.
func (s *Sessions) Issue(c *gin.Context, userID int) error {
	token, err := s.Sign(userID)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cookieName, token, int(s.ttl.Seconds()), "/", "", s.secure, true)
	return nil
}

// Clear removes the session cookie.
func (s *Sessions) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cookieName, "", -1, "/", "", s.secure, true)
}

// Load attaches the session user to the context when the cookie is valid.
// It never rejects a request; RequireSession does.
func (s *Sessions) Load(users UserLoader) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw, err := ctx.Cookie(s.cookieName)
		if err != nil || raw == "" {
			ctx.Next()
			return
		}
		id, err := s.Verify(raw)
		if err != nil {
			s.Clear(ctx)
			ctx.Next()
			return
		}
		user, err := users.ActiveUser(ctx.Request.Context(), id)
		if errors.Is(err, services.ErrNotFound) {
			logging.Debug().Err(err).Int("user_id", id).Msg("session user rejected")
			s.Clear(ctx)
			ctx.Next()
			return
		}
		if err != nil {
			// The cookie stays; the user is anonymous for this request only.
			logging.Warn().Err(err).Int("user_id", id).Msg("session user lookup failed")
			ctx.Next()
			return
		}
		ctx.Set(ctxUserKey, user)
		ctx.Set(ctxUserIDKey, user.UserID)
		ctx.Next()
	}
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(ctx *gin.Context) *models.UserModel {
	v, ok := ctx.Get(ctxUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.UserModel)
	return u
}

// RequireSession rejects anonymous requests: API routes with 401 JSON,
// web routes with a redirect to the login page.
func RequireSession(api bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if CurrentUser(ctx) != nil {
			ctx.Next()
			return
		}
		if api {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		ctx.Redirect(http.StatusFound, loginPath)
		ctx.Abort()
	}
}

// RequirePermission rejects users whose role lacks p.
func RequirePermission(p models.Permission, api bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user := CurrentUser(ctx)
		if user.Can(p) {
			ctx.Next()
			return
		}
		if api {
			status := http.StatusForbidden
			if user == nil {
				status = http.StatusUnauthorized
			}
			ctx.AbortWithStatusJSON(status, gin.H{"error": fmt.Sprintf("Permission denied: %s required", p)})
			return
		}
		SetFlash(ctx, FlashError, "You do not have permission to access that page.")
		ctx.Redirect(http.StatusFound, loginPath)
		ctx.Abort()
	}
}

const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string `json:"k"`
	Message string `json:"m"`
}

func SetFlash(ctx *gin.Context, kind, message string) {
	b, err := json.Marshal(Flash{Kind: kind, Message: message})
	if err != nil {
		return
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(flashCookie, base64.RawURLEncoding.EncodeToString(b), flashMaxAge, "/", "", false, true)
}

// PopFlash reads and clears the pending flash message.
func PopFlash(ctx *gin.Context) *Flash {
	raw, err := ctx.Cookie(flashCookie)
	if err != nil || raw == "" {
		return nil
	}
	ctx.SetCookie(flashCookie, "", -1, "/", "", false, true)

	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var f Flash
	if err := json.Unmarshal(b, &f); err != nil {
		return nil
	}
	return &f
}
