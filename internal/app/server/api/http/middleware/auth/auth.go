package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"
)

// Auth проверяет bearer-токен по bcrypt-хешу из конфигурации
type Auth struct {
	hash []byte
	log  *slog.Logger
}

// New создает middleware. Пустой хеш отключает проверку.
func New(tokenHash string, log *slog.Logger) *Auth {
	return &Auth{
		hash: []byte(tokenHash),
		log:  log.With("component", "auth_middleware"),
	}
}

// Enabled сообщает, требуется ли токен
func (a *Auth) Enabled() bool {
	return len(a.hash) > 0
}

// Middleware возвращает middleware для Huma с сигнатурой func(ctx Context, next func(Context))
func (a *Auth) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if !a.Enabled() {
			next(ctx)
			return
		}

		header := ctx.Header("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			a.log.Warn("missing bearer token", "path", ctx.URL().Path, "remote_addr", ctx.RemoteAddr())
			a.unauthorized(ctx)
			return
		}

		if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
			a.log.Warn("invalid bearer token", "path", ctx.URL().Path, "remote_addr", ctx.RemoteAddr())
			a.unauthorized(ctx)
			return
		}

		next(ctx)
	}
}

func (a *Auth) unauthorized(ctx huma.Context) {
	ctx.SetStatus(http.StatusUnauthorized)
	ctx.SetHeader("Content-Type", "application/json")

	err := json.NewEncoder(ctx.BodyWriter()).Encode(map[string]string{
		"error": "Unauthorized",
	})
	if err != nil {
		a.log.Error("failed to write response", "error", err)
	}
}

// HashToken готовит значение для API_TOKEN_HASH
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
