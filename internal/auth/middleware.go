package auth

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// LoadIdentity はセッションのユーザーをディレクトリから引き、Identity としてコンテキストに載せます。
// ディレクトリに存在しないユーザー（再起動後など）のセッションは破棄します。
func (h *Handler) LoadIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := sessionUserID(c, h.manager.now())
		if userID == "" {
			c.Next()
			return
		}

		user, err := h.manager.User(userID)
		if err != nil {
			h.logger.Info("session user no longer exists", slog.String("user_id", userID))
			_ = destroySession(c)
			c.Next()
			return
		}

		c.Set(ContextIdentityKey, Identity{
			UserID: user.ID,
			Name:   user.Name,
			Email:  user.Email,
		})
		c.Next()
	}
}

// RequireLogin は未ログインのリクエストをログイン画面へリダイレクトします。
func (h *Handler) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentIdentity(c); !ok {
			c.Redirect(redirectStatus(c), "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireGuest はログイン済みのリクエストをホーム画面へリダイレクトします。
func (h *Handler) RequireGuest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentIdentity(c); ok {
			c.Redirect(redirectStatus(c), "/")
			c.Abort()
			return
		}
		c.Next()
	}
}

// redirectStatus は GET 以外のリクエストを GET で遷移させるため 303 を使います。
func redirectStatus(c *gin.Context) int {
	switch c.Request.Method {
	case http.MethodGet, http.MethodHead:
		return http.StatusFound
	default:
		return http.StatusSeeOther
	}
}
