package auth

import (
	"encoding/gob"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	SessionCookieName    = "gk_session"
	sessionKeyUser       = "auth_user_id"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"

	flashSuccess = "success"
	flashError   = "error"
)

var (
	maxSessionLifetime = 12 * time.Hour
	idleTimeout        = 30 * time.Minute
)

func init() {
	// フラッシュは []interface{} のままクッキーに gob で保存される
	gob.Register([]interface{}{})
}

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// ContextIdentityKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
const ContextIdentityKey = "auth.identity"

// Identity はログイン済みユーザーの情報です。
type Identity struct {
	UserID string
	Name   string
	Email  string
}

// CurrentIdentity はリクエストに紐づくログイン済みユーザーを返します。
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ContextIdentityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// establishSession はセッションを userID に結び付けて保存します。
func establishSession(c *gin.Context, userID string, now time.Time) error {
	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionKeyUser, userID)
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	return session.Save()
}

// destroySession はセッションの内容を破棄します。
func destroySession(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	return session.Save()
}

// sessionUserID はセッションの userID を返します。
// 有効期限切れ・アイドルタイムアウトのセッションは破棄して空文字を返します。
func sessionUserID(c *gin.Context, now time.Time) string {
	session := sessions.Default(c)
	userID, ok := session.Get(sessionKeyUser).(string)
	if !ok || userID == "" {
		return ""
	}

	issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
	lastActive := readUnix(session.Get(sessionKeyLastActive))
	if issuedAt.IsZero() || now.Sub(issuedAt) > maxSessionLifetime ||
		lastActive.IsZero() || now.Sub(lastActive) > idleTimeout {
		session.Clear()
		_ = session.Save()
		return ""
	}

	session.Set(sessionKeyLastActive, now.Unix())
	_ = session.Save()
	return userID
}

// Flashes は次のページ表示で一度だけ出すメッセージです。
type Flashes struct {
	Success []string
	Error   []string
}

func addFlash(c *gin.Context, kind, message string) {
	session := sessions.Default(c)
	session.AddFlash(message, kind)
	_ = session.Save()
}

// takeFlashes はセッションのフラッシュメッセージを取り出して消去します。
func takeFlashes(c *gin.Context) Flashes {
	session := sessions.Default(c)
	f := Flashes{
		Success: toStrings(session.Flashes(flashSuccess)),
		Error:   toStrings(session.Flashes(flashError)),
	}
	if len(f.Success) > 0 || len(f.Error) > 0 {
		_ = session.Save()
	}
	return f
}

func toStrings(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
