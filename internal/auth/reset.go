package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/samber/oops"

	"github.com/yourusername/gatekeeper/internal/storage"
)

// リセットトークンの設定。
const (
	ResetTokenBytes = 20        // 40 hex 文字
	ResetTokenTTL   = time.Hour // 発行から1時間
)

// ResetState はユーザーごとのパスワードリセット状態です。
type ResetState int

const (
	ResetIdle ResetState = iota
	ResetPending
	ResetExpired
)

func (s ResetState) String() string {
	switch s {
	case ResetPending:
		return "pending"
	case ResetExpired:
		return "expired"
	default:
		return "idle"
	}
}

// ResetStateOf は now 時点での user のリセット状態を返します。
func ResetStateOf(user storage.User, now time.Time) ResetState {
	switch {
	case !user.HasResetToken():
		return ResetIdle
	case user.ResetTokenValid(now):
		return ResetPending
	default:
		return ResetExpired
	}
}

// GenerateResetToken は暗号論的乱数から hex エンコードのトークンを生成します。
func GenerateResetToken() (string, error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code(CodeInternal).With("operation", "GenerateResetToken").Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}
