package auth

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// エラーコード。HTTP 層はこのコードで応答を切り替えます。
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeEmailTaken         = "REGISTER_EMAIL_TAKEN"
	CodePasswordTooShort   = "PASSWORD_TOO_SHORT"
	CodePasswordMismatch   = "PASSWORD_MISMATCH"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeResetTokenInvalid  = "RESET_TOKEN_INVALID"
	CodeResetTokenExpired  = "RESET_TOKEN_EXPIRED"
	CodeMailDeliveryFailed = "MAIL_DELIVERY_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrorCode は err に付与されたコードを返します。コードがない場合は CodeInternal です。
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return CodeInternal
	}
	code := fmt.Sprint(oopsErr.Code())
	if code == "" {
		return CodeInternal
	}
	return code
}

// IsValidation はフォームを再表示すべき入力エラーかを返します。
func IsValidation(err error) bool {
	switch ErrorCode(err) {
	case CodeInvalidInput, CodeEmailTaken, CodePasswordTooShort, CodePasswordMismatch:
		return true
	default:
		return false
	}
}

// metricResult はエラーコードをメトリクスの result ラベル値に変換します。
func metricResult(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(ErrorCode(err))
}
