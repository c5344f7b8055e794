package auth

import (
	"unicode/utf8"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength はパスワードの最小文字数です。
	MinPasswordLength = 6
	// PasswordCost は bcrypt のコストです。
	PasswordCost = 10
	// bcryptMaxBytes を超える部分は bcrypt が扱えないため切り捨てます。
	bcryptMaxBytes = 72
)

// PasswordHasher はパスワードのハッシュ化と照合を提供します。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// BcryptHasher は bcrypt による PasswordHasher です。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher は指定コストの BcryptHasher を作成します。範囲外のコストは PasswordCost に丸めます。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = PasswordCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash はソルト付きのハッシュを生成します。
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), h.cost)
	if err != nil {
		return "", oops.Code(CodeInternal).With("operation", "GenerateFromPassword").Wrap(err)
	}
	return string(hash), nil
}

// Verify は password が hash と一致するかを返します。
func (h *BcryptHasher) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password)) == nil
}

// bcryptInput は先頭 72 バイトだけを返します。長さの上限は設けません。
func bcryptInput(password string) []byte {
	b := []byte(password)
	if len(b) > bcryptMaxBytes {
		b = b[:bcryptMaxBytes]
	}
	return b
}

// ValidatePassword は長さ要件を確認します。複雑さの要件はありません。
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return oops.Code(CodePasswordTooShort).
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
