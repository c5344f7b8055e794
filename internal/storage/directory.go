// Package storage はユーザー情報を保持するインメモリのディレクトリを提供します。
package storage

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound は該当するユーザーが存在しない場合に返されます。
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail は同じメールアドレスのユーザーが既に存在する場合に返されます。
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateID は同じIDのユーザーが既に存在する場合に返されます。
	ErrDuplicateID = errors.New("user id already registered")
	// ErrResetTokenExpired はリセットトークンの有効期限切れを表します。
	ErrResetTokenExpired = errors.New("reset token expired")
)

// User は登録済みアカウント1件を表します。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string

	// パスワードリセット待ちの間だけ設定される
	ResetToken       string
	ResetTokenExpiry time.Time

	CreatedAt time.Time
}

// HasResetToken はリセットトークンが発行済みかを返します。
func (u User) HasResetToken() bool {
	return u.ResetToken != ""
}

// ResetTokenValid は now 時点でリセットトークンが有効かを返します。
// 有効期限ちょうどの時刻は期限切れとして扱います。
func (u User) ResetTokenValid(now time.Time) bool {
	return u.HasResetToken() && now.Before(u.ResetTokenExpiry)
}

// NormalizeEmail は検索・保存に使うメールアドレスの正規形を返します。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Directory はユーザーをプロセスメモリ上に保持します。
// 検索はすべて線形走査で、副次インデックスは持ちません。
// 返却する User は常にコピーなので、書き込み途中のレコードが見えることはありません。
type Directory struct {
	lock  sync.RWMutex
	users map[string]*User
}

// NewDirectory は空のディレクトリを作成します。
func NewDirectory() *Directory {
	return &Directory{
		users: make(map[string]*User),
	}
}

// Len は登録ユーザー数を返します。
func (d *Directory) Len() int {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return len(d.users)
}

// Insert はユーザーを追加します。メールアドレスの重複はロック内で再確認します。
func (d *Directory) Insert(user User) error {
	if user.ID == "" {
		return errors.New("user id is required")
	}
	user.Email = NormalizeEmail(user.Email)

	d.lock.Lock()
	defer d.lock.Unlock()

	if _, ok := d.users[user.ID]; ok {
		return ErrDuplicateID
	}
	if d.findByEmailLocked(user.Email) != nil {
		return ErrDuplicateEmail
	}

	stored := user
	d.users[user.ID] = &stored
	return nil
}

// FindByEmail はメールアドレスでユーザーを検索します。
func (d *Directory) FindByEmail(email string) (User, error) {
	email = NormalizeEmail(email)

	d.lock.RLock()
	defer d.lock.RUnlock()

	if u := d.findByEmailLocked(email); u != nil {
		return *u, nil
	}
	return User{}, ErrNotFound
}

// FindByID はIDでユーザーを検索します。
func (d *Directory) FindByID(id string) (User, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	if u, ok := d.users[id]; ok {
		return *u, nil
	}
	return User{}, ErrNotFound
}

// FindByResetToken はリセットトークンでユーザーを検索します。期限は確認しません。
func (d *Directory) FindByResetToken(token string) (User, error) {
	if token == "" {
		return User{}, ErrNotFound
	}

	d.lock.RLock()
	defer d.lock.RUnlock()

	if u := d.findByTokenLocked(token); u != nil {
		return *u, nil
	}
	return User{}, ErrNotFound
}

// SetResetToken はユーザーにリセットトークンと有効期限を設定します。
// 既存のトークンは上書きされます。
func (d *Directory) SetResetToken(id, token string, expiry time.Time) error {
	if token == "" {
		return errors.New("reset token is required")
	}
	return d.update(id, func(u *User) {
		u.ResetToken = token
		u.ResetTokenExpiry = expiry
	})
}

// ClearResetToken はユーザーのリセットトークンを破棄します。
func (d *Directory) ClearResetToken(id string) error {
	return d.update(id, func(u *User) {
		u.ResetToken = ""
		u.ResetTokenExpiry = time.Time{}
	})
}

// ApplyPasswordReset はトークンが有効な場合に限りパスワードハッシュを差し替え、
// トークンを破棄します。確認と更新は同じロック内で行うため、
// 同じトークンでの同時リセットは1件だけが成功します。
func (d *Directory) ApplyPasswordReset(token, passwordHash string, now time.Time) (User, error) {
	if token == "" {
		return User{}, ErrNotFound
	}
	if passwordHash == "" {
		return User{}, errors.New("password hash is required")
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	u := d.findByTokenLocked(token)
	if u == nil {
		return User{}, ErrNotFound
	}
	if !u.ResetTokenValid(now) {
		return User{}, ErrResetTokenExpired
	}

	u.PasswordHash = passwordHash
	u.ResetToken = ""
	u.ResetTokenExpiry = time.Time{}
	return *u, nil
}

func (d *Directory) update(id string, mutate func(*User)) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	u, ok := d.users[id]
	if !ok {
		return ErrNotFound
	}
	mutate(u)
	return nil
}

func (d *Directory) findByEmailLocked(email string) *User {
	for _, u := range d.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (d *Directory) findByTokenLocked(token string) *User {
	for _, u := range d.users {
		if u.ResetToken == token {
			return u
		}
	}
	return nil
}
