// Package auth は認証・認可機能を提供します。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/yourusername/gatekeeper/internal/mail"
	"github.com/yourusername/gatekeeper/internal/metrics"
	"github.com/yourusername/gatekeeper/internal/storage"
)

// UserDirectory はユーザー情報の保存先です。
type UserDirectory interface {
	Insert(user storage.User) error
	FindByEmail(email string) (storage.User, error)
	FindByID(id string) (storage.User, error)
	FindByResetToken(token string) (storage.User, error)
	SetResetToken(id, token string, expiry time.Time) error
	ClearResetToken(id string) error
	ApplyPasswordReset(token, passwordHash string, now time.Time) (storage.User, error)
}

// Options は Manager の任意設定です。
type Options struct {
	BaseURL  string // リセットリンクのベースURL
	MailFrom string // 送信元アドレス
	Hasher   PasswordHasher
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Manager は登録・ログイン・パスワードリセットの処理をまとめた構造体です。
// パスワードのハッシュ化はディレクトリのロック外で行います。
type Manager struct {
	users    UserDirectory
	mailer   mail.Sender
	hasher   PasswordHasher
	baseURL  string
	mailFrom string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewManager は認証マネージャーを作成します。
func NewManager(users UserDirectory, mailer mail.Sender, opts Options) *Manager {
	m := &Manager{
		users:    users,
		mailer:   mailer,
		hasher:   opts.Hasher,
		baseURL:  opts.BaseURL,
		mailFrom: opts.MailFrom,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if m.hasher == nil {
		m.hasher = NewBcryptHasher(PasswordCost)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.baseURL == "" {
		m.baseURL = "http://localhost:3000"
	}
	if m.mailFrom == "" {
		m.mailFrom = "noreply@localhost"
	}
	return m
}

// RegisterInput は登録フォームの入力です。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register はアカウントを作成します。
// メール重複とパスワード長の確認はハッシュ化より前に行います。
func (m *Manager) Register(ctx context.Context, in RegisterInput) (storage.User, error) {
	user, err := m.register(ctx, in)
	m.metrics.ObserveRegistration(metricResult(err))
	return user, err
}

func (m *Manager) register(ctx context.Context, in RegisterInput) (storage.User, error) {
	name := strings.TrimSpace(in.Name)
	email := storage.NormalizeEmail(in.Email)
	if name == "" || email == "" {
		return storage.User{}, oops.Code(CodeInvalidInput).Errorf("name and email are required")
	}

	if _, err := m.users.FindByEmail(email); err == nil {
		return storage.User{}, oops.Code(CodeEmailTaken).With("email", email).Errorf("email already exists")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, oops.Code(CodeInternal).With("operation", "FindByEmail").Wrap(err)
	}

	if err := ValidatePassword(in.Password); err != nil {
		return storage.User{}, err
	}

	hash, err := m.hasher.Hash(in.Password)
	if err != nil {
		return storage.User{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return storage.User{}, oops.Code(CodeInternal).With("operation", "NewV7").Wrap(err)
	}

	user := storage.User{
		ID:           id.String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    m.now(),
	}
	if err := m.users.Insert(user); err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			// 重複確認とハッシュ化の間に同じメールで登録された
			return storage.User{}, oops.Code(CodeEmailTaken).With("email", email).Wrap(err)
		}
		return storage.User{}, oops.Code(CodeInternal).With("operation", "Insert").Wrap(err)
	}

	m.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID), slog.String("email", email))
	return user, nil
}

// Authenticate はメールアドレスとパスワードを検証します。
// 未登録とパスワード不一致は区別せず、同じエラーを返します。
func (m *Manager) Authenticate(ctx context.Context, email, password string) (storage.User, error) {
	user, err := m.authenticate(ctx, email, password)
	m.metrics.ObserveLogin(metricResult(err))
	return user, err
}

func (m *Manager) authenticate(ctx context.Context, email, password string) (storage.User, error) {
	email = storage.NormalizeEmail(email)
	invalid := oops.Code(CodeInvalidCredentials).Errorf("email or password is incorrect")

	user, err := m.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.InfoContext(ctx, "login failed", slog.String("email", email), slog.String("reason", "unknown email"))
			return storage.User{}, invalid
		}
		return storage.User{}, oops.Code(CodeInternal).With("operation", "FindByEmail").Wrap(err)
	}

	if !m.hasher.Verify(password, user.PasswordHash) {
		m.logger.InfoContext(ctx, "login failed", slog.String("email", email), slog.String("reason", "wrong password"))
		return storage.User{}, invalid
	}

	m.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	return user, nil
}

// User は ID でユーザーを取得します。
func (m *Manager) User(id string) (storage.User, error) {
	return m.users.FindByID(id)
}

// RequestReset はリセットトークンを発行し、リセットリンクをメールで送ります。
// 未登録のメールアドレスでも成功を返し、アカウントの有無を明かしません。
// トークンは送信前に保存済みなので、送信に失敗しても巻き戻しません。
func (m *Manager) RequestReset(ctx context.Context, email string) error {
	err := m.requestReset(ctx, email)
	m.metrics.ObserveResetRequest(metricResult(err))
	return err
}

func (m *Manager) requestReset(ctx context.Context, email string) error {
	email = storage.NormalizeEmail(email)
	if email == "" {
		return oops.Code(CodeInvalidInput).Errorf("email is required")
	}

	token, err := GenerateResetToken()
	if err != nil {
		return err
	}

	user, err := m.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.InfoContext(ctx, "no user with email found", slog.String("email", email))
			return nil
		}
		return oops.Code(CodeInternal).With("operation", "FindByEmail").Wrap(err)
	}

	expiry := m.now().Add(ResetTokenTTL)
	if err := m.users.SetResetToken(user.ID, token, expiry); err != nil {
		return oops.Code(CodeInternal).With("operation", "SetResetToken").Wrap(err)
	}
	m.logger.InfoContext(ctx, "password reset requested", slog.String("user_id", user.ID))

	msg := mail.PasswordResetMessage(m.mailFrom, user.Email, mail.ResetLink(m.baseURL, token))
	if err := m.sendMail(ctx, msg); err != nil {
		return oops.Code(CodeMailDeliveryFailed).With("user_id", user.ID).Wrap(err)
	}
	return nil
}

// ValidateResetToken はリセットフォームを表示してよいトークンかを確認します。
// 期限切れのトークンはその場で破棄します。
func (m *Manager) ValidateResetToken(ctx context.Context, token string) (storage.User, error) {
	user, err := m.users.FindByResetToken(token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.InfoContext(ctx, "invalid reset token")
			return storage.User{}, oops.Code(CodeResetTokenInvalid).Errorf("reset token not found")
		}
		return storage.User{}, oops.Code(CodeInternal).With("operation", "FindByResetToken").Wrap(err)
	}

	if ResetStateOf(user, m.now()) == ResetExpired {
		m.logger.InfoContext(ctx, "reset token expired", slog.String("user_id", user.ID))
		if err := m.users.ClearResetToken(user.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.WarnContext(ctx, "failed to clear expired reset token", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		}
		return storage.User{}, oops.Code(CodeResetTokenExpired).Errorf("reset token has expired")
	}

	return user, nil
}

// ResetInput はリセットフォームの入力です。
type ResetInput struct {
	Token    string
	Password string
	Confirm  string
}

// SubmitReset はトークンを検証してパスワードを更新し、確認メールを送ります。
// 確認メールの送信失敗はログに残すだけで、結果は変えません。
func (m *Manager) SubmitReset(ctx context.Context, in ResetInput) error {
	err := m.submitReset(ctx, in)
	m.metrics.ObserveReset(metricResult(err))
	return err
}

func (m *Manager) submitReset(ctx context.Context, in ResetInput) error {
	if _, err := m.ValidateResetToken(ctx, in.Token); err != nil {
		return err
	}

	if in.Password != in.Confirm {
		return oops.Code(CodePasswordMismatch).Errorf("passwords do not match")
	}
	if err := ValidatePassword(in.Password); err != nil {
		return err
	}

	hash, err := m.hasher.Hash(in.Password)
	if err != nil {
		return err
	}

	user, err := m.users.ApplyPasswordReset(in.Token, hash, m.now())
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// ハッシュ化の間に別のリクエストがトークンを使った
			return oops.Code(CodeResetTokenInvalid).Wrap(err)
		case errors.Is(err, storage.ErrResetTokenExpired):
			return oops.Code(CodeResetTokenExpired).Wrap(err)
		default:
			return oops.Code(CodeInternal).With("operation", "ApplyPasswordReset").Wrap(err)
		}
	}
	m.logger.InfoContext(ctx, "password changed", slog.String("user_id", user.ID))

	if err := m.sendMail(ctx, mail.PasswordChangedMessage(m.mailFrom, user.Email)); err != nil {
		m.logger.WarnContext(ctx, "failed to send password changed email",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (m *Manager) sendMail(ctx context.Context, msg mail.Message) error {
	if m.mailer == nil {
		m.metrics.ObserveMail(string(msg.Kind), "not_configured")
		return errors.New("mail sender not configured")
	}
	if err := m.mailer.Send(ctx, msg); err != nil {
		m.metrics.ObserveMail(string(msg.Kind), "failure")
		m.logger.ErrorContext(ctx, "mail send failed", slog.String("kind", string(msg.Kind)), slog.String("error", err.Error()))
		return err
	}
	result := metrics.ResultSuccess
	if mail.Queued(m.mailer) {
		// 配送結果はワーカー側で記録する
		result = metrics.ResultQueued
	}
	m.metrics.ObserveMail(string(msg.Kind), result)
	return nil
}
