package auth

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ユーザーに表示するメッセージ。
const (
	msgLoginSuccess      = "Successfully logged in!"
	msgLoginFailed       = "Email or password is incorrect."
	msgRegistered        = "Successfully registered! Please log in."
	msgEmailTaken        = "Email already exists."
	msgPasswordTooShort  = "Password must be at least 6 characters long."
	msgPasswordMismatch  = "Passwords do not match."
	msgMissingFields     = "Please fill in all fields."
	msgResetSent         = "If an account exists for that email, an e-mail has been sent with further instructions."
	msgResetInvalid      = "Password reset token is invalid."
	msgResetExpired      = "Password reset token has expired. Please request a new one."
	msgPasswordChanged   = "Success! Your password has been changed."
	msgGenericFailure    = "Something went wrong. Please try again later."
	msgSessionSaveFailed = "Could not save your session. Please try again."
)

// Handler は認証フローの HTTP ハンドラーです。
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager: manager,
		logger:  logger,
	}
}

// Routes は認証フローのルートを登録します。
func (h *Handler) Routes(router gin.IRouter) {
	router.Use(h.LoadIdentity())

	router.GET("/", h.RequireLogin(), h.Home)

	guest := router.Group("")
	guest.Use(h.RequireGuest())
	{
		guest.GET("/login", h.LoginForm)
		guest.POST("/login", h.Login)
		guest.GET("/register", h.RegisterForm)
		guest.POST("/register", h.Register)
	}

	router.DELETE("/logout", h.Logout)

	router.GET("/forgot", h.ForgotForm)
	router.POST("/forgot", h.Forgot)
	router.GET("/reset/:token", h.ResetForm)
	router.POST("/reset/:token", h.Reset)
}

type loginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

type registerForm struct {
	Name     string `form:"name" binding:"required"`
	Email    string `form:"email" binding:"required"`
	Password string `form:"password"`
}

type forgotForm struct {
	Email string `form:"email" binding:"required"`
}

type resetForm struct {
	Password string `form:"password"`
	Confirm  string `form:"confirm"`
}

// Home は GET / のハンドラーです。
func (h *Handler) Home(c *gin.Context) {
	identity, _ := CurrentIdentity(c)
	h.render(c, http.StatusOK, "index.tmpl", gin.H{
		"Title": "Home",
		"Name":  identity.Name,
	})
}

// LoginForm は GET /login のハンドラーです。
func (h *Handler) LoginForm(c *gin.Context) {
	h.render(c, http.StatusOK, "login.tmpl", gin.H{"Title": "Login"})
}

// Login は POST /login のハンドラーです。
func (h *Handler) Login(c *gin.Context) {
	var form loginForm
	_ = c.ShouldBind(&form)

	user, err := h.manager.Authenticate(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		if ErrorCode(err) == CodeInvalidCredentials {
			addFlash(c, flashError, msgLoginFailed)
			c.Redirect(http.StatusSeeOther, "/login")
			return
		}
		h.fail(c, err)
		return
	}

	if err := establishSession(c, user.ID, h.manager.now()); err != nil {
		h.logger.Error("failed to save session", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		addFlash(c, flashError, msgSessionSaveFailed)
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}
	addFlash(c, flashSuccess, msgLoginSuccess)
	c.Redirect(http.StatusSeeOther, "/")
}

// RegisterForm は GET /register のハンドラーです。
func (h *Handler) RegisterForm(c *gin.Context) {
	h.render(c, http.StatusOK, "register.tmpl", gin.H{"Title": "Register"})
}

// Register は POST /register のハンドラーです。
func (h *Handler) Register(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		h.render(c, http.StatusBadRequest, "register.tmpl", gin.H{
			"Title":  "Register",
			"Errors": []string{msgMissingFields},
			"Name":   form.Name,
			"Email":  form.Email,
		})
		return
	}

	_, err := h.manager.Register(c.Request.Context(), RegisterInput{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
	})
	if err != nil {
		if !IsValidation(err) {
			h.fail(c, err)
			return
		}
		status := http.StatusBadRequest
		if ErrorCode(err) == CodeEmailTaken {
			status = http.StatusConflict
		}
		h.render(c, status, "register.tmpl", gin.H{
			"Title":  "Register",
			"Errors": []string{validationMessage(err)},
			"Name":   form.Name,
			"Email":  form.Email,
		})
		return
	}

	addFlash(c, flashSuccess, msgRegistered)
	c.Redirect(http.StatusSeeOther, "/login")
}

// Logout は DELETE /logout のハンドラーです。
func (h *Handler) Logout(c *gin.Context) {
	if identity, ok := CurrentIdentity(c); ok {
		h.logger.Info("user logged out", slog.String("user_id", identity.UserID))
	}
	if err := destroySession(c); err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

// ForgotForm は GET /forgot のハンドラーです。
func (h *Handler) ForgotForm(c *gin.Context) {
	h.render(c, http.StatusOK, "forgot.tmpl", gin.H{"Title": "Forgot Password"})
}

// Forgot は POST /forgot のハンドラーです。
// 未登録のメールアドレスでも同じ応答を返します。
func (h *Handler) Forgot(c *gin.Context) {
	var form forgotForm
	if err := c.ShouldBind(&form); err != nil {
		h.render(c, http.StatusBadRequest, "forgot.tmpl", gin.H{
			"Title":  "Forgot Password",
			"Errors": []string{msgMissingFields},
		})
		return
	}

	if err := h.manager.RequestReset(c.Request.Context(), form.Email); err != nil {
		if IsValidation(err) {
			h.render(c, http.StatusBadRequest, "forgot.tmpl", gin.H{
				"Title":  "Forgot Password",
				"Errors": []string{validationMessage(err)},
			})
			return
		}
		h.fail(c, err)
		return
	}

	addFlash(c, flashSuccess, msgResetSent)
	c.Redirect(http.StatusSeeOther, "/forgot")
}

// ResetForm は GET /reset/:token のハンドラーです。
func (h *Handler) ResetForm(c *gin.Context) {
	token := c.Param("token")
	if _, err := h.manager.ValidateResetToken(c.Request.Context(), token); err != nil {
		h.redirectResetFailure(c, err)
		return
	}

	h.render(c, http.StatusOK, "reset.tmpl", gin.H{
		"Title": "Reset Password",
		"Token": token,
	})
}

// Reset は POST /reset/:token のハンドラーです。
func (h *Handler) Reset(c *gin.Context) {
	token := c.Param("token")
	var form resetForm
	_ = c.ShouldBind(&form)

	err := h.manager.SubmitReset(c.Request.Context(), ResetInput{
		Token:    token,
		Password: form.Password,
		Confirm:  form.Confirm,
	})
	if err != nil {
		if IsValidation(err) {
			addFlash(c, flashError, validationMessage(err))
			c.Redirect(http.StatusSeeOther, "/reset/"+token)
			return
		}
		h.redirectResetFailure(c, err)
		return
	}

	addFlash(c, flashSuccess, msgPasswordChanged)
	c.Redirect(http.StatusSeeOther, "/login")
}

func (h *Handler) redirectResetFailure(c *gin.Context, err error) {
	switch ErrorCode(err) {
	case CodeResetTokenInvalid:
		addFlash(c, flashError, msgResetInvalid)
	case CodeResetTokenExpired:
		addFlash(c, flashError, msgResetExpired)
	default:
		h.fail(c, err)
		return
	}
	c.Redirect(redirectStatus(c), "/forgot")
}

// render はフラッシュメッセージを添えてテンプレートを描画します。
func (h *Handler) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Flashes"] = takeFlashes(c)
	c.HTML(status, name, data)
}

// fail は想定外のエラーを汎用エラー画面として返します。
func (h *Handler) fail(c *gin.Context, err error) {
	h.logger.Error("request failed",
		slog.String("path", c.Request.URL.Path),
		slog.String("code", ErrorCode(err)),
		slog.String("error", err.Error()),
	)
	h.render(c, http.StatusInternalServerError, "error.tmpl", gin.H{
		"Title":   "Error",
		"Message": msgGenericFailure,
	})
}

func validationMessage(err error) string {
	switch ErrorCode(err) {
	case CodeEmailTaken:
		return msgEmailTaken
	case CodePasswordTooShort:
		return msgPasswordTooShort
	case CodePasswordMismatch:
		return msgPasswordMismatch
	default:
		return msgMissingFields
	}
}
