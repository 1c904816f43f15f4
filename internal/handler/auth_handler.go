// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/userauth/internal/model"
	"github.com/hitoshi/userauth/internal/security"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	RegisterUser(ctx context.Context, email, password string) (*model.User, error)
	ValidLogin(ctx context.Context, email, password string) (bool, error)
	CreateSession(ctx context.Context, email string) (string, error)
	GetUserFromSessionID(ctx context.Context, sessionID string) (*model.User, error)
	Profile(ctx context.Context, sessionID string) (*model.User, error)
	DestroySession(ctx context.Context, userID int64) error
	GetResetPasswordToken(ctx context.Context, email string) (string, error)
	UpdatePassword(ctx context.Context, resetToken, password string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	SessionName   string // セッションCookie名
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はユーザー登録・ログイン・パスワードリセットのHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	config    AuthHandlerConfig
	sanitizer security.EchoSanitizer
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, sanitizer security.EchoSanitizer) *AuthHandler {
	if config.SessionName == "" {
		config.SessionName = "session_id"
	}
	return &AuthHandler{
		service:   service,
		config:    config,
		sanitizer: sanitizer,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

type userMessageResponse struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

type emailResponse struct {
	Email string `json:"email"`
}

type resetTokenResponse struct {
	Email      string `json:"email"`
	ResetToken string `json:"reset_token"`
}

// Index はウェルカムメッセージを返す。
// GET /
func (h *AuthHandler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Bienvenue"})
}

// RegisterUser はフォームのメールアドレスとパスワードでユーザーを登録する。
// POST /users
func (h *AuthHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	if email == "" {
		handleServiceError(w, r, model.NewMissingFieldError("email"))
		return
	}
	if password == "" {
		handleServiceError(w, r, model.NewMissingFieldError("password"))
		return
	}

	user, err := h.service.RegisterUser(r.Context(), email, password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userMessageResponse{
		Email:   h.sanitizer.Sanitize(user.Email),
		Message: "user created",
	})
}

// Login は資格情報を検証してセッションを発行する。
// POST /sessions
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	ok, err := h.service.ValidLogin(r.Context(), email, password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !ok {
		handleServiceError(w, r, model.NewInvalidCredentialsError())
		return
	}

	sessionID, err := h.service.CreateSession(r.Context(), email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if sessionID == "" {
		// 検証後にユーザーが消えた場合
		handleServiceError(w, r, model.NewInvalidCredentialsError())
		return
	}

	http.SetCookie(w, h.sessionCookie(sessionID, h.config.SessionMaxAge))
	writeJSON(w, http.StatusOK, userMessageResponse{
		Email:   h.sanitizer.Sanitize(email),
		Message: "logged in",
	})
}

// Logout はセッションを破棄してトップページへリダイレクトする。
// DELETE /sessions
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := h.userFromCookie(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if user == nil {
		handleServiceError(w, r, model.NewForbiddenError())
		return
	}

	if err := h.service.DestroySession(r.Context(), user.ID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	// セッションCookieをクリア
	http.SetCookie(w, h.sessionCookie("", -1))
	http.Redirect(w, r, "/", http.StatusFound)
}

// Profile はセッションのユーザーのメールアドレスを返す。
// GET /profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.config.SessionName)
	if err != nil || cookie.Value == "" {
		handleServiceError(w, r, model.NewForbiddenError())
		return
	}

	user, err := h.service.Profile(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if user == nil {
		handleServiceError(w, r, model.NewForbiddenError())
		return
	}

	writeJSON(w, http.StatusOK, emailResponse{Email: h.sanitizer.Sanitize(user.Email)})
}

// GetResetPasswordToken はパスワードリセットトークンを発行する。
// POST /reset_password
func (h *AuthHandler) GetResetPasswordToken(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")

	token, err := h.service.GetResetPasswordToken(r.Context(), email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resetTokenResponse{
		Email:      h.sanitizer.Sanitize(email),
		ResetToken: token,
	})
}

// UpdatePassword はリセットトークンを消費してパスワードを更新する。
// フォームのemailは応答に含めるのみで、対象ユーザーはトークンで決まる。
// PUT /reset_password
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	resetToken := r.PostFormValue("reset_token")
	newPassword := r.PostFormValue("new_password")
	if newPassword == "" {
		handleServiceError(w, r, model.NewMissingFieldError("new_password"))
		return
	}

	if err := h.service.UpdatePassword(r.Context(), resetToken, newPassword); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userMessageResponse{
		Email:   h.sanitizer.Sanitize(email),
		Message: "Password updated",
	})
}

// userFromCookie はセッションCookieからユーザーを特定する。Cookieがない場合はnilを返す。
func (h *AuthHandler) userFromCookie(r *http.Request) (*model.User, error) {
	cookie, err := r.Cookie(h.config.SessionName)
	if err != nil {
		return nil, nil
	}
	return h.service.GetUserFromSessionID(r.Context(), cookie.Value)
}

// sessionCookie はセッションCookieを組み立てる。maxAgeが負の場合は削除用のCookieになる。
func (h *AuthHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.config.SessionName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
