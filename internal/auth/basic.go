package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/userauth/internal/model"
	"github.com/hitoshi/userauth/internal/repository"
)

// RequestAuthenticator はリクエストから利用者を特定する。
// HasCredentialsがfalseなら401、CurrentUserがnilなら403として扱う。
type RequestAuthenticator interface {
	HasCredentials(r *http.Request) bool
	CurrentUser(r *http.Request) (*model.User, error)
}

// RequireAuth はパスが認証を必要とするかを返す。
// パス末尾のスラッシュの有無は区別しない。除外パスの末尾が"*"の場合は前方一致で判定する。
func RequireAuth(path string, excluded []string) bool {
	if path == "" || len(excluded) == 0 {
		return true
	}

	path = strings.TrimRight(path, "/") + "/"
	for _, ex := range excluded {
		if prefix, ok := strings.CutSuffix(ex, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return false
			}
			continue
		}
		if path == strings.TrimRight(ex, "/")+"/" {
			return false
		}
	}
	return true
}

// ExtractBase64AuthorizationHeader は"Basic <値>"形式のヘッダーから値部分を取り出す。
// 形式が異なる場合は空文字を返す。
func ExtractBase64AuthorizationHeader(header string) string {
	value, ok := strings.CutPrefix(header, "Basic ")
	if !ok {
		return ""
	}
	return value
}

// DecodeBase64AuthorizationHeader はBase64文字列をUTF-8文字列にデコードする。
func DecodeBase64AuthorizationHeader(encoded string) (string, bool) {
	if encoded == "" {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}

// ExtractUserCredentials は"email:password"形式から資格情報を取り出す。
// パスワードには":"を含めることができる。
func ExtractUserCredentials(decoded string) (email, password string, ok bool) {
	return strings.Cut(decoded, ":")
}

// BasicAuth はAuthorizationヘッダーのBasic認証で利用者を特定する。
type BasicAuth struct {
	users  repository.UserRepository
	hasher Hasher
}

// NewBasicAuth はBasicAuthを生成する。
func NewBasicAuth(users repository.UserRepository, hasher Hasher) *BasicAuth {
	return &BasicAuth{users: users, hasher: hasher}
}

// UserObjectFromCredentials はメールアドレスとパスワードが一致するユーザーを返す。
// 一致しない場合はnilを返す。
func (b *BasicAuth) UserObjectFromCredentials(ctx context.Context, email, password string) (*model.User, error) {
	user, err := b.users.FindUserBy(ctx, repository.Criteria{model.ColumnEmail: email})
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !b.hasher.Verify(password, user.HashedPassword) {
		return nil, nil
	}
	return user, nil
}

// HasCredentials はAuthorizationヘッダーが存在するかを返す。
func (b *BasicAuth) HasCredentials(r *http.Request) bool {
	return r.Header.Get("Authorization") != ""
}

// CurrentUser はAuthorizationヘッダーから利用者を特定する。
func (b *BasicAuth) CurrentUser(r *http.Request) (*model.User, error) {
	encoded := ExtractBase64AuthorizationHeader(r.Header.Get("Authorization"))
	if encoded == "" {
		return nil, nil
	}
	decoded, ok := DecodeBase64AuthorizationHeader(encoded)
	if !ok {
		return nil, nil
	}
	email, password, ok := ExtractUserCredentials(decoded)
	if !ok {
		return nil, nil
	}
	return b.UserObjectFromCredentials(r.Context(), email, password)
}

// SessionAuth はセッションCookieで利用者を特定する。
type SessionAuth struct {
	service    *Service
	cookieName string
}

// NewSessionAuth はSessionAuthを生成する。
func NewSessionAuth(service *Service, cookieName string) *SessionAuth {
	return &SessionAuth{service: service, cookieName: cookieName}
}

// HasCredentials はセッションCookieが存在するかを返す。
func (a *SessionAuth) HasCredentials(r *http.Request) bool {
	c, err := r.Cookie(a.cookieName)
	return err == nil && c.Value != ""
}

// CurrentUser はセッションCookieに対応するユーザーを返す。
func (a *SessionAuth) CurrentUser(r *http.Request) (*model.User, error) {
	c, err := r.Cookie(a.cookieName)
	if err != nil {
		return nil, nil
	}
	return a.service.GetUserFromSessionID(r.Context(), c.Value)
}

var (
	_ RequestAuthenticator = (*BasicAuth)(nil)
	_ RequestAuthenticator = (*SessionAuth)(nil)
)
