// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/userauth/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// userHolderKey はロギングミドルウェアが下流で特定されたユーザーIDを受け取るためのキー。
var userHolderKey = contextKey("user_holder")

// userHolder は下流のミドルウェアで特定されたユーザーIDを保持する。
type userHolder struct {
	userID int64
}

func contextWithUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, userHolderKey, h)
}

// UserResolver はリクエストから利用者を特定する。
// auth.BasicAuth と auth.SessionAuth が実装する。
type UserResolver interface {
	HasCredentials(r *http.Request) bool
	CurrentUser(r *http.Request) (*model.User, error)
}

// PathMatcher はパスが認証を必要とするかを判定する。
type PathMatcher func(path string, excluded []string) bool

// NewRequireAuthMiddleware は認証が必要なパスで利用者を特定するミドルウェアを返す。
// 資格情報がない場合は401、利用者を特定できない場合は403を返す。
// 特定したユーザーはリクエストコンテキストに注入する。
func NewRequireAuthMiddleware(resolver UserResolver, requireAuth PathMatcher, excluded []string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireAuth(r.URL.Path, excluded) {
				next.ServeHTTP(w, r)
				return
			}

			if !resolver.HasCredentials(r) {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			user, err := resolver.CurrentUser(r)
			if err != nil {
				slog.Error("failed to resolve current user",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if user == nil {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok && user != nil
}

// ContextWithUser はコンテキストにユーザーを注入する。
// ロギングミドルウェアの配下であればユーザーIDをアクセスログにも記録する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	if h, ok := ctx.Value(userHolderKey).(*userHolder); ok && user != nil {
		h.userID = user.ID
	}
	return context.WithValue(ctx, userContextKey, user)
}
