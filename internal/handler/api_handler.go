package handler

import (
	"net/http"

	"github.com/hitoshi/userauth/internal/middleware"
	"github.com/hitoshi/userauth/internal/model"
)

// APIExcludedPaths は/api/v1配下で認証を必要としないパス。
var APIExcludedPaths = []string{
	"/api/v1/status/",
	"/api/v1/unauthorized/",
	"/api/v1/forbidden/",
}

// APIHandler は/api/v1配下のHTTPハンドラー。
type APIHandler struct{}

// NewAPIHandler はAPIHandlerを生成する。
func NewAPIHandler() *APIHandler {
	return &APIHandler{}
}

type statusResponse struct {
	Status string `json:"status"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Status はAPIの稼働状態を返す。
// GET /api/v1/status
func (h *APIHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "OK"})
}

// Unauthorized は常に401を返す。
// GET /api/v1/unauthorized
func (h *APIHandler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// Forbidden は常に403を返す。
// GET /api/v1/forbidden
func (h *APIHandler) Forbidden(w http.ResponseWriter, r *http.Request) {
	middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
}

// Me は認証済みユーザーの情報を返す。
// GET /api/v1/users/me
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email})
}
