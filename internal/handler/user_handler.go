package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/talkbox/internal/middleware"
	"github.com/hitoshi/talkbox/internal/model"
)

// AccountServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// DeleteAccount はパスワードで再認証したうえで、ユーザーが所有・参照する
	// 全データと認証情報を削除し、遷移先を返す。
	// エラーは*model.APIErrorで返す。
	DeleteAccount(ctx context.Context, session *model.Session, password string) (redirectTo string, err error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service AccountServiceInterface
	config  AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service AccountServiceInterface, config AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service: service,
		config:  config,
	}
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

type deleteAccountResponse struct {
	RedirectTo string `json:"redirect_to"`
}

// clearSiteDataValue は削除完了時にブラウザに破棄させるデータ。
const clearSiteDataValue = `"cache", "cookies", "storage"`

// DeleteAccount はアカウントを削除する。
// DELETE /api/users/me
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
		return
	}

	var req deleteAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	redirectTo, err := h.service.DeleteAccount(r.Context(), session, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	clearSessionCookie(w, h.config)
	middleware.ClearCSRFCookie(w, middleware.CSRFConfig{
		CookieSecure: h.config.CookieSecure,
		CookieDomain: h.config.CookieDomain,
	})
	w.Header().Set("Clear-Site-Data", clearSiteDataValue)
	middleware.WriteJSON(w, http.StatusOK, deleteAccountResponse{RedirectTo: redirectTo})
}
