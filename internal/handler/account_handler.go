package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/credgate/internal/model"
)

// AccountServiceInterface はアカウント管理ハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Create(ctx context.Context, username, secret string, attrs model.AttributeSet) (*model.Identity, error)
	List(ctx context.Context) ([]*model.Identity, error)
	Update(ctx context.Context, id int64, update model.AccountUpdate) (*model.Identity, error)
	// Delete はアカウントと、そのアカウントの全リフレッシュハンドルを削除する。
	Delete(ctx context.Context, id int64) error
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// createAccountRequest はアカウント登録リクエストのボディ。
// attributesは文字列配列、または "role=user,team=devops" 形式の文字列を受け付ける。
type createAccountRequest struct {
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	Attributes json.RawMessage `json:"attributes"`
}

// updateAccountRequest はアカウント更新リクエストのボディ。
// 省略したフィールドは変更しない。attributesのnullは空集合に置き換える。
type updateAccountRequest struct {
	Username   *string         `json:"username"`
	Attributes json.RawMessage `json:"attributes"`
}

// accountResponse はアカウント情報のAPIレスポンス。シークレット検証子は含めない。
type accountResponse struct {
	ID         int64              `json:"id"`
	Username   string             `json:"username"`
	Attributes model.AttributeSet `json:"attributes"`
	CreatedAt  time.Time          `json:"created_at"`
}

// List は登録済みアカウントの一覧を返す。
// GET /api/accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	identities, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]accountResponse, len(identities))
	for i, identity := range identities {
		resp[i] = toAccountResponse(identity)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はアカウントを登録する。
// POST /api/accounts
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("username と password は必須です"))
		return
	}

	attrs, err := parseAttributesField(req.Attributes)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
		return
	}

	identity, err := h.service.Create(r.Context(), username, req.Password, attrs)
	if err != nil {
		if errors.Is(err, model.ErrAccountExists) {
			writeAPIErrorResponse(w, http.StatusConflict, model.NewAccountExistsError(username))
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(identity))
}

// Update はアカウントのユーザー名と属性を更新する。
// PATCH /api/accounts/{id}
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAccountID(w, r)
	if !ok {
		return
	}

	var req updateAccountRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	var update model.AccountUpdate
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if username == "" {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("username は空にできません"))
			return
		}
		update.Username = &username
	}
	if len(req.Attributes) > 0 {
		attrs, err := parseAttributesField(req.Attributes)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
			return
		}
		update.Attributes = &attrs
	}
	if update.Username == nil && update.Attributes == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("username または attributes を指定してください"))
		return
	}

	identity, err := h.service.Update(r.Context(), id, update)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrAccountNotFound):
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewAccountNotFoundError(id))
		case errors.Is(err, model.ErrAccountExists) && update.Username != nil:
			writeAPIErrorResponse(w, http.StatusConflict, model.NewAccountExistsError(*update.Username))
		default:
			handleServiceError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(identity))
}

// Delete はアカウントを削除する。
// DELETE /api/accounts/{id}
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAccountID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewAccountNotFoundError(id))
			return
		}
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetupAccountRoutes はアカウント管理のルーティングを設定したchi.Routerを返す。
func SetupAccountRoutes(service AccountServiceInterface) http.Handler {
	r := chi.NewRouter()
	registerAccountRoutes(r, NewAccountHandler(service))
	return r
}

func registerAccountRoutes(r chi.Router, h *AccountHandler) {
	r.Route("/api/accounts", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Patch("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// parseAttributesField はattributesフィールドを属性集合に変換する。
// 未指定とnullは空集合として扱う。
func parseAttributesField(raw json.RawMessage) (model.AttributeSet, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return model.AttributeSet{}, nil
	}

	var list string
	if err := json.Unmarshal(raw, &list); err == nil {
		return model.ParseAttributeList(list)
	}

	var set model.AttributeSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, err
	}
	return set, nil
}

// parseAccountID はパスの{id}を解析する。不正な場合は400を書き込み、falseを返す。
func parseAccountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("アカウントIDが不正です"))
		return 0, false
	}
	return id, true
}

func toAccountResponse(identity *model.Identity) accountResponse {
	return accountResponse{
		ID:         identity.ID,
		Username:   identity.Username,
		Attributes: identity.Attributes,
		CreatedAt:  identity.CreatedAt,
	}
}
