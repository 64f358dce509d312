// users.go — обработчики /api/users endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/itm-space/backend-resources/internal/api/errors"
	"github.com/itm-space/backend-resources/internal/api/middleware"
	"github.com/itm-space/backend-resources/internal/domain/model"
)

// maxRequestBody — ограничение размера тела запроса создания.
const maxRequestBody = 64 << 10

// CreateUser — POST /api/users.
// Создаёт пользователя в Keycloak, возвращает 201 {"id": "..."}.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.UserRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}

	id, err := h.users.CreateUser(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if id != "" {
		w.Header().Set("Location", "/api/users/"+id)
	}
	writeJSON(w, http.StatusCreated, model.CreatedUser{ID: id})
}

// GetUserByID — GET /api/users/{id}.
// Возвращает пользователя с realm-ролями и группами.
func (h *APIHandler) GetUserByID(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	user, err := h.users.GetUserByID(r.Context(), id.String())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Hello — GET /api/users/hello.
// Возвращает preferred_username вызывающего как text/plain.
func (h *APIHandler) Hello(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.users.Hello(claims)))
}
