// Пакет service — бизнес-логика backend-resources.
// users.go — операции с пользователями realm Keycloak.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/itm-space/backend-resources/internal/api/middleware"
	"github.com/itm-space/backend-resources/internal/domain/model"
	"github.com/itm-space/backend-resources/internal/keycloak"
)

// KeycloakUsers — операции Keycloak Admin API, нужные сервису.
// Реализуется *keycloak.Client.
type KeycloakUsers interface {
	CreateUser(ctx context.Context, user *keycloak.UserRepresentation) (string, error)
	GetUser(ctx context.Context, id string) (*keycloak.UserRepresentation, error)
	GetUserRealmRoles(ctx context.Context, userID string) ([]keycloak.RoleRepresentation, error)
	GetUserGroups(ctx context.Context, userID string) ([]keycloak.GroupRepresentation, error)
}

// UserService — создание и получение пользователей через Keycloak.
// Пользователи не хранятся локально: каждый вызов уходит в Keycloak
// (кроме попаданий в кэш GetUserByID).
type UserService struct {
	kc     KeycloakUsers
	cache  *UserCache
	audit  *AuditService
	logger *slog.Logger
}

// NewUserService создаёт сервис пользователей.
// cache и audit могут быть nil.
func NewUserService(kc KeycloakUsers, cache *UserCache, audit *AuditService, logger *slog.Logger) *UserService {
	return &UserService{
		kc:     kc,
		cache:  cache,
		audit:  audit,
		logger: logger.With(slog.String("component", "user_service")),
	}
}

// CreateUser создаёт пользователя в Keycloak и возвращает его ID.
// Пользователь создаётся включённым, с постоянным паролем.
// Ошибки:
//   - незаполненные поля → BackendError 400 (ErrValidation);
//   - ответ Keycloak вне 2xx → BackendError со статусом и сообщением Keycloak,
//     401/403/404 от Keycloak → 502;
//   - транспорт или токен → BackendError 500.
func (s *UserService) CreateUser(ctx context.Context, req *model.UserRequest) (string, error) {
	id, err := s.createUser(ctx, req)

	entry := &model.AuditEntry{
		Action: model.AuditActionCreateUser,
		Actor:  middleware.UsernameFromContext(ctx),
		Target: req.Username,
		Status: http.StatusCreated,
	}
	if be, ok := AsBackendError(err); ok {
		entry.Status = be.Status
		entry.Message = be.Message
	}
	s.audit.Record(ctx, entry)

	return id, err
}

func (s *UserService) createUser(ctx context.Context, req *model.UserRequest) (string, error) {
	if missing := req.MissingFields(); len(missing) > 0 {
		return "", newBackendError(http.StatusBadRequest,
			"Не заполнены обязательные поля: "+strings.Join(missing, ", "), ErrValidation)
	}

	user := &keycloak.UserRepresentation{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Enabled:   true,
		Credentials: []keycloak.CredentialRepresentation{{
			Type:      keycloak.CredentialTypePassword,
			Value:     req.Password,
			Temporary: false,
		}},
	}

	id, err := s.kc.CreateUser(ctx, user)
	if err != nil {
		if apiErr, ok := keycloak.AsAPIError(err); ok {
			s.logger.Warn("Keycloak отклонил создание пользователя",
				slog.String("username", req.Username),
				slog.Int("status", apiErr.StatusCode),
				slog.String("message", apiErr.Message),
			)
			return "", createFailure(apiErr, err)
		}

		s.logger.Error("Ошибка создания пользователя",
			slog.String("username", req.Username),
			slog.String("error", err.Error()),
		)
		return "", newBackendError(http.StatusInternalServerError, "Не удалось создать пользователя в Keycloak", err)
	}

	if id == "" {
		s.logger.Warn("Пользователь создан, ID не определён",
			slog.String("username", req.Username),
		)
		return "", nil
	}

	s.logger.Info("Пользователь создан",
		slog.String("id", id),
		slog.String("username", req.Username),
	)

	return id, nil
}

// createFailure переводит отказ Keycloak при создании в BackendError.
// 401, 403 и 404 означают проблему service account или realm, а не запроса:
// они отдаются как 502. Остальные статусы Keycloak передаются как есть.
func createFailure(apiErr *keycloak.APIError, err error) *BackendError {
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return newBackendError(http.StatusBadGateway,
			fmt.Sprintf("Keycloak отклонил запрос backend-resources (%d): %s", apiErr.StatusCode, apiErr.Message), err)
	}
	return newBackendError(apiErr.StatusCode, apiErr.Message, err)
}

// GetUserByID возвращает пользователя с realm-ролями и группами.
// Порядок ролей и групп соответствует ответам Keycloak.
// Любая ошибка Keycloak (включая 404) → BackendError 500.
func (s *UserService) GetUserByID(ctx context.Context, id string) (*model.UserResponse, error) {
	user, err := s.getUserByID(ctx, id)

	entry := &model.AuditEntry{
		Action: model.AuditActionGetUser,
		Actor:  middleware.UsernameFromContext(ctx),
		Target: id,
		Status: http.StatusOK,
	}
	if be, ok := AsBackendError(err); ok {
		entry.Status = be.Status
		entry.Message = be.Message
	}
	s.audit.Record(ctx, entry)

	return user, err
}

func (s *UserService) getUserByID(ctx context.Context, id string) (*model.UserResponse, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached, nil
	}

	kcUser, err := s.kc.GetUser(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, "получение пользователя", err)
	}

	roles, err := s.kc.GetUserRealmRoles(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, "получение ролей пользователя", err)
	}

	groups, err := s.kc.GetUserGroups(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, "получение групп пользователя", err)
	}

	resp := &model.UserResponse{
		FirstName: kcUser.FirstName,
		LastName:  kcUser.LastName,
		Email:     kcUser.Email,
		Roles:     make([]string, 0, len(roles)),
		Groups:    make([]string, 0, len(groups)),
	}
	for _, r := range roles {
		resp.Roles = append(resp.Roles, r.Name)
	}
	for _, g := range groups {
		resp.Groups = append(resp.Groups, g.Name)
	}

	s.cache.Set(id, resp)

	return resp, nil
}

// lookupError формирует BackendError 500 для ошибок чтения пользователя.
func (s *UserService) lookupError(id, step string, err error) error {
	s.logger.Error("Ошибка чтения пользователя из Keycloak",
		slog.String("id", id),
		slog.String("step", step),
		slog.String("error", err.Error()),
	)

	message := fmt.Sprintf("Ошибка Keycloak: %s", step)
	if apiErr, ok := keycloak.AsAPIError(err); ok {
		message = fmt.Sprintf("%s: %s", message, apiErr.Message)
	}
	return newBackendError(http.StatusInternalServerError, message, err)
}

// Hello возвращает имя аутентифицированного пользователя как есть.
func (s *UserService) Hello(claims *middleware.AuthClaims) string {
	if claims == nil {
		return ""
	}
	return claims.PreferredUsername
}
