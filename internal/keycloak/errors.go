package keycloak

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError — ответ Keycloak со статусом вне 2xx.
type APIError struct {
	// Operation — имя операции клиента (CreateUser, GetUser, ...).
	Operation string
	// StatusCode — HTTP-статус ответа Keycloak.
	StatusCode int
	// Message — сообщение Keycloak (errorMessage / error_description / тело).
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: Keycloak вернул статус %d: %s", e.Operation, e.StatusCode, e.Message)
}

// IsNotFound сообщает, что Keycloak ответил 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// AsAPIError извлекает *APIError из цепочки ошибок.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// newAPIError читает тело ответа и формирует APIError.
// Тело не закрывается — это делает вызывающий.
func newAPIError(operation string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &APIError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Message:    extractMessage(body, resp.StatusCode),
	}
}

// extractMessage достаёт человекочитаемое сообщение из тела ошибки Keycloak.
func extractMessage(body []byte, status int) string {
	var kcErr errorRepresentation
	if err := json.Unmarshal(body, &kcErr); err == nil {
		switch {
		case kcErr.ErrorMessage != "":
			return kcErr.ErrorMessage
		case kcErr.ErrorDescription != "":
			return kcErr.ErrorDescription
		case kcErr.Error != "":
			return kcErr.Error
		}
	}

	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}
