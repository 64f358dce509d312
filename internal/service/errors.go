// errors.go — ошибки сервисного слоя.
package service

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrValidation — ошибка валидации входных данных.
var ErrValidation = errors.New("ошибка валидации")

// BackendError — ошибка операции с пользователями.
// Status — HTTP-статус, с которым ошибка отдаётся клиенту.
type BackendError struct {
	Message string
	Status  int
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// newBackendError создаёт BackendError. Статус вне диапазона 4xx/5xx заменяется на 500.
func newBackendError(status int, message string, err error) *BackendError {
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}
	return &BackendError{Message: message, Status: status, Err: err}
}

// AsBackendError извлекает BackendError из цепочки ошибок.
func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
