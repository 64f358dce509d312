// Пакет model — доменные модели backend-resources.
package model

import (
	"strings"
	"time"
)

// UserRequest — данные для создания пользователя.
type UserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"` //nolint:gosec // G117: пароль нового пользователя
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// MissingFields возвращает имена незаполненных полей в порядке объявления.
func (r *UserRequest) MissingFields() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"username", r.Username},
		{"email", r.Email},
		{"password", r.Password},
		{"firstName", r.FirstName},
		{"lastName", r.LastName},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// UserResponse — пользователь Keycloak с realm-ролями и группами.
// Не хранится локально — собирается из ответов Keycloak.
type UserResponse struct {
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	Groups    []string `json:"groups"`
}

// CreatedUser — результат создания пользователя.
type CreatedUser struct {
	// ID — Keycloak ID нового пользователя
	ID string `json:"id"`
}

// Действия, фиксируемые в журнале аудита.
const (
	AuditActionCreateUser = "user.create"
	AuditActionGetUser    = "user.get"
)

// AuditEntry — запись журнала аудита операций с пользователями.
// Хранится в таблице user_audit.
type AuditEntry struct {
	// ID — UUID записи
	ID string
	// Action — user.create или user.get
	Action string
	// Actor — preferred_username вызывающего
	Actor string
	// Target — username создаваемого или ID запрошенного пользователя
	Target string
	// Status — итоговый HTTP-статус операции
	Status int
	// Message — сообщение об ошибке (пусто при успехе)
	Message string
	// CreatedAt — время записи
	CreatedAt time.Time
}
