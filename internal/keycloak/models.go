// Пакет keycloak — HTTP-клиент к Keycloak Admin REST API.
// models.go — модели данных Keycloak.
package keycloak

// TokenResponse — ответ на запрос токена через Client Credentials flow.
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// UserRepresentation — пользователь в Keycloak.
type UserRepresentation struct {
	ID            string `json:"id,omitempty"`
	Username      string `json:"username"`
	Email         string `json:"email,omitempty"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Enabled       bool   `json:"enabled"`
	EmailVerified bool   `json:"emailVerified"`
	// Credentials передаются только при создании, Keycloak их не возвращает.
	Credentials []CredentialRepresentation `json:"credentials,omitempty"`
}

// CredentialRepresentation — учётные данные пользователя (пароль).
type CredentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"` //nolint:gosec // G117: пароль передаётся в Keycloak
	Temporary bool   `json:"temporary"`
}

// CredentialTypePassword — тип credentials для пароля.
const CredentialTypePassword = "password"

// RoleRepresentation — роль realm.
type RoleRepresentation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Composite   bool   `json:"composite"`
	ClientRole  bool   `json:"clientRole"`
}

// MappingsRepresentation — ответ /users/{id}/role-mappings.
// Клиентские роли не используются и не декодируются.
type MappingsRepresentation struct {
	RealmMappings []RoleRepresentation `json:"realmMappings"`
}

// GroupRepresentation — группа в Keycloak.
type GroupRepresentation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// RealmRepresentation — краткая информация о realm.
type RealmRepresentation struct {
	Realm   string `json:"realm"`
	Enabled bool   `json:"enabled"`
}

// errorRepresentation — тело ошибки Keycloak.
// Admin API использует errorMessage, token endpoint — error/error_description.
type errorRepresentation struct {
	ErrorMessage     string `json:"errorMessage"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
