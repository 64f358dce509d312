package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockKeycloak создаёт mock HTTP-сервер Keycloak.
// tokenHandler обрабатывает запросы на получение токена.
// adminHandler обрабатывает запросы к Admin REST API.
func setupMockKeycloak(t *testing.T, tokenHandler, adminHandler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/realms/itm/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenHandler != nil {
			tokenHandler(w, r)
			return
		}
		// Дефолтный ответ: валидный токен на 300 секунд
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TokenResponse{
			AccessToken: "test-access-token",
			TokenType:   "Bearer",
			ExpiresIn:   300,
		})
	})

	adminAPI := func(w http.ResponseWriter, r *http.Request) {
		if adminHandler != nil {
			adminHandler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}
	mux.HandleFunc("/admin/realms/itm", adminAPI)
	mux.HandleFunc("/admin/realms/itm/", adminAPI)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := New(
		server.URL,
		"itm",
		"backend-resources",
		"test-secret",
		server.Client(),
		testLogger(),
	)

	return server, client
}

// TestClient_TokenCaching проверяет кэширование токена.
func TestClient_TokenCaching(t *testing.T) {
	tokenRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "cached-token",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	ctx := context.Background()

	token1, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}
	if token1 != "cached-token" {
		t.Errorf("ожидался cached-token, получен %s", token1)
	}

	// Второй запрос — из кэша (не должен вызывать HTTP)
	token2, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}
	if token2 != "cached-token" {
		t.Errorf("ожидался cached-token, получен %s", token2)
	}

	if tokenRequests != 1 {
		t.Errorf("ожидался 1 запрос токена, было %d", tokenRequests)
	}
}

// TestClient_TokenRefreshBefore30s проверяет обновление за 30 секунд до истечения.
func TestClient_TokenRefreshBefore30s(t *testing.T) {
	tokenRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "new-token",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	// Токен истекает через 20 секунд — должен обновиться (< 30s)
	client.accessToken = "expiring-token"
	client.tokenExpiry = time.Now().Add(20 * time.Second)

	token, err := client.getToken(context.Background())
	if err != nil {
		t.Fatalf("Ошибка обновления токена: %v", err)
	}
	if token != "new-token" {
		t.Errorf("ожидался new-token, получен %s", token)
	}
	if tokenRequests != 1 {
		t.Errorf("ожидался 1 запрос токена, было %d", tokenRequests)
	}
}

// TestClient_ClientCredentialsFlow проверяет формат запроса Client Credentials.
func TestClient_ClientCredentialsFlow(t *testing.T) {
	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("ожидался POST, получен %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
				t.Errorf("ожидался Content-Type application/x-www-form-urlencoded, получен %s", ct)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatalf("Ошибка парсинга формы: %v", err)
			}
			if r.Form.Get("grant_type") != "client_credentials" {
				t.Errorf("ожидался grant_type=client_credentials, получен %s", r.Form.Get("grant_type"))
			}
			if r.Form.Get("client_id") != "backend-resources" {
				t.Errorf("ожидался client_id=backend-resources, получен %s", r.Form.Get("client_id"))
			}
			if r.Form.Get("client_secret") != "test-secret" {
				t.Errorf("ожидался client_secret=test-secret, получен %s", r.Form.Get("client_secret"))
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{AccessToken: "ok", TokenType: "Bearer", ExpiresIn: 300})
		},
		nil,
	)

	if _, err := client.getToken(context.Background()); err != nil {
		t.Fatalf("Ошибка: %v", err)
	}
}

// TestClient_TokenError проверяет, что ошибка token endpoint не превращается в APIError.
func TestClient_TokenError(t *testing.T) {
	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_client"}`))
		},
		nil,
	)

	_, err := client.GetUser(context.Background(), "user-1")
	if err == nil {
		t.Fatal("ожидалась ошибка, получен nil")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("ожидалась ошибка со статусом 401, получена: %v", err)
	}
	if _, ok := AsAPIError(err); ok {
		t.Error("ошибка токена не должна быть APIError")
	}
}

// TestClient_CreateUser проверяет тело запроса и извлечение ID из Location.
func TestClient_CreateUser(t *testing.T) {
	calls := 0

	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/users") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			calls++

			if auth := r.Header.Get("Authorization"); auth != "Bearer test-access-token" {
				t.Errorf("ожидался Bearer test-access-token, получен %s", auth)
			}

			var user UserRepresentation
			if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
				t.Fatalf("Ошибка декодирования: %v", err)
			}
			if user.Username != "mike" || user.Email != "test@email.com" {
				t.Errorf("неожиданный пользователь: %+v", user)
			}
			if !user.Enabled {
				t.Error("ожидался enabled=true")
			}
			if len(user.Credentials) != 1 || user.Credentials[0].Value != "password" || user.Credentials[0].Temporary {
				t.Errorf("неожиданные credentials: %+v", user.Credentials)
			}

			w.Header().Set("Location", "https://keycloak/admin/realms/itm/users/kc-user-id")
			w.WriteHeader(http.StatusCreated)
		},
	)

	id, err := client.CreateUser(context.Background(), &UserRepresentation{
		Username: "mike",
		Email:    "test@email.com",
		Enabled:  true,
		Credentials: []CredentialRepresentation{
			{Type: CredentialTypePassword, Value: "password"},
		},
	})
	if err != nil {
		t.Fatalf("Ошибка CreateUser: %v", err)
	}
	if id != "kc-user-id" {
		t.Errorf("ожидался ID=kc-user-id, получен %s", id)
	}
	if calls != 1 {
		t.Errorf("ожидался 1 вызов создания, было %d", calls)
	}
}

// TestClient_CreateUserConflict проверяет APIError с сообщением Keycloak.
func TestClient_CreateUserConflict(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"errorMessage":"User exists with same username"}`))
		},
	)

	_, err := client.CreateUser(context.Background(), &UserRepresentation{Username: "mike"})
	if err == nil {
		t.Fatal("ожидалась ошибка, получен nil")
	}

	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("ожидалась APIError, получена %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("ожидался статус 409, получен %d", apiErr.StatusCode)
	}
	if apiErr.Message != "User exists with same username" {
		t.Errorf("неожиданное сообщение: %q", apiErr.Message)
	}
}

// TestClient_CreateUserMissingLocation — 201 без Location: ID ищется по username.
func TestClient_CreateUserMissingLocation(t *testing.T) {
	var searchQuery string
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost:
				w.WriteHeader(http.StatusCreated)
			case http.MethodGet:
				searchQuery = r.URL.RawQuery
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode([]UserRepresentation{
					{ID: "other-1", Username: "mike2"},
					{ID: "user-456", Username: "mike"},
				})
			}
		},
	)

	id, err := client.CreateUser(context.Background(), &UserRepresentation{Username: "mike"})
	if err != nil {
		t.Fatalf("ошибка CreateUser: %v", err)
	}
	if id != "user-456" {
		t.Errorf("ожидался ID 'user-456', получен %q", id)
	}
	if !strings.Contains(searchQuery, "username=mike") || !strings.Contains(searchQuery, "exact=true") {
		t.Errorf("неожиданный запрос поиска: %q", searchQuery)
	}
}

// TestClient_CreateUserMissingLocationNotFound — ID не определён, но создание успешно.
func TestClient_CreateUserMissingLocationNotFound(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				w.Header().Set("Location", "http://keycloak/admin/realms/itm/users/")
				w.WriteHeader(http.StatusCreated)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("[]"))
		},
	)

	id, err := client.CreateUser(context.Background(), &UserRepresentation{Username: "mike"})
	if err != nil {
		t.Fatalf("2xx не должен возвращать ошибку: %v", err)
	}
	if id != "" {
		t.Errorf("ожидался пустой ID, получен %q", id)
	}
}

// TestClient_GetUser проверяет GetUser.
func TestClient_GetUser(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/users/user-123") {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(UserRepresentation{
					ID:        "user-123",
					Username:  "mike",
					Email:     "mike@test.com",
					FirstName: "Mike",
					LastName:  "Smith",
					Enabled:   true,
				})
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	user, err := client.GetUser(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("Ошибка GetUser: %v", err)
	}
	if user.ID != "user-123" || user.FirstName != "Mike" {
		t.Errorf("неожиданный пользователь: %+v", user)
	}
}

// TestClient_GetUserNotFound проверяет APIError 404.
func TestClient_GetUserNotFound(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"User not found"}`))
		},
	)

	_, err := client.GetUser(context.Background(), "missing")
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("ожидалась APIError, получена: %v", err)
	}
	if !apiErr.IsNotFound() {
		t.Errorf("ожидался 404, получен %d", apiErr.StatusCode)
	}
	if apiErr.Message != "User not found" {
		t.Errorf("неожиданное сообщение: %q", apiErr.Message)
	}
}

// TestClient_GetUserRealmRoles проверяет порядок realm-ролей.
func TestClient_GetUserRealmRoles(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/users/user-123/role-mappings") {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{
					"realmMappings": [
						{"id": "r-1", "name": "ROLE_USER"},
						{"id": "r-2", "name": "ROLE_MODERATOR"}
					],
					"clientMappings": {"account": {"mappings": [{"name": "view-profile"}]}}
				}`))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	roles, err := client.GetUserRealmRoles(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("Ошибка GetUserRealmRoles: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("ожидалось 2 роли, получено %d", len(roles))
	}
	if roles[0].Name != "ROLE_USER" || roles[1].Name != "ROLE_MODERATOR" {
		t.Errorf("неожиданный порядок ролей: %+v", roles)
	}
}

// TestClient_GetUserGroups проверяет GetUserGroups.
func TestClient_GetUserGroups(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/users/user-123/groups") {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode([]GroupRepresentation{
					{ID: "g-1", Name: "moderators", Path: "/moderators"},
				})
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	groups, err := client.GetUserGroups(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("Ошибка GetUserGroups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("ожидалась 1 группа, получено %d", len(groups))
	}
	if groups[0].Name != "moderators" {
		t.Errorf("ожидалось имя moderators, получено %s", groups[0].Name)
	}
}

// TestClient_TransportError проверяет ошибку соединения.
func TestClient_TransportError(t *testing.T) {
	server, client := setupMockKeycloak(t, nil, nil)
	// Получаем токен заранее, затем останавливаем сервер
	if _, err := client.getToken(context.Background()); err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}
	server.Close()

	_, err := client.GetUser(context.Background(), "user-1")
	if err == nil {
		t.Fatal("ожидалась ошибка транспорта")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Error("ошибка транспорта не должна быть APIError")
	}
}

// TestReadinessChecker проверяет статусы готовности Keycloak.
func TestReadinessChecker(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		expected string
	}{
		{
			name: "realm доступен",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(RealmRepresentation{Realm: "itm", Enabled: true})
			},
			expected: "ok",
		},
		{
			name: "realm отключён",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(RealmRepresentation{Realm: "itm", Enabled: false})
			},
			expected: "degraded",
		},
		{
			name: "ошибка Keycloak",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			expected: "fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := setupMockKeycloak(t, nil, tt.handler)
			status, msg := NewReadinessChecker(client, 2*time.Second).CheckReady()
			if status != tt.expected {
				t.Errorf("ожидался статус %s, получен %s (%s)", tt.expected, status, msg)
			}
		})
	}
}
