package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key-br"

// testIssuer — issuer тестовых токенов.
const testIssuer = "https://keycloak.test/realms/itm"

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestJWTAuth создаёт JWTAuth для тестов с маппингом moderators → MODERATOR.
func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}

	return NewJWTAuthWithKeyfunc(
		kf,
		testIssuer,
		map[string]string{"moderators": "MODERATOR"},
		testLogger(),
	)
}

// generateUserToken генерирует JWT пользователя.
func generateUserToken(t *testing.T, key *rsa.PrivateKey, sub, username string, roles, groups []string, expired bool) string {
	t.Helper()

	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}

	claims := jwt.MapClaims{
		"sub":                sub,
		"preferred_username": username,
		"email":              username + "@itm.test",
		"iss":                testIssuer,
		"exp":                jwt.NewNumericDate(exp),
		"nbf":                jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}

	if len(roles) > 0 {
		claims["realm_access"] = map[string]any{"roles": roles}
	}
	if len(groups) > 0 {
		claims["groups"] = groups
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return tokenStr
}

// serveWithToken прогоняет запрос с токеном через middleware.
func serveWithToken(handler http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/users/hello", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// --- Тесты JWT Middleware ---

// TestJWTAuth_ValidUserToken — валидный JWT, claims в контексте.
func TestJWTAuth_ValidUserToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	var got *AuthClaims
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tokenStr := generateUserToken(t, key, "user-123", "moderator",
		[]string{"ROLE_USER", "offline_access"}, []string{"/moderators"}, false)

	rec := serveWithToken(handler, tokenStr)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
	if got == nil {
		t.Fatal("claims не найдены в контексте")
	}
	if got.Subject != "user-123" {
		t.Errorf("ожидался sub=user-123, получен %s", got.Subject)
	}
	if got.PreferredUsername != "moderator" {
		t.Errorf("ожидался username=moderator, получен %s", got.PreferredUsername)
	}
	if got.Email != "moderator@itm.test" {
		t.Errorf("ожидался email=moderator@itm.test, получен %s", got.Email)
	}
	want := []string{"USER", "OFFLINE_ACCESS", "MODERATOR"}
	if !slices.Equal(got.Roles, want) {
		t.Errorf("Roles = %v, ожидается %v", got.Roles, want)
	}
	if !slices.Equal(got.RealmRoles, []string{"ROLE_USER", "offline_access"}) {
		t.Errorf("RealmRoles = %v", got.RealmRoles)
	}
}

// TestJWTAuth_MissingToken — отсутствие Authorization header.
func TestJWTAuth_MissingToken(t *testing.T) {
	key := generateTestKey(t)
	handler := newTestJWTAuth(t, key).Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	if rec := serveWithToken(handler, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_ExpiredToken — просроченный токен.
func TestJWTAuth_ExpiredToken(t *testing.T) {
	key := generateTestKey(t)
	handler := newTestJWTAuth(t, key).Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	tokenStr := generateUserToken(t, key, "user-123", "moderator", nil, nil, true)

	if rec := serveWithToken(handler, tokenStr); rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_ForeignKey — токен подписан чужим ключом.
func TestJWTAuth_ForeignKey(t *testing.T) {
	key := generateTestKey(t)
	other := generateTestKey(t)
	handler := newTestJWTAuth(t, key).Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	tokenStr := generateUserToken(t, other, "user-123", "moderator", nil, nil, false)

	if rec := serveWithToken(handler, tokenStr); rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_InvalidFormat — некорректный формат Authorization.
func TestJWTAuth_InvalidFormat(t *testing.T) {
	key := generateTestKey(t)
	handler := newTestJWTAuth(t, key).Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"no bearer prefix", "token123"},
		{"empty bearer", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/hello", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
		})
	}
}

// TestJWTAuth_WrongIssuer — токен с неверным issuer.
func TestJWTAuth_WrongIssuer(t *testing.T) {
	key := generateTestKey(t)
	handler := newTestJWTAuth(t, key).Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	claims := jwt.MapClaims{
		"sub":                "user-123",
		"preferred_username": "moderator",
		"iss":                "https://other-keycloak.test/realms/other",
		"exp":                jwt.NewNumericDate(time.Now().Add(time.Hour)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	if rec := serveWithToken(handler, tokenStr); rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_GroupMapping — маппинг групп в роли.
func TestJWTAuth_GroupMapping(t *testing.T) {
	tests := []struct {
		name          string
		groups        []string
		wantModerator bool
	}{
		{"moderators по имени", []string{"moderators"}, true},
		{"moderators по пути", []string{"/moderators"}, true},
		{"без групп", nil, false},
		{"неизвестная группа", []string{"students"}, false},
	}

	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *AuthClaims
			handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClaimsFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			tokenStr := generateUserToken(t, key, "user-123", "user", nil, tt.groups, false)
			rec := serveWithToken(handler, tokenStr)

			if rec.Code != http.StatusOK {
				t.Fatalf("ожидался статус 200, получен %d", rec.Code)
			}
			if got.HasAnyRole("MODERATOR") != tt.wantModerator {
				t.Errorf("HasAnyRole(MODERATOR) = %v, ожидается %v (roles=%v)",
					!tt.wantModerator, tt.wantModerator, got.Roles)
			}
		})
	}
}

// --- Тесты RBAC middleware ---

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		claims     *AuthClaims
		wantStatus int
	}{
		{
			name:       "роль есть",
			claims:     &AuthClaims{Roles: []string{"USER", "MODERATOR"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "роли нет",
			claims:     &AuthClaims{Roles: []string{"USER"}},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "нет claims",
			claims:     nil,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole("ROLE_MODERATOR")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			ctx := context.Background()
			if tt.claims != nil {
				ctx = WithClaims(ctx, tt.claims)
			}
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("ожидался статус %d, получен %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

// --- Тесты context helpers ---

func TestClaimsFromContext_Empty(t *testing.T) {
	if claims := ClaimsFromContext(context.Background()); claims != nil {
		t.Errorf("ожидался nil, получено %+v", claims)
	}
	if name := UsernameFromContext(context.Background()); name != "" {
		t.Errorf("ожидалась пустая строка, получено %q", name)
	}
}

func TestUsernameFromContext(t *testing.T) {
	ctx := WithClaims(context.Background(), &AuthClaims{PreferredUsername: "ivan"})
	if name := UsernameFromContext(ctx); name != "ivan" {
		t.Errorf("ожидался ivan, получен %q", name)
	}
}

// --- Тесты HTTP-клиента и readiness ---

func TestHTTPClientWithCA(t *testing.T) {
	client, err := HTTPClientWithCA("", 3*time.Second)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if client.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, ожидается 3s", client.Timeout)
	}

	if _, err := HTTPClientWithCA(filepath.Join(t.TempDir(), "missing.pem"), time.Second); err == nil {
		t.Error("ожидалась ошибка для несуществующего файла")
	}

	notPEM := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(notPEM, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := HTTPClientWithCA(notPEM, time.Second); err == nil {
		t.Error("ожидалась ошибка для файла без PEM")
	}
}

func TestJWKSReadinessChecker(t *testing.T) {
	key := generateTestKey(t)
	jwks := buildJWKSetJSON(&key.PublicKey, testKeyID)

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus string
	}{
		{
			name: "ключи есть",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write(jwks)
			},
			wantStatus: "ok",
		},
		{
			name: "пустой набор ключей",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"keys":[]}`))
			},
			wantStatus: "degraded",
		},
		{
			name: "ошибка сервера",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus: "fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			checker, err := NewJWKSReadinessChecker(srv.URL, "", time.Second)
			if err != nil {
				t.Fatal(err)
			}

			status, msg := checker.CheckReady()
			if status != tt.wantStatus {
				t.Errorf("status = %q, ожидается %q (%s)", status, tt.wantStatus, msg)
			}
		})
	}
}
