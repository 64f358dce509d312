// auth.go — JWT middleware для аутентификации и авторизации вызывающих /api/users.
// Валидирует подпись Keycloak JWT через JWKS realm, извлекает claims,
// вычисляет роли = realm_access.roles ∪ роли из групп (BR_GROUP_ROLES).
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/itm-space/backend-resources/internal/api/errors"
	"github.com/itm-space/backend-resources/internal/domain/rbac"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"

	contextKeyClaimsHolder contextKey = "jwt_claims_holder"
)

// claimsHolder передаёт claims внешним middleware (RequestLogger),
// которые выполняются до аутентификации.
type claimsHolder struct {
	claims *AuthClaims
}

func withClaimsHolder(ctx context.Context, h *claimsHolder) context.Context {
	return context.WithValue(ctx, contextKeyClaimsHolder, h)
}

// AuthClaims — извлечённые и обработанные claims из Keycloak JWT.
// Помещаются в контекст запроса для downstream handlers.
type AuthClaims struct {
	// Subject — sub из JWT (Keycloak user ID).
	Subject string
	// PreferredUsername — preferred_username из JWT.
	PreferredUsername string
	// Email — email из JWT.
	Email string
	// RealmRoles — роли из realm_access.roles как есть.
	RealmRoles []string
	// Groups — группы из JWT.
	Groups []string
	// Roles — нормализованные роли: realm-роли и роли из групп.
	Roles []string
}

// HasAnyRole проверяет наличие хотя бы одной из указанных ролей.
// Префикс ROLE_ и регистр игнорируются.
func (c *AuthClaims) HasAnyRole(roles ...string) bool {
	return rbac.HasAnyRole(c.Roles, roles...)
}

// keycloakClaims — raw claims из Keycloak JWT для парсинга.
type keycloakClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string       `json:"preferred_username"`
	Email             string       `json:"email"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
	Groups            []string     `json:"groups,omitempty"`
}

// realmAccess — вложенная структура realm_access в Keycloak JWT.
type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth — middleware для JWT-аутентификации через JWKS Keycloak.
type JWTAuth struct {
	jwks       keyfunc.Keyfunc
	logger     *slog.Logger
	groupRoles map[string]string
	issuer     string
	jwtLeeway  time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS из Keycloak.
// jwksURL — URL к JWKS endpoint Keycloak.
// caCertPath — опциональный путь к CA-сертификату для TLS.
// issuer — ожидаемый issuer JWT (обычно https://keycloak/realms/itm).
// groupRoles — маппинг группа → роль (BR_GROUP_ROLES).
// jwksClientTimeout — таймаут HTTP-клиента JWKS (BR_JWKS_CLIENT_TIMEOUT).
// jwksRefreshInterval — интервал обновления JWKS-ключей (BR_JWKS_REFRESH_INTERVAL).
// jwtLeeway — допустимое отклонение времени при проверке JWT (BR_JWT_LEEWAY).
func NewJWTAuth(
	jwksURL string,
	caCertPath string,
	issuer string,
	groupRoles map[string]string,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	httpClient, err := HTTPClientWithCA(caCertPath, jwksClientTimeout)
	if err != nil {
		return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
	}
	if caCertPath != "" {
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	// JWKS Storage с фоновым обновлением.
	// NoErrorReturnFirstHTTPReq — стартуем даже если Keycloak ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &JWTAuth{
		jwks:       k,
		logger:     logger.With(slog.String("component", "jwt_auth")),
		groupRoles: groupRoles,
		issuer:     issuer,
		jwtLeeway:  jwtLeeway,
	}, nil
}

// HTTPClientWithCA создаёт HTTP-клиент с таймаутом и, если задан caCertPath,
// с дополнительным CA-сертификатом в пуле доверия.
// Используется для JWKS, readiness и Keycloak Admin API.
func HTTPClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	if caCertPath == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("файл %s не содержит PEM-сертификатов", caCertPath)
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	groupRoles map[string]string,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		jwks:       kf,
		logger:     logger.With(slog.String("component", "jwt_auth")),
		groupRoles: groupRoles,
		issuer:     issuer,
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись (RS256), извлекает claims,
// вычисляет роли и помещает AuthClaims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			rawClaims := &keycloakClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, rawClaims, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			if !token.Valid {
				apierrors.Unauthorized(w, "Невалидный токен")
				return
			}

			subject, err := rawClaims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			claims := j.buildAuthClaims(rawClaims)
			if h, ok := r.Context().Value(contextKeyClaimsHolder).(*claimsHolder); ok {
				h.claims = claims
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// buildAuthClaims формирует AuthClaims из raw Keycloak claims.
func (j *JWTAuth) buildAuthClaims(raw *keycloakClaims) *AuthClaims {
	claims := &AuthClaims{
		Subject:           raw.Subject,
		PreferredUsername: raw.PreferredUsername,
		Email:             raw.Email,
		Groups:            raw.Groups,
	}

	if raw.RealmAccess != nil {
		claims.RealmRoles = raw.RealmAccess.Roles
	}

	claims.Roles = rbac.EffectiveRoles(claims.RealmRoles, claims.Groups, j.groupRoles)

	return claims
}

// --- RBAC middleware ---

// RequireRole возвращает middleware, требующий одну из указанных ролей.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			if !claims.HasAnyRole(roles...) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(roles, " или ")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// WithClaims помещает AuthClaims в контекст.
func WithClaims(ctx context.Context, claims *AuthClaims) context.Context {
	return context.WithValue(ctx, ContextKeyClaims, claims)
}

// UsernameFromContext возвращает preferred_username вызывающего.
// Возвращает пустую строку, если claims не найдены.
func UsernameFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.PreferredUsername
}

// --- ReadinessChecker для JWKS ---

// JWKSReadinessChecker — проверка доступности JWKS endpoint Keycloak.
// Без JWKS невозможно проверить ни один входящий токен.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности JWKS.
// readinessTimeout — таймаут проверки готовности (BR_KEYCLOAK_READINESS_TIMEOUT).
func NewJWKSReadinessChecker(jwksURL, caCertPath string, readinessTimeout time.Duration) (*JWKSReadinessChecker, error) {
	client, err := HTTPClientWithCA(caCertPath, readinessTimeout)
	if err != nil {
		return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
	}

	return &JWKSReadinessChecker{
		jwksURL: jwksURL,
		client:  client,
	}, nil
}

const statusFail = "fail"

// CheckReady проверяет доступность JWKS endpoint Keycloak.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // G704: URL из конфигурации Keycloak
	if err != nil {
		return statusFail, fmt.Sprintf("Keycloak JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("Keycloak JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("Keycloak JWKS: невалидный JSON: %v", err)
	}

	if len(jwksResp.Keys) == 0 {
		return "degraded", "Keycloak JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
