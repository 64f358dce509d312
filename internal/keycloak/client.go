// client.go — HTTP-клиент к Keycloak Admin REST API.
// Реализует автоматическое получение service account token через Client Credentials flow,
// кэширование токена (обновление за 30s до expiration).
// Операции: CreateUser, GetUser, GetUserRealmRoles, GetUserGroups, RealmInfo.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики обращений к Keycloak Admin API.
var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "br_keycloak_requests_total",
			Help: "Количество запросов к Keycloak Admin API",
		},
		[]string{"operation", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "br_keycloak_request_duration_seconds",
			Help:    "Длительность запросов к Keycloak Admin API в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Client — HTTP-клиент к Keycloak Admin REST API.
type Client struct {
	baseURL      string // Базовый URL Keycloak (без trailing slash)
	realm        string // Имя realm
	clientID     string // Client ID для Client Credentials flow
	clientSecret string // Client Secret

	httpClient *http.Client
	logger     *slog.Logger

	// Кэш токена доступа
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New создаёт клиент к Keycloak Admin REST API.
// baseURL — базовый URL Keycloak (например, https://keycloak.itm.lan).
// realm — имя realm.
// clientID, clientSecret — credentials для Client Credentials flow.
// httpClient — HTTP-клиент (может содержать TLS конфигурацию), nil — клиент по умолчанию.
func New(baseURL, realm, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger.With(slog.String("component", "keycloak_client")),
	}
}

// --- Аутентификация ---

func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, url.PathEscape(c.realm))
}

func (c *Client) adminBaseURL() string {
	return fmt.Sprintf("%s/admin/realms/%s", c.baseURL, url.PathEscape(c.realm))
}

// getToken возвращает актуальный access token, обновляя при необходимости.
// Токен обновляется за 30 секунд до истечения.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("Keycloak токен обновлён",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// requestToken выполняет Client Credentials flow.
func (c *Client) requestToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена Keycloak: %w", err)
	}
	defer resp.Body.Close()

	// Намеренно не APIError: статус token endpoint не должен попадать к клиентам сервиса
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Keycloak вернул статус %d при запросе токена: %s", resp.StatusCode, string(body))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена Keycloak: %w", err)
	}

	return &token, nil
}

// --- HTTP helpers ---

// doAuthorized выполняет HTTP-запрос к Admin REST API с авторизацией.
// operation — имя операции для метрик и ошибок.
func (c *Client) doAuthorized(ctx context.Context, operation, method, path string, body any) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		requestsTotal.WithLabelValues(operation, "token_error").Inc()
		return nil, fmt.Errorf("получение токена: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.adminBaseURL()+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(operation, "transport_error").Inc()
		return nil, fmt.Errorf("%s: запрос к Keycloak: %w", operation, err)
	}
	requestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	return resp, nil
}

// decodeResponse декодирует JSON ответ в target.
func decodeResponse(operation string, resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(operation, resp)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("%s: декодирование ответа Keycloak: %w", operation, err)
		}
	}

	return nil
}

// --- Users API ---

// CreateUser создаёт пользователя в realm.
// Возвращает Keycloak ID созданного пользователя (из Location header).
// Любой 2xx — успех: если ID не удалось извлечь из Location, он ищется по username;
// если и поиск не удался, возвращается пустой ID без ошибки.
func (c *Client) CreateUser(ctx context.Context, user *UserRepresentation) (string, error) {
	const op = "CreateUser"

	resp, err := c.doAuthorized(ctx, op, http.MethodPost, "/users", user)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newAPIError(op, resp)
	}

	// Keycloak возвращает Location header с ID созданного ресурса: .../users/{id}
	location := resp.Header.Get("Location")
	if id := location[strings.LastIndex(location, "/")+1:]; id != "" {
		return id, nil
	}

	id, err := c.FindUserIDByUsername(ctx, user.Username)
	if err != nil {
		c.logger.Warn("Пользователь создан, но ID не определён",
			slog.String("username", user.Username),
			slog.String("location", location),
			slog.String("error", err.Error()),
		)
		return "", nil
	}

	return id, nil
}

// FindUserIDByUsername ищет ID пользователя по точному совпадению username.
func (c *Client) FindUserIDByUsername(ctx context.Context, username string) (string, error) {
	const op = "FindUserByUsername"

	query := url.Values{}
	query.Set("username", username)
	query.Set("exact", "true")

	resp, err := c.doAuthorized(ctx, op, http.MethodGet, "/users?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	var users []UserRepresentation
	if err := decodeResponse(op, resp, &users); err != nil {
		return "", err
	}

	for _, u := range users {
		if strings.EqualFold(u.Username, username) && u.ID != "" {
			return u.ID, nil
		}
	}

	return "", fmt.Errorf("%s: пользователь %s не найден", op, username)
}

// GetUser возвращает пользователя по Keycloak ID.
func (c *Client) GetUser(ctx context.Context, id string) (*UserRepresentation, error) {
	const op = "GetUser"

	resp, err := c.doAuthorized(ctx, op, http.MethodGet, "/users/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var user UserRepresentation
	if err := decodeResponse(op, resp, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// GetUserRealmRoles возвращает realm-роли пользователя (role-mappings → realmMappings).
// Порядок ролей сохраняется таким, каким его вернул Keycloak.
func (c *Client) GetUserRealmRoles(ctx context.Context, userID string) ([]RoleRepresentation, error) {
	const op = "GetUserRealmRoles"

	resp, err := c.doAuthorized(ctx, op, http.MethodGet, "/users/"+url.PathEscape(userID)+"/role-mappings", nil)
	if err != nil {
		return nil, err
	}

	var mappings MappingsRepresentation
	if err := decodeResponse(op, resp, &mappings); err != nil {
		return nil, err
	}

	return mappings.RealmMappings, nil
}

// GetUserGroups возвращает группы пользователя.
func (c *Client) GetUserGroups(ctx context.Context, userID string) ([]GroupRepresentation, error) {
	const op = "GetUserGroups"

	resp, err := c.doAuthorized(ctx, op, http.MethodGet, "/users/"+url.PathEscape(userID)+"/groups", nil)
	if err != nil {
		return nil, err
	}

	var groups []GroupRepresentation
	if err := decodeResponse(op, resp, &groups); err != nil {
		return nil, err
	}

	return groups, nil
}

// --- Realm API ---

// RealmInfo возвращает информацию о realm.
func (c *Client) RealmInfo(ctx context.Context) (*RealmRepresentation, error) {
	const op = "RealmInfo"

	resp, err := c.doAuthorized(ctx, op, http.MethodGet, "", nil)
	if err != nil {
		return nil, err
	}

	var realm RealmRepresentation
	if err := decodeResponse(op, resp, &realm); err != nil {
		return nil, err
	}

	return &realm, nil
}

// --- Readiness checker ---

// ReadinessChecker проверяет доступность realm через Admin API.
// Реализует handlers.ReadinessChecker.
type ReadinessChecker struct {
	client  *Client
	timeout time.Duration
}

// NewReadinessChecker создаёт проверку готовности Keycloak.
func NewReadinessChecker(client *Client, timeout time.Duration) *ReadinessChecker {
	return &ReadinessChecker{client: client, timeout: timeout}
}

// CheckReady проверяет доступность Keycloak через realm info.
func (rc *ReadinessChecker) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), rc.timeout)
	defer cancel()

	realm, err := rc.client.RealmInfo(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("Keycloak недоступен: %v", err)
	}

	if !realm.Enabled {
		return "degraded", fmt.Sprintf("Realm %s отключён", realm.Realm)
	}

	return "ok", fmt.Sprintf("Realm %s доступен", realm.Realm)
}
