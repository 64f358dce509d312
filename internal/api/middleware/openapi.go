// openapi.go — валидация входящих запросов по OpenAPI-контракту (kin-openapi).
// Проверяет тело, обязательные поля и параметры до попадания в handler.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	apierrors "github.com/itm-space/backend-resources/internal/api/errors"
)

// RequestValidator возвращает middleware валидации запросов по контракту doc.
// Проверяются только запросы с префиксом pathPrefix. Запросы к путям, которых нет
// в контракте, пропускаются дальше: 404/405 отдаёт роутер.
// Аутентификация проверяется JWTAuth, поэтому security-требования контракта здесь пропускаются.
func RequestValidator(doc *openapi3.T, pathPrefix string, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("создание OpenAPI роутера: %w", err)
	}

	log := logger.With(slog.String("component", "openapi_validator"))
	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		MultiError:         false,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, pathPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed) {
					next.ServeHTTP(w, r)
					return
				}
				log.Warn("Ошибка поиска маршрута OpenAPI",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}

			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				log.Debug("Запрос не прошёл валидацию",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.ValidationError(w, validationMessage(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

// validationMessage формирует краткое описание ошибки валидации для клиента.
func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		var schemaErr *openapi3.SchemaError
		if errors.As(reqErr.Err, &schemaErr) {
			field := strings.Join(schemaErr.JSONPointer(), ".")
			if field != "" {
				return fmt.Sprintf("Поле %s: %s", field, schemaErr.Reason)
			}
			return schemaErr.Reason
		}
		if reqErr.Parameter != nil {
			return fmt.Sprintf("Параметр %s: %s", reqErr.Parameter.Name, reqErr.Reason)
		}
		if reqErr.Reason != "" {
			return reqErr.Reason
		}
	}
	return err.Error()
}
