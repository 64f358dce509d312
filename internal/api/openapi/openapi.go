// Пакет openapi — встроенный OpenAPI-контракт HTTP API backend-resources.
package openapi

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var contract []byte

// Raw возвращает исходный YAML контракта.
func Raw() []byte {
	return contract
}

// Load разбирает и валидирует встроенный контракт.
// Servers сбрасываются: маршрутизация по контракту не должна зависеть от хоста.
func Load() (*openapi3.T, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromData(contract)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI контракта: %w", err)
	}

	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("валидация OpenAPI контракта: %w", err)
	}

	doc.Servers = nil

	return doc, nil
}
