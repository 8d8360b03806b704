package swagger

import (
	"context"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	httpSwagger "github.com/swaggo/http-swagger"
)

// DocPath is where the raw OpenAPI document is served.
const DocPath = "/openapi.yml"

// Load parses and validates an OpenAPI 3 document.
func Load(ctx context.Context, raw []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return doc, nil
}

// DocHandler serves the raw document as loaded at startup.
func DocHandler(raw []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		w.Write(raw)
	}
}

// Handler serves the Swagger UI pointed at DocPath.
func Handler() http.Handler {
	return httpSwagger.Handler(
		httpSwagger.URL(DocPath),
	)
}
