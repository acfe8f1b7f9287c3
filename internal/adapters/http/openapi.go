package httpadapter

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

//go:embed openapi.yaml
var openAPIDocument []byte

var loadAPIDocument = sync.OnceValues(func() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return doc, nil
})

// requestValidator checks request bodies against component schemas of the
// embedded OpenAPI document.
type requestValidator struct {
	chatRequest *openapi3.Schema
}

func newRequestValidator() (*requestValidator, error) {
	doc, err := loadAPIDocument()
	if err != nil {
		return nil, err
	}
	ref, ok := doc.Components.Schemas["ChatRequest"]
	if !ok || ref.Value == nil {
		return nil, errors.New("openapi document has no ChatRequest schema")
	}
	return &requestValidator{chatRequest: ref.Value}, nil
}

func (v *requestValidator) validateChatRequest(raw []byte) error {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode chat request", err)
	}
	if err := v.chatRequest.VisitJSON(value); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "validate chat request", schemaErrorReason(err))
	}
	return nil
}

// schemaErrorReason drops the schema dump kin-openapi appends to its errors.
func schemaErrorReason(err error) error {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		if field := schemaErr.JSONPointer(); len(field) > 0 {
			return fmt.Errorf("%s: %s", strings.Join(field, "."), schemaErr.Reason)
		}
		return errors.New(schemaErr.Reason)
	}
	return err
}

func serveOpenAPIDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}
