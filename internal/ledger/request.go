package ledger

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

// CreateRequest is the input to CreateCodon. The session may be given
// directly or, as older clients send it, under context.sessionId.
type CreateRequest struct {
	SessionID          string                     `json:"sessionId" validate:"required"`
	Content            string                     `json:"content" validate:"required"`
	PromptID           string                     `json:"promptId" validate:"required"`
	UserID             string                     `json:"userId,omitempty"`
	Type               string                     `json:"type,omitempty"`
	Origin             string                     `json:"origin,omitempty"`
	RiskLevel          string                     `json:"riskLevel,omitempty"`
	SemanticIndex      []string                   `json:"semanticIndex,omitempty"`
	TemporalCluster    string                     `json:"temporalCluster,omitempty"`
	ContextAttribution *models.ContextAttribution `json:"contextAttribution,omitempty"`
	RelatedNuggets     []string                   `json:"relatedNuggets,omitempty"`
	Context            *RequestContext            `json:"context,omitempty"`
}

// RequestContext is the legacy envelope carrying the session.
type RequestContext struct {
	SessionID string `json:"sessionId"`
}

type outcomeRequest struct {
	SessionID string         `json:"sessionId" validate:"required"`
	NuggetID  string         `json:"nuggetId" validate:"required"`
	Outcome   map[string]any `json:"outcome" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkRequired reports every missing required field in one error.
func checkRequired(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(fields, ", "))
}
