// Package validator checks fetched recommendation documents against the
// embedded JSON Schema. Every violation found is reported in one pass, and
// the outcome is a Result that is either Valid or Invalid.
package validator

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
)

//go:embed document.schema.json
var documentSchema string

// RootField is the field path used for violations that concern the whole
// document, such as malformed JSON.
const RootField = "(root)"

// Result is the outcome of validating one raw document. It is implemented
// only by Valid and Invalid.
type Result interface {
	isResult()
}

// Valid carries the typed document decoded from schema-conformant bytes.
type Valid struct {
	Document reco.Document
}

// Invalid carries every violation found in the rejected bytes.
type Invalid struct {
	Violations []reco.Violation
}

func (Valid) isResult()   {}
func (Invalid) isResult() {}

// Validator holds the compiled document schema. It is safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

// New compiles the embedded document schema.
func New() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling document schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate parses raw and checks it against the schema.
func (v *Validator) Validate(raw []byte) Result {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return rootViolation("malformed JSON: %v", err)
	}

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(parsed))
	if err != nil {
		return rootViolation("schema check failed: %v", err)
	}
	if !result.Valid() {
		violations := make([]reco.Violation, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			violations = append(violations, reco.Violation{
				Field:  fieldPath(desc),
				Reason: desc.Description(),
			})
		}
		sort.SliceStable(violations, func(i, j int) bool {
			if violations[i].Field != violations[j].Field {
				return violations[i].Field < violations[j].Field
			}
			return violations[i].Reason < violations[j].Reason
		})
		return Invalid{Violations: violations}
	}

	var doc reco.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return rootViolation("decoding document: %v", err)
	}
	if doc.Recommendations == nil {
		doc.Recommendations = []reco.Recommendation{}
	}
	return Valid{Document: doc}
}

func rootViolation(format string, args ...any) Invalid {
	return Invalid{Violations: []reco.Violation{{
		Field:  RootField,
		Reason: fmt.Sprintf(format, args...),
	}}}
}

// fieldPath names the offending field. Required-property errors are reported
// against their parent, so the missing property is appended.
func fieldPath(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() != "required" {
		return field
	}
	prop, ok := desc.Details()["property"].(string)
	if !ok {
		return field
	}
	if field == "" || field == RootField || field == prop {
		return prop
	}
	if strings.HasSuffix(field, "."+prop) {
		return field
	}
	return field + "." + prop
}
