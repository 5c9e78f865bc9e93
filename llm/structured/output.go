package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/BaSui01/researchflow/llm"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Schema is a reflected JSON schema plus the bits needed to validate a
// model reply against it.
type Schema struct {
	Name       string
	Raw        json.RawMessage
	required   []string
	properties map[string]string // property -> JSON type
}

var (
	schemaCache sync.Map // reflect.Type -> *Schema
	reflector   = &jsonschema.Reflector{
		Anonymous:                  true,
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: false,
	}
)

// SchemaFor reflects the JSON schema of v's type. Struct field tags
// `json` and `jsonschema` drive the output; fields without omitempty are
// required. Results are cached per type.
func SchemaFor(v any) (*Schema, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("structured output target must be a struct, got %T", v)
	}
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*Schema), nil
	}

	js := reflector.ReflectFromType(t)
	raw, err := json.Marshal(js)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", t.Name(), err)
	}

	s := &Schema{
		Name:       toSnake(t.Name()),
		Raw:        raw,
		required:   append([]string(nil), js.Required...),
		properties: make(map[string]string),
	}
	if js.Properties != nil {
		for pair := js.Properties.Oldest(); pair != nil; pair = pair.Next() {
			s.properties[pair.Key] = pair.Value.Type
		}
	}
	schemaCache.Store(t, s)
	return s, nil
}

// ValidationError lists the problems found in a model reply.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "structured output invalid: " + strings.Join(e.Problems, "; ")
}

// Validate checks that doc is a JSON object holding every required
// property with the declared JSON type.
func (s *Schema) Validate(doc string) error {
	if !gjson.Valid(doc) {
		return &ValidationError{Problems: []string{"reply is not valid JSON"}}
	}
	root := gjson.Parse(doc)
	if !root.IsObject() {
		return &ValidationError{Problems: []string{"reply is not a JSON object"}}
	}

	var problems []string
	for _, name := range s.required {
		v := root.Get(gjson.Escape(name))
		if !v.Exists() {
			problems = append(problems, fmt.Sprintf("missing required field %q", name))
			continue
		}
		if want := s.properties[name]; want != "" && !matchesType(v, want) {
			problems = append(problems, fmt.Sprintf("field %q: want %s", name, want))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func matchesType(v gjson.Result, want string) bool {
	switch want {
	case "array":
		return v.IsArray()
	case "object":
		return v.IsObject()
	case "string":
		return v.Type == gjson.String
	case "boolean":
		return v.IsBool()
	case "integer", "number":
		return v.Type == gjson.Number
	default:
		return true
	}
}

// Generator produces typed values from an llm.Provider. It always adds
// schema instructions to the prompt and, when native is enabled, also sends
// the schema as a json_schema response format.
type Generator struct {
	provider llm.Provider
	native   bool
	logger   *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithNativeSchema toggles sending response_format json_schema.
func WithNativeSchema(enabled bool) Option {
	return func(g *Generator) { g.native = enabled }
}

// WithLogger sets the generator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator creates a structured output generator.
func NewGenerator(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{provider: provider, native: true, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("component", "structured"))
	return g
}

// Provider returns the underlying provider.
func (g *Generator) Provider() llm.Provider { return g.provider }

// GenerateInto asks model for a reply matching target's schema and decodes
// it into target, which must be a pointer to a struct.
func (g *Generator) GenerateInto(ctx context.Context, model, prompt string, target any) error {
	if target == nil || reflect.TypeOf(target).Kind() != reflect.Pointer {
		return fmt.Errorf("structured output target must be a non-nil pointer, got %T", target)
	}
	schema, err := SchemaFor(target)
	if err != nil {
		return err
	}

	req := &llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: buildInstructions(schema)},
			{Role: llm.RoleUser, Content: prompt},
		},
	}
	if g.native {
		req.ResponseFormat = &llm.ResponseFormat{Type: "json_schema", Name: schema.Name, Schema: schema.Raw}
	}

	resp, err := g.provider.Completion(ctx, req)
	if err != nil {
		return err
	}
	raw, err := llm.Text(resp)
	if err != nil {
		return err
	}

	doc := ExtractJSON(raw)
	if err := schema.Validate(doc); err != nil {
		g.logger.Debug("structured reply rejected", zap.String("model", model), zap.Error(err))
		return &llm.Error{
			Code:     llm.ErrInvalidResponse,
			Message:  err.Error(),
			Provider: g.provider.Name(),
			Cause:    err,
		}
	}
	if err := json.Unmarshal([]byte(doc), target); err != nil {
		return &llm.Error{
			Code:     llm.ErrInvalidResponse,
			Message:  fmt.Sprintf("decode structured reply: %v", err),
			Provider: g.provider.Name(),
			Cause:    err,
		}
	}
	return nil
}

// Generate is the typed form of GenerateInto.
func Generate[T any](ctx context.Context, g *Generator, model, prompt string) (*T, error) {
	var v T
	if err := g.GenerateInto(ctx, model, prompt, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// IsValidationError reports whether err came from a reply that failed
// schema validation or decoding.
func IsValidationError(err error) bool {
	var le *llm.Error
	return errors.As(err, &le) && le.Code == llm.ErrInvalidResponse
}

func buildInstructions(s *Schema) string {
	var sb strings.Builder
	sb.WriteString("You MUST respond with a single JSON object that conforms to the schema below.\n")
	sb.WriteString("Do NOT include any text before or after the JSON and do NOT wrap it in markdown.\n\n")
	sb.WriteString("JSON Schema:\n")
	sb.Write(s.Raw)
	return sb.String()
}

// ExtractJSON pulls the JSON object out of a reply that may be wrapped in
// a markdown code fence or surrounded by prose.
func ExtractJSON(reply string) string {
	reply = strings.TrimSpace(reply)
	if gjson.Valid(reply) {
		return reply
	}

	if i := strings.Index(reply, "```"); i >= 0 {
		body := reply[i+3:]
		body = strings.TrimPrefix(body, "json")
		if j := strings.Index(body, "```"); j >= 0 {
			if inner := strings.TrimSpace(body[:j]); gjson.Valid(inner) {
				return inner
			}
		}
	}

	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start >= 0 && end > start {
		return reply[start : end+1]
	}
	return reply
}

func toSnake(name string) string {
	var sb strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
