// Package extract pulls a JSON object out of free-text model replies and
// validates it against a JSON Schema before it is decoded into a typed result.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// ErrNoObject is returned when no JSON object can be decoded from a reply.
var ErrNoObject = errors.New("extract: no JSON object in reply")

// maxCandidates bounds how many '{' positions are tried in a single reply.
const maxCandidates = 32

// Schema is a compiled JSON Schema with the definition it was built from.
type Schema struct {
	name     string
	raw      []byte
	compiled *gojsonschema.Schema
}

// NewSchema compiles def. It fails only on a programming error in def.
func NewSchema(name string, def jsonschema.Definition) (*Schema, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("extract: schema name must not be empty")
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("extract: marshal schema %s: %w", name, err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("extract: compile schema %s: %w", name, err)
	}
	return &Schema{name: name, raw: raw, compiled: compiled}, nil
}

// MustSchema is NewSchema for package-level definitions.
func MustSchema(name string, def jsonschema.Definition) *Schema {
	s, err := NewSchema(name, def)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string { return s.name }

// JSON returns the marshaled schema, as sent in an upstream response_format.
func (s *Schema) JSON() []byte { return s.raw }

// Validate checks doc against the schema and reports every violation.
func (s *Schema) Validate(doc []byte) error {
	res, err := s.compiled.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("extract: validate %s: %w", s.name, err)
	}
	if res.Valid() {
		return nil
	}
	var merr *multierror.Error
	for _, e := range res.Errors() {
		merr = multierror.Append(merr, errors.New(e.String()))
	}
	return fmt.Errorf("extract: %s does not match schema: %w", s.name, merr.ErrorOrNil())
}

// Object returns the first complete JSON object embedded in reply. Markdown
// code fences and any prose around the object are ignored.
func Object(reply string) (json.RawMessage, error) {
	objs := candidates(reply)
	if len(objs) == 0 {
		return nil, ErrNoObject
	}
	return objs[0], nil
}

// Decode validates each object embedded in reply against schema and
// unmarshals the first one that matches into out. Any failure means the
// caller must fall back.
func Decode(reply string, schema *Schema, out any) error {
	objs := candidates(reply)
	if len(objs) == 0 {
		return ErrNoObject
	}
	var merr *multierror.Error
	for _, obj := range objs {
		if err := schema.Validate(obj); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		if err := json.Unmarshal(obj, out); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("extract: decode %s: %w", schema.name, err))
			continue
		}
		return nil
	}
	return merr.ErrorOrNil()
}

// candidates returns the JSON objects that decode from successive '{'
// positions of reply, at most maxCandidates positions tried.
func candidates(reply string) []json.RawMessage {
	text := stripFences(reply)
	var objs []json.RawMessage
	offset := 0
	for tries := 0; tries < maxCandidates; tries++ {
		i := strings.IndexByte(text[offset:], '{')
		if i < 0 {
			break
		}
		start := offset + i
		var obj json.RawMessage
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		if err := dec.Decode(&obj); err == nil {
			objs = append(objs, obj)
			offset = start + int(dec.InputOffset())
			continue
		}
		offset = start + 1
	}
	return objs
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
