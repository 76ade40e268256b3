package usecase

import (
	"github.com/sashabaranov/go-openai/jsonschema"

	"miprojet-assistant/internal/domain"
	"miprojet-assistant/internal/extract"
)

func str() jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.String, Properties: map[string]jsonschema.Definition{}}
}

func strList() jsonschema.Definition {
	item := str()
	return jsonschema.Definition{Type: jsonschema.Array, Items: &item, Properties: map[string]jsonschema.Definition{}}
}

var (
	opportunitySchema = extract.MustSchema("opportunity_content", jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"title":         str(),
			"description":   str(),
			"content":       str(),
			"category":      str(),
			"eligibility":   str(),
			"location":      str(),
			"external_link": str(),
			"contact_email": str(),
			"contact_phone": str(),
		},
		Required: []string{"title", "description", "content"},
	})

	newsSchema = extract.MustSchema("news_content", jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"title":    str(),
			"excerpt":  str(),
			"content":  str(),
			"category": str(),
		},
		Required: []string{"title", "content"},
	})

	evaluationSchema = extract.MustSchema("evaluation_content", jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"resume":          str(),
			"forces":          strList(),
			"faiblesses":      strList(),
			"recommandations": strList(),
		},
		Required: []string{"resume", "forces", "faiblesses", "recommandations"},
	})

	universalSchema = extract.MustSchema("universal_content", jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"title":    str(),
			"excerpt":  str(),
			"content":  str(),
			"category": str(),
		},
		Required: []string{"title", "content"},
	})
)

func responseSchema(s *extract.Schema) *domain.ResponseSchema {
	return &domain.ResponseSchema{Name: s.Name(), Schema: s.JSON()}
}
