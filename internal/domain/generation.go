package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Action selects the behavior of the assistant function.
type Action string

const (
	ActionChat                     Action = "chat"
	ActionGenerateOpportunity      Action = "generate_opportunity"
	ActionGenerateNews             Action = "generate_news"
	ActionGenerateEvaluation       Action = "generate_evaluation"
	ActionGenerateUniversalContent Action = "generate_universal_content"
)

// IsGeneration reports whether a is one of the one-shot content generation actions.
func (a Action) IsGeneration() bool {
	switch a {
	case ActionGenerateOpportunity, ActionGenerateNews, ActionGenerateEvaluation, ActionGenerateUniversalContent:
		return true
	}
	return false
}

// GenerationRequest is the JSON body accepted by the function. Which fields are
// meaningful depends on Action.
type GenerationRequest struct {
	Action          Action         `json:"action,omitempty"`
	Content         string         `json:"content,omitempty"`
	ProjectData     map[string]any `json:"projectData,omitempty"`
	Scores          map[string]any `json:"scores,omitempty"`
	OpportunityType string         `json:"opportunity_type,omitempty"`
	Fields          []string       `json:"fields,omitempty"`
	Messages        []ChatMessage  `json:"messages,omitempty"`
	SessionID       string         `json:"session_id,omitempty"`
}

type OpportunityContent struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Content      string `json:"content"`
	Category     string `json:"category"`
	Eligibility  string `json:"eligibility"`
	Location     string `json:"location"`
	ExternalLink string `json:"external_link"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

type NewsContent struct {
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

type EvaluationContent struct {
	Resume          string   `json:"resume"`
	Forces          []string `json:"forces"`
	Faiblesses      []string `json:"faiblesses"`
	Recommandations []string `json:"recommandations"`
}

// UniversalContent shares the news layout but is produced for arbitrary admin forms.
type UniversalContent struct {
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

const (
	DefaultNewsCategory        = "actualite"
	DefaultOpportunityCategory = "financement"
)

// NewsCategories lists the categories accepted for news and universal content.
var NewsCategories = []string{
	"actualite",
	"evenement",
	"partenariat",
	"formation",
	"financement",
	"success_story",
}

// OpportunityCategories lists the categories accepted for opportunities.
var OpportunityCategories = []string{
	"financement",
	"formation",
	"appel_a_projets",
	"concours",
	"emploi",
	"partenariat",
	"accompagnement",
}

// NormalizeCategory returns c when it is a member of allowed (case and
// surrounding space insensitive), otherwise def.
func NormalizeCategory(c string, allowed []string, def string) string {
	c = normalizeToken(c)
	for _, a := range allowed {
		if c == a {
			return a
		}
	}
	return def
}

// normalizeToken lowercases s, drops diacritics and joins words with underscores
// so "Appel à projets" matches "appel_a_projets".
func normalizeToken(s string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
}
