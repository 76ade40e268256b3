package usecase

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"miprojet-assistant/internal/domain"
	"miprojet-assistant/internal/textclean"
)

const (
	titleMaxRunes       = 80
	excerptMaxRunes     = 200
	descriptionMaxRunes = 300

	defaultNewsTitle        = "Actualité MIPROJET"
	defaultOpportunityTitle = "OPPORTUNITÉ MIPROJET"
	defaultProjectName      = "le projet"
	fallbackEligibility     = "Entrepreneurs et porteurs de projets en Afrique francophone"
	fallbackLocation        = "Afrique francophone"
	fallbackContactLine     = "Pour plus d'informations, contactez l'équipe MIPROJET."
)

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newsFallback(content string) domain.NewsContent {
	cleaned := textclean.Strip(content)
	title := textclean.Truncate(textclean.FirstLine(cleaned), titleMaxRunes)
	if title == "" {
		title = defaultNewsTitle
	}
	return domain.NewsContent{
		Title:    title,
		Excerpt:  textclean.Truncate(flatten(cleaned), excerptMaxRunes),
		Content:  cleaned,
		Category: domain.DefaultNewsCategory,
	}
}

func universalFallback(content string) domain.UniversalContent {
	n := newsFallback(content)
	return domain.UniversalContent{
		Title:    n.Title,
		Excerpt:  n.Excerpt,
		Content:  n.Content,
		Category: n.Category,
	}
}

func opportunityFallback(content, opportunityType string) domain.OpportunityContent {
	cleaned := textclean.Strip(content)
	title := strings.ToUpper(textclean.Truncate(textclean.FirstLine(cleaned), titleMaxRunes))
	if title == "" {
		title = defaultOpportunityTitle
	}
	description := textclean.Truncate(flatten(cleaned), descriptionMaxRunes)

	var body strings.Builder
	body.WriteString(cleaned)
	body.WriteString("\n\nType d'opportunité : ")
	body.WriteString(strings.TrimSpace(opportunityType))
	body.WriteString("\n\n")
	body.WriteString(fallbackContactLine)

	return domain.OpportunityContent{
		Title:        title,
		Description:  description,
		Content:      strings.TrimSpace(body.String()),
		Category:     domain.NormalizeCategory(opportunityType, domain.OpportunityCategories, domain.DefaultOpportunityCategory),
		Eligibility:  fallbackEligibility,
		Location:     fallbackLocation,
		ExternalLink: "",
		ContactEmail: "",
		ContactPhone: "",
	}
}

func evaluationFallback(projectData, scores map[string]any) domain.EvaluationContent {
	name := defaultProjectName
	if title, ok := projectData["title"].(string); ok && strings.TrimSpace(title) != "" {
		name = fmt.Sprintf("le projet « %s »", strings.TrimSpace(title))
	}

	resume := fmt.Sprintf("L'évaluation automatique de %s n'a pas pu être générée. Une analyse détaillée sera réalisée par l'équipe MIPROJET.", name)
	if avg, ok := averageScore(scores); ok {
		resume = fmt.Sprintf("L'évaluation automatique de %s n'a pas pu être générée. Score moyen obtenu : %s/100. Une analyse détaillée sera réalisée par l'équipe MIPROJET.", name, strconv.FormatFloat(avg, 'f', 1, 64))
	}

	return domain.EvaluationContent{
		Resume: resume,
		Forces: []string{
			"Projet soumis et documenté sur la plateforme MIPROJET",
		},
		Faiblesses: []string{
			"Analyse automatique indisponible, points d'amélioration à confirmer par un analyste",
		},
		Recommandations: []string{
			"Compléter les informations du projet (marché, modèle économique, besoins de financement)",
			"Solliciter un accompagnement personnalisé auprès de l'équipe MIPROJET",
		},
	}
}

// averageScore averages the numeric values of scores, ignoring anything else.
func averageScore(scores map[string]any) (float64, bool) {
	var sum float64
	var n int
	for _, v := range scores {
		var f float64
		switch x := v.(type) {
		case float64:
			f = x
		case int:
			f = float64(x)
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				continue
			}
			f = parsed
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		sum += f
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
