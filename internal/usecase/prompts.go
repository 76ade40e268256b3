package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"miprojet-assistant/internal/domain"
)

const chatSystemPrompt = `Tu es l'assistant virtuel de MIPROJET, la plateforme panafricaine de structuration et d'orientation de projets entrepreneuriaux en Afrique francophone.

Ton rôle :
- expliquer comment soumettre un projet, suivre son évaluation et accéder à l'accompagnement ;
- présenter les opportunités (financements, formations, appels à projets, concours) publiées sur la plateforme ;
- orienter les porteurs de projets vers les bons services MIPROJET.

Règles :
- réponds toujours en français, de façon claire, chaleureuse et concise ;
- n'invente jamais de montants, de dates limites ni de contacts ;
- si tu ne sais pas, propose de contacter l'équipe MIPROJET.`

const jsonOnlyRule = "Réponds uniquement avec un objet JSON valide, sans texte autour ni balises de code."

func opportunityPrompt(content, opportunityType string) []domain.ChatMessage {
	system := strings.Join([]string{
		"Tu es un rédacteur expert pour MIPROJET. À partir du texte fourni, rédige une fiche d'opportunité structurée.",
		"",
		"Champs attendus :",
		"- title : titre court et accrocheur",
		"- description : résumé en deux ou trois phrases",
		"- content : description détaillée en texte brut (sans HTML ni Markdown)",
		"- category : une valeur parmi " + strings.Join(domain.OpportunityCategories, ", "),
		"- eligibility : conditions d'éligibilité",
		"- location : zone géographique concernée",
		"- external_link : lien officiel, vide si inconnu",
		"- contact_email : e-mail de contact, vide si inconnu",
		"- contact_phone : téléphone de contact, vide si inconnu",
		"",
		jsonOnlyRule,
	}, "\n")
	user := fmt.Sprintf("Type d'opportunité : %s\n\nTexte source :\n%s", opportunityType, content)
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}
}

func newsPrompt(content string) []domain.ChatMessage {
	system := strings.Join([]string{
		"Tu es le rédacteur en chef des actualités MIPROJET. Transforme le texte fourni en article prêt à publier.",
		"",
		"Champs attendus :",
		"- title : titre informatif",
		"- excerpt : chapô de 200 caractères maximum",
		"- content : article complet, paragraphes séparés par des lignes vides",
		"- category : une valeur parmi " + strings.Join(domain.NewsCategories, ", "),
		"",
		jsonOnlyRule,
	}, "\n")
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: content},
	}
}

func evaluationPrompt(projectData, scores map[string]any) []domain.ChatMessage {
	system := strings.Join([]string{
		"Tu es analyste senior chez MIPROJET. Évalue le projet entrepreneurial décrit à partir de ses données et de ses scores.",
		"",
		"Champs attendus :",
		"- resume : synthèse de l'évaluation en un paragraphe",
		"- forces : liste des points forts",
		"- faiblesses : liste des points faibles",
		"- recommandations : liste d'actions concrètes pour le porteur de projet",
		"",
		jsonOnlyRule,
	}, "\n")
	user := fmt.Sprintf("Données du projet :\n%s\n\nScores :\n%s", indentJSON(projectData), indentJSON(scores))
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}
}

func universalPrompt(content string, fields []string) []domain.ChatMessage {
	system := strings.Join([]string{
		"Tu es l'assistant de rédaction de MIPROJET. Produis un contenu éditorial à partir du texte fourni.",
		"Le formulaire à remplir contient les champs : " + strings.Join(fields, ", ") + ".",
		"",
		"Champs attendus :",
		"- title : titre",
		"- excerpt : résumé court",
		"- content : texte complet",
		"- category : une valeur parmi " + strings.Join(domain.NewsCategories, ", "),
		"",
		jsonOnlyRule,
	}, "\n")
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: content},
	}
}

func chatPrompt(history, messages []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(history)+len(messages)+1)
	out = append(out, domain.ChatMessage{Role: domain.RoleSystem, Content: chatSystemPrompt})
	out = append(out, history...)
	return append(out, messages...)
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
