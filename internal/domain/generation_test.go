package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCategory(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"financement", "financement"},
		{"  Formation ", "formation"},
		{"Appel à projets", "appel_a_projets"},
		{"appel-a-projets", "appel_a_projets"},
		{"CONCOURS", "concours"},
		{"unknown", DefaultOpportunityCategory},
		{"", DefaultOpportunityCategory},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeCategory(tc.in, OpportunityCategories, DefaultOpportunityCategory), "in=%q", tc.in)
	}
}

func TestNormalizeCategory_News(t *testing.T) {
	require.Equal(t, "actualite", NormalizeCategory("Actualité", NewsCategories, DefaultNewsCategory))
	require.Equal(t, "success_story", NormalizeCategory("Success Story", NewsCategories, DefaultNewsCategory))
	require.Equal(t, DefaultNewsCategory, NormalizeCategory("sport", NewsCategories, DefaultNewsCategory))
}

func TestAction_IsGeneration(t *testing.T) {
	require.True(t, ActionGenerateNews.IsGeneration())
	require.True(t, ActionGenerateOpportunity.IsGeneration())
	require.True(t, ActionGenerateEvaluation.IsGeneration())
	require.True(t, ActionGenerateUniversalContent.IsGeneration())
	require.False(t, ActionChat.IsGeneration())
	require.False(t, Action("generate_poem").IsGeneration())
}
