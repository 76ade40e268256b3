package extract

import (
	"testing"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/require"
)

func leaf(t jsonschema.DataType) jsonschema.Definition {
	return jsonschema.Definition{Type: t, Properties: map[string]jsonschema.Definition{}}
}

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema("news", jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"title":   leaf(jsonschema.String),
			"content": leaf(jsonschema.String),
			"tags": {
				Type:       jsonschema.Array,
				Items:      &jsonschema.Definition{Type: jsonschema.String, Properties: map[string]jsonschema.Definition{}},
				Properties: map[string]jsonschema.Definition{},
			},
		},
		Required: []string{"title", "content"},
	})
	require.NoError(t, err)
	return s
}

type newsDoc struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

func TestObject(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
	}{
		{"bare", `{"title":"A"}`, `{"title":"A"}`},
		{"prose around", `Voici le résultat : {"title":"A"} Bonne lecture.`, `{"title":"A"}`},
		{"fenced", "```json\n{\"title\":\"A\"}\n```", `{"title":"A"}`},
		{"nested", `{"a":{"b":[1,2]},"c":"}"}`, `{"a":{"b":[1,2]},"c":"}"}`},
		{"brace in prose first", `Format {titre} puis {"title":"B"}`, `{"title":"B"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obj, err := Object(tc.reply)
			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(obj))
		})
	}
}

func TestObject_NoObject(t *testing.T) {
	_, err := Object("Je ne peux pas répondre.")
	require.ErrorIs(t, err, ErrNoObject)

	_, err = Object(`{"title": "tronqué`)
	require.ErrorIs(t, err, ErrNoObject)
}

func TestDecode_Valid(t *testing.T) {
	var out newsDoc
	err := Decode(`{"title":"Forum","content":"Texte","tags":["a"]}`, testSchema(t), &out)
	require.NoError(t, err)
	require.Equal(t, newsDoc{Title: "Forum", Content: "Texte", Tags: []string{"a"}}, out)
}

func TestDecode_SkipsObjectsThatDoNotMatch(t *testing.T) {
	var out newsDoc
	reply := `Exemple : {"exemple": true}. Voici : {"title":"Forum","content":"Texte"}`
	require.NoError(t, Decode(reply, testSchema(t), &out))
	require.Equal(t, "Forum", out.Title)
	require.Equal(t, "Texte", out.Content)
}

func TestDecode_ReportsEveryRejectedObject(t *testing.T) {
	var out newsDoc
	err := Decode(`{"a":1} puis {"title":"seul"}`, testSchema(t), &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "2 errors occurred")
	require.Empty(t, out.Title)
}

func TestDecode_MissingRequired(t *testing.T) {
	var out newsDoc
	err := Decode(`{"title":"Forum"}`, testSchema(t), &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not match schema")
	require.Contains(t, err.Error(), "content")
}

func TestDecode_WrongType(t *testing.T) {
	var out newsDoc
	err := Decode(`{"title":42,"content":"x","tags":"a"}`, testSchema(t), &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "title")
	require.Contains(t, err.Error(), "tags")
}

func TestDecode_NoObject(t *testing.T) {
	var out newsDoc
	require.ErrorIs(t, Decode("pas de JSON", testSchema(t), &out), ErrNoObject)
}

func TestNewSchema_EmptyName(t *testing.T) {
	_, err := NewSchema(" ", jsonschema.Definition{Type: jsonschema.Object})
	require.Error(t, err)
}

func TestSchema_JSON(t *testing.T) {
	s := testSchema(t)
	require.Equal(t, "news", s.Name())
	require.Contains(t, string(s.JSON()), `"required":["title","content"]`)
}
