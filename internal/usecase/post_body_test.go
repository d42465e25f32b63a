package usecase

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedRelay/internal/domain"
)

func TestRenderPostBody(t *testing.T) {
	t.Parallel()

	body, err := RenderPostBody(domain.NewsItem{
		Title:       "Vacina nova aprovada & distribuída",
		Summary:     "Resumo curto da notícia.",
		Description: "Descrição completa da notícia, com <b>marcação</b> suspeita.",
		Link:        "https://example.com/noticia/1",
		SourceName:  "Portal Exemplo",
		Niche:       "saude",
	}, fixedNow)
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata"))
	g.Assert(t, "post_body", []byte(body))
}

func TestRenderPostBodyOmitsRepeatedDescription(t *testing.T) {
	t.Parallel()

	body, err := RenderPostBody(domain.NewsItem{
		Title:       "T",
		Summary:     "Same text",
		Description: "Same text",
		Link:        "https://example.com/1",
	}, fixedNow)
	require.NoError(t, err)
	assert.NotContains(t, body, `class="conteudo"`)
	assert.Contains(t, body, "14/03/2026 09:30")
}
