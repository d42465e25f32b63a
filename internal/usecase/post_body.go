package usecase

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"FeedRelay/internal/domain"
)

var postBodyTemplate = template.Must(template.New("post").Parse(`<div class="noticia-content">
<h2>{{.Title}}</h2>
<div class="resumo"><p>{{.Summary}}</p></div>
{{- if .Description}}
<div class="conteudo"><p>{{.Description}}</p></div>
{{- end}}
<div class="fonte"><p><strong>Fonte:</strong> <a href="{{.Link}}" target="_blank" rel="noopener">{{.SourceName}}</a></p></div>
<div class="metadata"><p><small>Nicho: {{.Niche}} | Data: {{.Date}}</small></p></div>
</div>
`))

type postBodyView struct {
	Title       string
	Summary     string
	Description string
	Link        string
	SourceName  string
	Niche       string
	Date        string
}

// RenderPostBody builds the HTML body of the post for item. Field values are escaped.
func RenderPostBody(item domain.NewsItem, at time.Time) (string, error) {
	view := postBodyView{
		Title:      item.Title,
		Summary:    item.Summary,
		Link:       item.Link,
		SourceName: item.SourceName,
		Niche:      item.Niche,
		Date:       at.Format("02/01/2006 15:04"),
	}
	if item.Description != item.Summary {
		view.Description = item.Description
	}

	var buf bytes.Buffer
	if err := postBodyTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render post body: %w", err)
	}
	return buf.String(), nil
}
