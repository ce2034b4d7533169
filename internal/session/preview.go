package session

import (
	"bytes"
	"html/template"
)

var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <title>Preview</title>
  <style>body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2937}code{color:#2563eb}</style>
</head>
<body>
  <h1>Generated project</h1>
  {{- if .Prompt}}
  <p>{{.Prompt}}</p>
  {{- end}}
  <ul>
  {{- range .Files}}
    <li><code>{{.Path}}</code> ({{.Language}}, {{.Tokens}} tokens)</li>
  {{- end}}
  </ul>
</body>
</html>
`))

// RenderPreview builds the local preview page for s. It depends only on the
// state passed in.
func RenderPreview(s State) string {
	var buf bytes.Buffer
	data := struct {
		Prompt string
		Files  []FileProgress
	}{
		Prompt: s.Session.Prompt,
		Files:  s.Files(),
	}
	if err := previewTemplate.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}
