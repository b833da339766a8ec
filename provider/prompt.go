package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/invopop/jsonschema"
)

const extractionPromptTemplate = `You are a personal memory assistant. Extract useful, stable facts, preferences, tasks, or project details from the text the user sends.
Ignore trivial conversation or temporary context.

Return a JSON object with a single "memories" array. Each element must conform to this schema:
{{.Schema}}

Rules:
- "type" is one of: preference, fact, task, project, meta
- "scope" is one of: user_global, session, site, conversation
- "confidence" is a number from 0.0 to 1.0
- Return {"memories": []} when nothing is worth remembering
{{- if .Platform}}

The text was captured on {{.Platform}}.
{{- end}}
{{- if .URL}}
Origin URL: {{.URL}}
{{- end}}`

type extractionTemplateData struct {
	Schema   string
	Platform string
	URL      string
}

var (
	extractionTmpl  *template.Template
	candidateSchema string
)

func init() {
	var err error
	extractionTmpl, err = template.New("extractionPrompt").Parse(extractionPromptTemplate)
	if err != nil {
		panic(fmt.Sprintf("failed to parse extraction template: %v", err))
	}

	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema, err := json.Marshal(reflector.Reflect(&Candidate{}))
	if err != nil {
		panic(fmt.Sprintf("failed to reflect candidate schema: %v", err))
	}
	candidateSchema = string(schema)
}

func buildExtractionPrompt(extractionCtx *ExtractionContext) (string, error) {
	data := extractionTemplateData{
		Schema: candidateSchema,
	}
	if extractionCtx != nil {
		data.Platform = extractionCtx.Platform
		data.URL = extractionCtx.URL
	}

	var promptBuffer bytes.Buffer
	if err := extractionTmpl.Execute(&promptBuffer, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(promptBuffer.String()), nil
}

// stripCodeFences removes markdown code blocks some models wrap JSON in.
func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
