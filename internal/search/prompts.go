package search

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/seanblong/docqa/pkg/models"
)

// PromptStyle selects the instructions handed to the generator.
type PromptStyle string

const (
	StyleStandard PromptStyle = "standard"
	StyleAdvanced PromptStyle = "advanced"
)

// ParsePromptStyle maps a config value onto a PromptStyle. Empty means standard.
func ParsePromptStyle(s string) (PromptStyle, error) {
	switch PromptStyle(strings.ToLower(strings.TrimSpace(s))) {
	case "", StyleStandard:
		return StyleStandard, nil
	case StyleAdvanced:
		return StyleAdvanced, nil
	default:
		return "", fmt.Errorf("%w: unknown prompt style %q (want standard or advanced)", models.ErrInvalidInput, s)
	}
}

const standardPrompt = `
You are an AI assistant providing information based on the given documents.
Use the following pieces of retrieved context to answer the question.
If you don't know the answer, just say that you don't know, don't try to make up an answer.

Context:
{{.Context}}

Question: {{.Question}}

Your response should be comprehensive and directly answer the question. Include relevant information from the provided context.
If appropriate, include direct quotes from the documents surrounded by quotation marks to support your answer.
Always mention the source filenames of any information you reference.
`

const advancedPrompt = `
You are an expert AI research assistant providing detailed information based on the given documents.
Carefully analyze the following context to answer the user's question.
If the information is not present in the documents, state clearly that you don't know rather than speculating.

Context:
{{.Context}}

Question: {{.Question}}

Your response should:
1. Be comprehensive and directly address the question
2. Include specific details and facts from the documents
3. Organize information in a clear, structured manner
4. Use direct quotes (in quotation marks) when citing exact language
5. Cite source filenames for any information you reference
6. Synthesize information from multiple sources when applicable
`

var prompts = map[PromptStyle]*template.Template{
	StyleStandard: template.Must(template.New("standard").Parse(standardPrompt)),
	StyleAdvanced: template.Must(template.New("advanced").Parse(advancedPrompt)),
}

type promptData struct {
	Context  string
	Question string
}

// contextSeparator sits between chunk texts in the context block.
const contextSeparator = "\n\n"

// BuildPrompt renders the template for style with the chunk texts, in the
// order given, and the question.
func BuildPrompt(style PromptStyle, chunks []string, question string) (string, error) {
	tmpl, ok := prompts[style]
	if !ok {
		return "", fmt.Errorf("%w: unknown prompt style %q", models.ErrInvalidInput, style)
	}
	var b strings.Builder
	data := promptData{Context: strings.Join(chunks, contextSeparator), Question: question}
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", style, err)
	}
	return b.String(), nil
}
