package prompts

import (
	"context"
	"strings"
)

// Placeholders substituted into the chat template.
const (
	PlaceholderDocumentContent     = "{{DOCUMENT_CONTENT}}"
	PlaceholderConversationHistory = "{{CONVERSATION_HISTORY}}"
	PlaceholderUserMessage         = "{{USER_MESSAGE}}"
	PlaceholderFreshInstruction    = "{{FRESH_CONVERSATION_INSTRUCTION}}"
)

// DefaultChatTemplate is the compiled-in fallback used when no external
// template is configured.
const DefaultChatTemplate = `You are a legal assistant answering questions about one document.
Base every answer strictly on the document content below. If the document does
not contain the answer, say so.

Document content:
{{DOCUMENT_CONTENT}}

{{FRESH_CONVERSATION_INSTRUCTION}}
Conversation so far:
{{CONVERSATION_HISTORY}}

User question: {{USER_MESSAGE}}

Respond with a JSON object of the form
{"content": "<your answer>", "references": [{"page": <page number>, "text": "<exact excerpt>"}]}
and nothing else.`

// Provider returns prompt templates from an external configuration source.
type Provider interface {
	ChatTemplate(ctx context.Context) (string, error)
}

// Values holds the substitutions for one chat prompt rendering.
type Values struct {
	DocumentContent     string
	ConversationHistory string
	UserMessage         string
	FreshInstruction    string
}

// Render substitutes the placeholder values into the template.
func Render(template string, v Values) string {
	return strings.NewReplacer(
		PlaceholderDocumentContent, v.DocumentContent,
		PlaceholderConversationHistory, v.ConversationHistory,
		PlaceholderUserMessage, v.UserMessage,
		PlaceholderFreshInstruction, v.FreshInstruction,
	).Replace(template)
}

// StaticProvider serves a fixed template. Used when no Redis is configured
// and in tests.
type StaticProvider struct {
	Template string
}

func NewStatic(template string) *StaticProvider {
	if template == "" {
		template = DefaultChatTemplate
	}
	return &StaticProvider{Template: template}
}

func (p *StaticProvider) ChatTemplate(context.Context) (string, error) {
	return p.Template, nil
}
