package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"lexchat/internal/embeddings"
	"lexchat/internal/llm"
	"lexchat/internal/prompts"
	"lexchat/internal/store"
)

var (
	ErrDocumentNotReady     = errors.New("document is not ready for chat")
	ErrInvalidModelResponse = errors.New("invalid model response")
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const systemPrompt = "You are a meticulous legal assistant. Follow the prompt instructions " +
	"exactly and reply only with the requested JSON object."

const freshConversationInstruction = "This is the start of a new conversation; there is no prior history."

// Reference points at a document location backing part of an answer.
type Reference struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Message is one turn of a conversation. History is supplied by the caller;
// the engine persists nothing.
type Message struct {
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	References []Reference `json:"references,omitempty"`
}

// Engine answers questions about a single ingested document.
type Engine struct {
	store    store.Store
	embedder embeddings.Embedder
	llm      llm.Client
	prompts  prompts.Provider
	log      *slog.Logger
}

func NewEngine(st store.Store, emb embeddings.Embedder, client llm.Client, pr prompts.Provider, log *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		embedder: emb,
		llm:      client,
		prompts:  pr,
		log:      log,
	}
}

// Chat produces one assistant message grounded in the document content.
// Errors propagate as-is; no fallback answer is ever synthesized.
func (e *Engine) Chat(ctx context.Context, docID uuid.UUID, message string, history []Message) (Message, error) {
	doc, err := e.store.GetDocument(ctx, docID)
	if err != nil {
		return Message{}, fmt.Errorf("load document: %w", err)
	}
	if !doc.Ready() {
		return Message{}, ErrDocumentNotReady
	}

	queryVec, err := e.embedder.Embed(ctx, message)
	if err != nil {
		return Message{}, fmt.Errorf("embed message: %w", err)
	}

	score, err := similarity(doc.Embedding, queryVec)
	if err != nil {
		return Message{}, err
	}
	e.log.Debug("query similarity", "document_id", docID, "score", score)

	tmpl, err := e.prompts.ChatTemplate(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("load prompt template: %w", err)
	}
	rendered := prompts.Render(tmpl, promptValues(doc.Content, message, history))

	raw, err := e.llm.Complete(ctx, systemPrompt, rendered)
	if err != nil {
		return Message{}, fmt.Errorf("generate answer: %w", err)
	}

	return parseResponse(raw)
}

func promptValues(content, message string, history []Message) prompts.Values {
	v := prompts.Values{
		DocumentContent: content,
		UserMessage:     message,
	}
	if len(history) == 0 {
		v.FreshInstruction = freshConversationInstruction
	} else {
		v.ConversationHistory = formatHistory(history)
	}
	return v
}

func formatHistory(history []Message) string {
	lines := make([]string, len(history))
	for i, m := range history {
		speaker := "User"
		if m.Role == RoleAssistant {
			speaker = "Assistant"
		}
		lines[i] = speaker + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

// similarity scores the query against the flattened document vector. The
// stored vector is chunkCount x dim long, so it is scored per dim-sized
// window and the best window wins.
func similarity(docVec, queryVec embeddings.Vector) (float32, error) {
	dim := len(queryVec)
	if dim == 0 || len(docVec)%dim != 0 {
		return 0, fmt.Errorf("stored vector length %d vs query length %d: %w",
			len(docVec), dim, embeddings.ErrDimensionMismatch)
	}
	var best float32
	for i := 0; i < len(docVec); i += dim {
		score, err := embeddings.DotProduct(docVec[i:i+dim], queryVec)
		if err != nil {
			return 0, err
		}
		if i == 0 || score > best {
			best = score
		}
	}
	return best, nil
}

// CleanResponseWrapper strips a fenced-code wrapper from model output,
// leaving inner text untouched.
func CleanResponseWrapper(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-3]
	}
	return strings.TrimSpace(s)
}

// parseResponse decodes the model output into a structured message. Any
// deviation from the expected shape is an ErrInvalidModelResponse carrying
// the raw text; no best-guess recovery.
func parseResponse(raw string) (Message, error) {
	cleaned := CleanResponseWrapper(raw)

	var parsed struct {
		Content    string      `json:"content"`
		References []Reference `json:"references"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&parsed); err != nil {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidModelResponse, raw)
	}
	if parsed.Content == "" {
		return Message{}, fmt.Errorf("%w: missing content: %q", ErrInvalidModelResponse, raw)
	}
	return Message{
		Role:       RoleAssistant,
		Content:    parsed.Content,
		References: parsed.References,
	}, nil
}
