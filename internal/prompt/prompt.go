// Package prompt assembles the model prompt from retrieved fragments, the
// recent conversation, and the user's question.
package prompt

import (
	"fmt"
	"strings"
)

// template is the grounding prompt. The model is told to answer only from
// the supplied context and to refuse when the context does not cover the
// question.
const template = `You are a helpful assistant. Answer questions based on the provided context.

RULES:
1. Only answer based on the context provided below
2. If the context doesn't contain the answer, say "I don't have information about that in my knowledge base."
3. Be concise and accurate
4. Never make up information

CONTEXT:
%s

CONVERSATION HISTORY:
%s

QUESTION: %s

Answer:`

// RoleUser and RoleAssistant are the recognized conversation roles. Any
// role other than RoleUser is rendered as the assistant.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of the conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries everything needed to render a prompt.
type Request struct {
	// Context holds the retrieved fragment texts, in retrieval order.
	Context []string

	// History is the full conversation so far, oldest first. Only the most
	// recent turns within the builder's window are rendered.
	History []Turn

	// Question is the user's current message.
	Question string
}

// Builder renders prompts with a bounded history window.
type Builder struct {
	window int
}

// NewBuilder creates a Builder keeping the last window history turns. A
// non-positive window drops history entirely.
func NewBuilder(window int) *Builder {
	return &Builder{window: window}
}

// Render produces the final prompt text for a request.
func (b *Builder) Render(req Request) string {
	return fmt.Sprintf(template,
		renderContext(req.Context),
		b.renderHistory(req.History),
		req.Question)
}

// Window reports the history window size.
func (b *Builder) Window() int {
	return b.window
}

// renderContext joins fragments under numbered document markers. With no
// fragments the context section is left empty and the model falls back to
// the refusal rule.
func renderContext(fragments []string) string {
	var sb strings.Builder
	for i, frag := range fragments {
		fmt.Fprintf(&sb, "\n--- Document %d ---\n", i+1)
		sb.WriteString(frag)
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderHistory formats the most recent turns, oldest first, with role
// labels. Empty history renders as an empty section.
func (b *Builder) renderHistory(history []Turn) string {
	if len(history) == 0 || b.window <= 0 {
		return ""
	}

	recent := history
	if len(recent) > b.window {
		recent = recent[len(recent)-b.window:]
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, turn := range recent {
		label := "Assistant"
		if turn.Role == RoleUser {
			label = "User"
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}
