package rag

import (
	"fmt"
	"strings"

	"github.com/ragline/ragline/internal/knowledge"
	"github.com/ragline/ragline/internal/user"
)

// maxContextChars caps how much retrieved text goes into the system
// prompt. The cut is a hard character limit, mid-word if it lands there.
const maxContextChars = 2000

// promptHistoryWindow is how many recent messages (three exchanges) the
// contextual prompt carries.
const promptHistoryWindow = 6

func joinContext(hits []knowledge.Result) string {
	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		parts = append(parts, hit.Document.Content)
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// systemPrompt is the grounded-answer prompt for the shared knowledge
// base, where retrieval context is the only source of truth.
func systemPrompt(context string) string {
	return fmt.Sprintf(`You are an intelligent AI assistant that answers questions based on provided context.

Context from knowledge base:
%s

Guidelines:
- Answer based only on the provided context
- If the answer isn't in the context, say so clearly
- Keep responses concise and helpful
- Cite relevant information from the context`, truncate(context, maxContextChars))
}

// contextualPrompt is the conversational prompt for per-user queries: it
// carries recent history and allows general knowledge when the private
// knowledge base has nothing relevant.
func contextualPrompt(history []user.Message, kbContext string) string {
	conv := "This is the start of the conversation."
	if len(history) > 0 {
		recent := history
		if len(recent) > promptHistoryWindow {
			recent = recent[len(recent)-promptHistoryWindow:]
		}
		lines := make([]string, 0, len(recent))
		for _, msg := range recent {
			lines = append(lines, capitalize(msg.Role)+": "+msg.Content)
		}
		conv = strings.Join(lines, "\n")
	}

	if kbContext == "" {
		kbContext = "No relevant documents found."
	}

	return fmt.Sprintf(`You are a helpful AI assistant with access to the user's private knowledge base.

Previous conversation:
%s

Knowledge base context:
%s

Guidelines:
- Remember the conversation context and refer to it when relevant
- Answer based on the knowledge base when available
- If the answer isn't in the knowledge base, use your general knowledge
- Be conversational and remember what the user said earlier
- Keep responses concise and helpful`, conv, truncate(kbContext, maxContextChars))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Deterministic answers used when the model is unreachable or the
// knowledge base is empty. Wording is part of the bot's contract with
// its users, so these are fixed strings.

const noGlobalResults = "I couldn't find any relevant information in the knowledge base to answer your question."

const noUserResults = "I don't have enough information in your knowledge base to answer that question. Try uploading relevant documents!"

// excerptFallback is the shared-knowledge-base answer when the model
// call fails but retrieval found something: a raw excerpt with a note.
func excerptFallback(query string, hits []knowledge.Result) string {
	context := joinContext(hits)
	ellipsis := ""
	if len(context) > 800 {
		ellipsis = "..."
	}
	return fmt.Sprintf(`Based on the documents in my knowledge base, here's what I found:

%s%s

📝 *Note: This is a direct excerpt from the knowledge base. For AI-generated responses, please configure the FlexaAI API endpoint correctly.*

**Query:** %s
**Sources:** %d document(s) found`, truncate(context, 800), ellipsis, query, len(hits))
}

// userFallback is the per-user answer when the model call fails: the top
// retrieved chunk, or a nudge to upload documents when nothing matched.
func userFallback(hits []knowledge.Result) string {
	if len(hits) == 0 {
		return noUserResults
	}
	return "Based on your knowledge base:\n\n" + truncate(hits[0].Document.Content, 500) + "..."
}
