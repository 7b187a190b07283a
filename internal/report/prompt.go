package report

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message is one transcript entry. Roles are canonicalized to "user" and
// "assistant"; the legacy "ai" role is mapped at this boundary and never
// travels further.
type Message struct {
	Role    string
	Content string
}

// DocumentInput is one in-scope document contributing to the report.
type DocumentInput struct {
	Name      string
	Content   string
	Processed json.RawMessage
}

func canonicalRole(role string) string {
	switch role {
	case "ai", "assistant", "model":
		return "assistant"
	default:
		return "user"
	}
}

// buildPrompt composes the configuration-synthesis prompt from the
// transcript, the in-scope documents, and an optional user directive.
func buildPrompt(messages []Message, docs []DocumentInput, directive string) string {
	var sb strings.Builder

	sb.WriteString("You are generating an Excel report configuration.\n")
	sb.WriteString("Respond with a single JSON object of the form ")
	sb.WriteString(`{"sheets":[{"name":"...","rows":[[...]]}]}`)
	sb.WriteString(" and nothing else.\n\n")

	if len(messages) > 0 {
		sb.WriteString("Conversation:\n")
		for _, m := range messages {
			fmt.Fprintf(&sb, "%s: %s\n", canonicalRole(m.Role), m.Content)
		}
		sb.WriteString("\n")
	}

	for _, d := range docs {
		switch {
		case len(d.Processed) > 0:
			fmt.Fprintf(&sb, "Document %s (structured summary):\n%s\n\n", d.Name, d.Processed)
		case d.Content != "":
			fmt.Fprintf(&sb, "Document %s:\n%s\n\n", d.Name, d.Content)
		}
	}

	if directive != "" {
		sb.WriteString("Instructions: " + directive + "\n")
	}
	return sb.String()
}
