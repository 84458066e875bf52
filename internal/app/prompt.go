package app

import (
	"fmt"
	"strings"
)

const toolCatalogMarker = "## Available operations"

const baseSystemPrompt = `You are hermit, a coding agent running entirely on this machine.
You help with software tasks by reading and editing files, searching, running
commands, and tracking tasks. Be direct and keep answers short. When a task
needs a side effect, emit an operation request instead of describing it.`

func systemPrompt(workDir string) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	if workDir != "" {
		b.WriteString("\n\nWorking directory: ")
		b.WriteString(workDir)
	}
	return b.String()
}

// toolCatalog renders the capability catalogue plus the exact wire syntax the
// model must use. Appended once to the first system message.
func toolCatalog(reg *Registry) string {
	var b strings.Builder
	b.WriteString(toolCatalogMarker)
	b.WriteString("\n\nTo invoke an operation, emit a JSON object with exactly two keys:\n")
	b.WriteString("{\"name\": \"<operation>\", \"arguments\": {\"<param>\": <value>}}\n")
	b.WriteString("Emit one object per operation, inline in your reply. ")
	b.WriteString("Reply without any such object when you are done.\n\n")
	for _, name := range reg.Names() {
		spec := reg.Spec(name)
		fmt.Fprintf(&b, "### %s\n%s\n", spec.Name, spec.Description)
		for _, p := range spec.Params {
			required := ""
			for _, r := range spec.Required {
				if r == p.Name {
					required = ", required"
					break
				}
			}
			line := fmt.Sprintf("- %s (%s%s): %s", p.Name, p.Type, required, p.Description)
			if len(p.Enum) > 0 {
				line += " [" + strings.Join(p.Enum, "|") + "]"
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// InjectToolCatalog appends the catalogue to the first system message, adding
// one if the list has none. Injection is idempotent.
func InjectToolCatalog(msgs []ChatMessage, reg *Registry) []ChatMessage {
	for i, m := range msgs {
		if m.Role != "system" {
			continue
		}
		if strings.Contains(m.Content, toolCatalogMarker) {
			return msgs
		}
		msgs[i].Content = m.Content + "\n\n" + toolCatalog(reg)
		return msgs
	}
	out := make([]ChatMessage, 0, len(msgs)+1)
	out = append(out, ChatMessage{Role: "system", Content: toolCatalog(reg)})
	return append(out, msgs...)
}

// requestMessages assembles a model request from a session: system prompt,
// accumulated summary (as a system turn), then the live window.
func requestMessages(sess *Session) []ChatMessage {
	msgs := []ChatMessage{{Role: "system", Content: systemPrompt(sess.WorkDir)}}
	if strings.TrimSpace(sess.Summary) != "" {
		msgs = append(msgs, ChatMessage{
			Role:    "system",
			Content: "Summary of earlier conversation:\n" + strings.TrimSpace(sess.Summary),
		})
	}
	for _, m := range sess.Window() {
		role := m.Role
		if role == "tool" {
			// Some backends reject a dedicated tool role; fold results into
			// user turns the same way tool output is fed back mid-round.
			role = "user"
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: m.Content})
	}
	return msgs
}
