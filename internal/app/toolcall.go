package app

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ToolCall is a parsed operation request. It is transient: executed once, then
// its result is folded into a message and the call itself is discarded.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// fallbackToolNames is the shortlist accepted by the function-call grammar.
var fallbackToolNames = []string{
	"read_file", "write_file", "edit_file", "list_dir",
	"grep", "search_files", "exec", "todo",
}

var fallbackCallRe = regexp.MustCompile(`\b(` + strings.Join(fallbackToolNames, "|") + `)\s*\(\s*\{`)

// ExtractToolCalls scans raw model output for operation requests and returns
// them in textual order.
//
// Two tiers, first match wins:
//  1. JSON objects with exactly the keys "name" and "arguments", anywhere in
//     the text. Malformed occurrences are skipped (after one repair attempt),
//     unregistered names are dropped, and scanning continues.
//  2. Only when tier 1 accepts nothing: name({...}) function-call syntax for a
//     fixed shortlist of capability names.
func ExtractToolCalls(text string, reg *Registry) []ToolCall {
	calls := extractStructured(text, reg)
	if len(calls) > 0 {
		return calls
	}
	return extractFunctionStyle(text, reg)
}

func extractStructured(text string, reg *Registry) []ToolCall {
	var calls []ToolCall
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := matchBrace(text, i)
		if end < 0 {
			continue
		}
		call, ok := parseCallObject(text[i : end+1])
		if !ok {
			// Malformed or not a call object; keep scanning from the next
			// byte so nested candidates are still considered.
			continue
		}
		if reg != nil && !reg.Has(call.Name) {
			i = end
			continue
		}
		calls = append(calls, call)
		i = end
	}
	return calls
}

func extractFunctionStyle(text string, reg *Registry) []ToolCall {
	var calls []ToolCall
	for _, loc := range fallbackCallRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[loc[2]:loc[3]]
		braceStart := loc[1] - 1
		end := matchBrace(text, braceStart)
		if end < 0 {
			continue
		}
		args, ok := parseArgsObject(text[braceStart : end+1])
		if !ok {
			continue
		}
		if reg != nil && !reg.Has(name) {
			continue
		}
		calls = append(calls, ToolCall{Name: name, Arguments: args})
	}
	return calls
}

// parseCallObject accepts only objects of the exact shape
// {"name": <string>, "arguments": <object>}.
func parseCallObject(candidate string) (ToolCall, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		repaired, repErr := jsonrepair.JSONRepair(candidate)
		if repErr != nil {
			return ToolCall{}, false
		}
		if err := json.Unmarshal([]byte(repaired), &fields); err != nil {
			return ToolCall{}, false
		}
	}
	if len(fields) != 2 {
		return ToolCall{}, false
	}
	rawName, okName := fields["name"]
	rawArgs, okArgs := fields["arguments"]
	if !okName || !okArgs {
		return ToolCall{}, false
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil || name == "" {
		return ToolCall{}, false
	}
	var args map[string]any
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return ToolCall{}, false
	}
	return ToolCall{Name: name, Arguments: args}, true
}

func parseArgsObject(candidate string) (map[string]any, bool) {
	var args map[string]any
	if err := json.Unmarshal([]byte(candidate), &args); err != nil {
		repaired, repErr := jsonrepair.JSONRepair(candidate)
		if repErr != nil {
			return nil, false
		}
		if err := json.Unmarshal([]byte(repaired), &args); err != nil {
			return nil, false
		}
	}
	return args, true
}

// matchBrace returns the index of the brace closing the one at start, honoring
// JSON string literals and escapes, or -1 if the object never closes.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
