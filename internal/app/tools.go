package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ToolParam describes one named parameter of a capability.
type ToolParam struct {
	Name        string
	Type        string // string|integer|boolean
	Description string
	Enum        []string
}

// ToolSpec is a registered capability: schema plus execution contract.
// Run returns result text; errors are converted to result text at the
// registry boundary and never escape it.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
	Required    []string
	Run         func(ctx context.Context, args map[string]any, tc *ToolContext) (string, error)
}

// ToolContext is what capabilities may touch beyond their arguments: the
// session task list, the working directory, and the default timeout for
// subprocess capabilities (config tool_timeout_seconds).
type ToolContext struct {
	WorkDir string
	Tasks   *TaskList
	Timeout time.Duration
}

// Registry is the static capability catalogue. Read-only after construction.
type Registry struct {
	order []string
	specs map[string]*ToolSpec
}

func NewRegistry(specs ...*ToolSpec) *Registry {
	r := &Registry{specs: make(map[string]*ToolSpec, len(specs))}
	for _, spec := range specs {
		if spec == nil || spec.Name == "" {
			continue
		}
		if _, dup := r.specs[spec.Name]; dup {
			continue
		}
		r.order = append(r.order, spec.Name)
		r.specs[spec.Name] = spec
	}
	return r
}

func (r *Registry) Has(name string) bool {
	_, ok := r.specs[name]
	return ok
}

func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Spec(name string) *ToolSpec {
	return r.specs[name]
}

// Execute runs one call and always returns result text. Validation failures,
// execution errors, panics, and timeouts all become text fed back into the
// conversation.
func (r *Registry) Execute(ctx context.Context, call ToolCall, tc *ToolContext) (result string) {
	spec, ok := r.specs[call.Name]
	if !ok {
		return fmt.Sprintf("error: unknown operation %q", call.Name)
	}
	if err := validateArgs(spec, call.Arguments); err != nil {
		return fmt.Sprintf("error: %v", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = fmt.Sprintf("error: %s panicked: %v", call.Name, rec)
		}
	}()

	out, err := spec.Run(ctx, call.Arguments, tc)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Sprintf("error: %s timed out", call.Name)
		}
		return fmt.Sprintf("error: %v", err)
	}
	return out
}

func validateArgs(spec *ToolSpec, args map[string]any) error {
	for _, req := range spec.Required {
		v, ok := args[req]
		if !ok {
			return fmt.Errorf("%s: missing required parameter %q", spec.Name, req)
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s: missing required parameter %q", spec.Name, req)
		}
	}
	for _, p := range spec.Params {
		if len(p.Enum) == 0 {
			continue
		}
		v, ok := args[p.Name]
		if !ok {
			continue
		}
		s, _ := v.(string)
		found := false
		for _, allowed := range p.Enum {
			if s == allowed {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: parameter %q must be one of %s", spec.Name, p.Name, strings.Join(p.Enum, "|"))
		}
	}
	return nil
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func intArg(args map[string]any, name string) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolArg(args map[string]any, name string) bool {
	b, _ := args[name].(bool)
	return b
}

// resolveToolPath keeps relative tool paths anchored at the session workdir.
func resolveToolPath(tc *ToolContext, path string) string {
	if filepath.IsAbs(path) || tc == nil || tc.WorkDir == "" {
		return path
	}
	return filepath.Join(tc.WorkDir, path)
}

// DefaultRegistry builds the built-in capability set.
func DefaultRegistry() *Registry {
	return NewRegistry(
		readFileSpec(),
		writeFileSpec(),
		editFileSpec(),
		listDirSpec(),
		grepSpec(),
		searchFilesSpec(),
		execSpec(),
		todoSpec(),
	)
}

func readFileSpec() *ToolSpec {
	return &ToolSpec{
		Name:        "read_file",
		Description: "Read the contents of a file",
		Params: []ToolParam{
			{Name: "path", Type: "string", Description: "Path to the file to read"},
		},
		Required: []string{"path"},
		Run: func(ctx context.Context, args map[string]any, tc *ToolContext) (string, error) {
			data, err := os.ReadFile(resolveToolPath(tc, stringArg(args, "path")))
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}

func writeFileSpec() *ToolSpec {
	return &ToolSpec{
		Name:        "write_file",
		Description: "Create or overwrite a file with the given content",
		Params: []ToolParam{
			{Name: "path", Type: "string", Description: "Path to the file to write"},
			{Name: "content", Type: "string", Description: "Content to write to the file"},
		},
		Required: []string{"path", "content"},
		Run: func(ctx context.Context, args map[string]any, tc *ToolContext) (string, error) {
			path := resolveToolPath(tc, stringArg(args, "path"))
			content := stringArg(args, "content")
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return "", err
				}
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), stringArg(args, "path")), nil
		},
	}
}

func editFileSpec() *ToolSpec {
	return &ToolSpec{
		Name:        "edit_file",
		Description: "Edit a file by replacing old_text with new_text (first occurrence)",
		Params: []ToolParam{
			{Name: "path", Type: "string", Description: "Path to the file to edit"},
			{Name: "old_text", Type: "string", Description: "Exact text to find"},
			{Name: "new_text", Type: "string", Description: "Replacement text"},
		},
		Required: []string{"path", "old_text", "new_text"},
		Run: func(ctx context.Context, args map[string]any, tc *ToolContext) (string, error) {
			path := resolveToolPath(tc, stringArg(args, "path"))
			oldText := stringArg(args, "old_text")
			newText := stringArg(args, "new_text")

			data, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			content := string(data)
			if !strings.Contains(content, oldText) {
				return "", fmt.Errorf("text not found in %s", stringArg(args, "path"))
			}
			updated := strings.Replace(content, oldText, newText, 1)
			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return "", err
			}
			return fmt.Sprintf("edited %s\n%s", stringArg(args, "path"), diffSummary(oldText, newText)), nil
		},
	}
}

// diffSummary renders a short line-level summary of a replacement.
func diffSummary(oldText, newText string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, true)
	dmp.DiffCleanupSemantic(diffs)

	added, removed := 0, 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += len(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += len(d.Text)
		}
	}
	return fmt.Sprintf("-%d +%d chars changed", removed, added)
}

func listDirSpec() *ToolSpec {
	return &ToolSpec{
		Name:        "list_dir",
		Description: "List the entries of a directory",
		Params: []ToolParam{
			{Name: "path", Type: "string", Description: "Path to the directory (default: workdir)"},
		},
		Run: func(ctx context.Context, args map[string]any, tc *ToolContext) (string, error) {
			path := stringArg(args, "path")
			if path == "" {
				path = "."
			}
			entries, err := os.ReadDir(resolveToolPath(tc, path))
			if err != nil {
				return "", err
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return strings.Join(names, "\n"), nil
		},
	}
}

func grepSpec() *ToolSpec {
	return &ToolSpec{
		Name:        "grep",
		Description: "Search for a text pattern in files",
		Params: []ToolParam{
			{Name: "pattern", Type: "string", Description: "Search pattern"},
			{Name: "path", Type: "string", Description: "Path to search in (default: workdir)"},
			{Name: "recursive", Type: "boolean", Description: "Search recursively"},
		},
		Required: []string{"pattern"},
		Run: func(ctx context.Context, args map[string]any, tc *ToolContext) (string, error) {
			path := stringArg(args, "path")
			if path == "" {
				path = "."
			}
			flags := "-Hn"
			if boolArg(args, "recursive") {
				flags = "-rHn"
			}
			cmd := exec.CommandContext(ctx, "grep", flags, stringArg(args, "pattern"), resolveToolPath(tc, path))
			output, err := cmd.CombinedOutput()
			if err != nil && len(output) == 0 {
				// grep exits 1 on no matches; report that as a result, not an error.
				if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
					return "no matches", nil
				}
				return "", err
			}
			return strings.TrimRight(string(output), "\n"), nil
		},
	}
}

func searchFilesSpec() *ToolSpec {
	return &ToolSpec{
		Name:        "search_files",
		Description: "Find files whose name matches a glob pattern",
		Params: []ToolParam{
			{Name: "pattern", Type: "string", Description: "Glob pattern (e.g. *.go)"},
			{Name: "path", Type: "string", Description: "Base path to search from (default: workdir)"},
		},
		Required: []string{"pattern"},
		Run: func(ctx context.Context, args map[string]any, tc *ToolContext) (string, error) {
			path := stringArg(args, "path")
			if path == "" {
				path = "."
			}
			cmd := exec.CommandContext(ctx, "find", resolveToolPath(tc, path), "-name", stringArg(args, "pattern"), "-type", "f")
			output, err := cmd.CombinedOutput()
			if err != nil && len(output) == 0 {
				return "", err
			}
			out := strings.TrimRight(string(output), "\n")
			if out == "" {
				return "no files found", nil
			}
			return out, nil
		},
	}
}

func execSpec() *ToolSpec {
	return &ToolSpec{
		Name:        "exec",
		Description: "Execute a shell command and return its combined output",
		Params: []ToolParam{
			{Name: "command", Type: "string", Description: "The shell command to execute"},
			{Name: "timeout", Type: "integer", Description: "Timeout in seconds (default: configured tool timeout)"},
		},
		Required: []string{"command"},
		Run: func(ctx context.Context, args map[string]any, tc *ToolContext) (string, error) {
			timeout := 30 * time.Second
			if tc != nil && tc.Timeout > 0 {
				timeout = tc.Timeout
			}
			if secs := intArg(args, "timeout"); secs > 0 {
				timeout = time.Duration(secs) * time.Second
			}
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(runCtx, "sh", "-c", stringArg(args, "command"))
			if tc != nil && tc.WorkDir != "" {
				cmd.Dir = tc.WorkDir
			}
			output, err := cmd.CombinedOutput()
			if runCtx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("command timed out after %s", timeout)
			}
			if err != nil {
				return "", fmt.Errorf("%v\n%s", err, strings.TrimSpace(string(output)))
			}
			return string(output), nil
		},
	}
}
