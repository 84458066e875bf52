package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	reg := DefaultRegistry()
	want := []string{"read_file", "write_file", "edit_file", "list_dir", "grep", "search_files", "exec", "todo"}
	got := reg.Names()
	if len(got) != len(want) {
		t.Fatalf("names = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: %v", i, got)
		}
	}
}

func TestRegistryUnknownOperationIsText(t *testing.T) {
	reg := DefaultRegistry()
	result := reg.Execute(context.Background(), ToolCall{Name: "launch_missiles"}, nil)
	if !strings.Contains(result, `unknown operation "launch_missiles"`) {
		t.Fatalf("result = %q", result)
	}
}

func TestRegistryValidatesRequiredParams(t *testing.T) {
	reg := DefaultRegistry()
	cases := []struct {
		tool string
		args map[string]any
	}{
		{"read_file", map[string]any{}},
		{"read_file", map[string]any{"path": "   "}},
		{"write_file", map[string]any{"path": "x.txt"}},
		{"exec", map[string]any{}},
	}
	for _, c := range cases {
		result := reg.Execute(context.Background(), ToolCall{Name: c.tool, Arguments: c.args}, nil)
		if !strings.HasPrefix(result, "error:") || !strings.Contains(result, "missing required parameter") {
			t.Fatalf("%s with %v: result = %q", c.tool, c.args, result)
		}
	}
}

func TestRegistryRecoversPanics(t *testing.T) {
	reg := NewRegistry(&ToolSpec{
		Name:        "kaboom",
		Description: "always panics",
		Run: func(ctx context.Context, args map[string]any, tc *ToolContext) (string, error) {
			panic("boom")
		},
	})
	result := reg.Execute(context.Background(), ToolCall{Name: "kaboom", Arguments: map[string]any{}}, nil)
	if !strings.Contains(result, "kaboom panicked") || !strings.Contains(result, "boom") {
		t.Fatalf("result = %q", result)
	}
}

func TestRegistryDeadlineBecomesTimeoutText(t *testing.T) {
	reg := NewRegistry(&ToolSpec{
		Name:        "slow",
		Description: "waits on the context",
		Run: func(ctx context.Context, args map[string]any, tc *ToolContext) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	result := reg.Execute(ctx, ToolCall{Name: "slow", Arguments: map[string]any{}}, nil)
	if !strings.Contains(result, "slow timed out") {
		t.Fatalf("result = %q", result)
	}
}

func TestFileToolsRoundTrip(t *testing.T) {
	reg := DefaultRegistry()
	dir := t.TempDir()
	tc := &ToolContext{WorkDir: dir}
	ctx := context.Background()

	result := reg.Execute(ctx, ToolCall{Name: "write_file", Arguments: map[string]any{
		"path": "notes/hello.txt", "content": "first line\nsecond line",
	}}, tc)
	if !strings.Contains(result, "wrote") {
		t.Fatalf("write_file = %q", result)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes", "hello.txt")); err != nil {
		t.Fatalf("file not anchored at workdir: %v", err)
	}

	result = reg.Execute(ctx, ToolCall{Name: "read_file", Arguments: map[string]any{
		"path": "notes/hello.txt",
	}}, tc)
	if result != "first line\nsecond line" {
		t.Fatalf("read_file = %q", result)
	}

	result = reg.Execute(ctx, ToolCall{Name: "edit_file", Arguments: map[string]any{
		"path": "notes/hello.txt", "old_text": "second", "new_text": "third",
	}}, tc)
	if !strings.Contains(result, "edited notes/hello.txt") || !strings.Contains(result, "chars changed") {
		t.Fatalf("edit_file = %q", result)
	}
	data, err := os.ReadFile(filepath.Join(dir, "notes", "hello.txt"))
	if err != nil || string(data) != "first line\nthird line" {
		t.Fatalf("edit not applied: %q / %v", data, err)
	}

	result = reg.Execute(ctx, ToolCall{Name: "edit_file", Arguments: map[string]any{
		"path": "notes/hello.txt", "old_text": "never there", "new_text": "x",
	}}, tc)
	if !strings.Contains(result, "error:") || !strings.Contains(result, "text not found") {
		t.Fatalf("edit_file missing text = %q", result)
	}

	result = reg.Execute(ctx, ToolCall{Name: "list_dir", Arguments: map[string]any{}}, tc)
	if !strings.Contains(result, "notes/") {
		t.Fatalf("list_dir = %q", result)
	}
}

func TestReadFileMissingBecomesText(t *testing.T) {
	reg := DefaultRegistry()
	tc := &ToolContext{WorkDir: t.TempDir()}
	result := reg.Execute(context.Background(), ToolCall{Name: "read_file", Arguments: map[string]any{
		"path": "does-not-exist.txt",
	}}, tc)
	if !strings.HasPrefix(result, "error:") {
		t.Fatalf("result = %q", result)
	}
}

func TestExecRunsInWorkDir(t *testing.T) {
	reg := DefaultRegistry()
	dir := t.TempDir()
	tc := &ToolContext{WorkDir: dir}
	result := reg.Execute(context.Background(), ToolCall{Name: "exec", Arguments: map[string]any{
		"command": "pwd",
	}}, tc)
	if strings.TrimSpace(result) != dir {
		t.Fatalf("exec pwd = %q, want %q", result, dir)
	}
}

func TestExecTimeoutBecomesText(t *testing.T) {
	reg := DefaultRegistry()
	tc := &ToolContext{WorkDir: t.TempDir()}
	result := reg.Execute(context.Background(), ToolCall{Name: "exec", Arguments: map[string]any{
		"command": "sleep 5",
		"timeout": float64(1), // JSON numbers decode as float64
	}}, tc)
	if !strings.Contains(result, "timed out") {
		t.Fatalf("result = %q", result)
	}
}

func TestExecFailureIncludesOutput(t *testing.T) {
	reg := DefaultRegistry()
	tc := &ToolContext{WorkDir: t.TempDir()}
	result := reg.Execute(context.Background(), ToolCall{Name: "exec", Arguments: map[string]any{
		"command": "echo oops >&2; exit 3",
	}}, tc)
	if !strings.HasPrefix(result, "error:") || !strings.Contains(result, "oops") {
		t.Fatalf("result = %q", result)
	}
}

func TestGrepNoMatchesIsResult(t *testing.T) {
	reg := DefaultRegistry()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("needle here\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tc := &ToolContext{WorkDir: dir}
	ctx := context.Background()

	result := reg.Execute(ctx, ToolCall{Name: "grep", Arguments: map[string]any{
		"pattern": "needle", "recursive": true,
	}}, tc)
	if !strings.Contains(result, "a.txt") || !strings.Contains(result, "needle here") {
		t.Fatalf("grep hit = %q", result)
	}

	result = reg.Execute(ctx, ToolCall{Name: "grep", Arguments: map[string]any{
		"pattern": "zzz-absent", "recursive": true,
	}}, tc)
	if result != "no matches" {
		t.Fatalf("grep miss = %q", result)
	}
}

func TestSearchFilesFindsByGlob(t *testing.T) {
	reg := DefaultRegistry()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tc := &ToolContext{WorkDir: dir}
	ctx := context.Background()

	result := reg.Execute(ctx, ToolCall{Name: "search_files", Arguments: map[string]any{
		"pattern": "*.go",
	}}, tc)
	if !strings.Contains(result, "main.go") {
		t.Fatalf("search_files = %q", result)
	}

	result = reg.Execute(ctx, ToolCall{Name: "search_files", Arguments: map[string]any{
		"pattern": "*.rs",
	}}, tc)
	if result != "no files found" {
		t.Fatalf("search_files miss = %q", result)
	}
}

func TestRegistryToolErrorNeverEscapes(t *testing.T) {
	reg := NewRegistry(&ToolSpec{
		Name:        "grumpy",
		Description: "always errors",
		Run: func(ctx context.Context, args map[string]any, tc *ToolContext) (string, error) {
			return "", errors.New("nope")
		},
	})
	result := reg.Execute(context.Background(), ToolCall{Name: "grumpy", Arguments: map[string]any{}}, nil)
	if result != "error: nope" {
		t.Fatalf("result = %q", result)
	}
}

func TestExecDefaultTimeoutComesFromContext(t *testing.T) {
	reg := DefaultRegistry()
	tc := &ToolContext{WorkDir: t.TempDir(), Timeout: time.Second}
	result := reg.Execute(context.Background(), ToolCall{Name: "exec", Arguments: map[string]any{
		"command": "sleep 5",
	}}, tc)
	if !strings.Contains(result, "timed out") {
		t.Fatalf("configured timeout not applied: %q", result)
	}
}
