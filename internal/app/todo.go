package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	errEmptyTaskContent = errors.New("todo: content must not be empty")
	errBadTaskStatus    = errors.New("todo: status must be pending, in_progress, or completed")
	errTaskNotFound     = errors.New("todo: no task with that id")
)

// todoSpec exposes the session task list to the model: add a task, update its
// status, or list everything. Tasks are only ever mutated through here.
func todoSpec() *ToolSpec {
	return &ToolSpec{
		Name:        "todo",
		Description: "Track tasks for the current session",
		Params: []ToolParam{
			{Name: "action", Type: "string", Description: "What to do with the task list", Enum: []string{"add", "update", "list"}},
			{Name: "content", Type: "string", Description: "Task description (for add)"},
			{Name: "id", Type: "string", Description: "Task id (for update)"},
			{Name: "status", Type: "string", Description: "New status (for update)", Enum: []string{TaskPending, TaskInProgress, TaskCompleted}},
		},
		Required: []string{"action"},
		Run: func(ctx context.Context, args map[string]any, tc *ToolContext) (string, error) {
			if tc == nil || tc.Tasks == nil {
				return "", errors.New("todo: no task list in this context")
			}
			switch stringArg(args, "action") {
			case "add":
				task, err := tc.Tasks.Add(stringArg(args, "content"))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("added task %s (%s): %s", task.ID, task.Status, task.Content), nil
			case "update":
				task, err := tc.Tasks.Update(stringArg(args, "id"), stringArg(args, "status"))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("task %s is now %s", task.ID, task.Status), nil
			case "list":
				return FormatTasks(tc.Tasks.All()), nil
			default:
				return "", errors.New("todo: action must be add, update, or list")
			}
		},
	}
}

func FormatTasks(tasks []Task) string {
	if len(tasks) == 0 {
		return "no tasks"
	}
	var b strings.Builder
	for _, t := range tasks {
		marker := " "
		switch t.Status {
		case TaskInProgress:
			marker = ">"
		case TaskCompleted:
			marker = "x"
		}
		fmt.Fprintf(&b, "[%s] %s  %s\n", marker, t.ID, t.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
