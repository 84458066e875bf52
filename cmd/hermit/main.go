package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"hermit/internal/app"
	"hermit/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const version = "0.3.0"

func main() {
	var (
		configPath string
		workDir    string
		plainMode  bool
		mockMode   bool
	)

	root := &cobra.Command{
		Use:     "hermit",
		Short:   "hermit is a local, offline coding agent",
		Long:    "hermit drives a local Ollama model through a tool-augmented conversation loop.\nRun without arguments for the interactive TUI, or use `ask` for one-shot turns.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(configPath, workDir, mockMode)
			if err != nil {
				return err
			}
			if plainMode {
				return runPlain(application)
			}
			p := tea.NewProgram(tui.New(application), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: user config dir)")
	root.PersistentFlags().StringVar(&workDir, "workdir", "", "project directory (default: current directory)")
	root.PersistentFlags().BoolVar(&mockMode, "mock", false, "use a scripted mock backend instead of Ollama")
	root.Flags().BoolVar(&plainMode, "plain", false, "simple line REPL instead of the TUI")

	ask := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Run a single turn and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(configPath, workDir, mockMode)
			if err != nil {
				return err
			}
			defer func() {
				_ = application.Close()
			}()
			ctx, stop := contextWithSignals()
			defer stop()
			answer, err := application.RunTurn(ctx, strings.Join(args, " "), printHooks())
			if err != nil {
				return err
			}
			fmt.Println(strings.TrimSpace(answer))
			return nil
		},
	}

	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "List archived sessions for this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(configPath, workDir, mockMode)
			if err != nil {
				return err
			}
			defer func() {
				_ = application.Close()
			}()
			entries, err := application.ListArchived()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no archived sessions")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %s  %d messages  archived %s\n",
					e.SessionID, e.Model, e.MessageCount, e.ArchivedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	root.AddCommand(ask, sessions)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApplication(configPath, workDir string, mock bool) (*app.Application, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return app.NewApplication(cfg, workDir, mock)
}

// contextWithSignals cancels on SIGINT/SIGTERM so a stuck model request or
// subprocess is torn down instead of left hanging. The stop function releases
// the signal registration; call it when the turn is over.
func contextWithSignals() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printHooks() app.Hooks {
	muted := color.New(color.FgHiBlack)
	return app.Hooks{
		OnToolCall: func(call app.ToolCall) {
			muted.Fprintf(os.Stderr, "→ %s\n", call.Name)
		},
		OnToolResult: func(call app.ToolCall, result string) {
			line := strings.SplitN(strings.TrimSpace(result), "\n", 2)[0]
			muted.Fprintf(os.Stderr, "← %s: %s\n", call.Name, line)
		},
	}
}

func runPlain(application *app.Application) error {
	defer func() {
		_ = application.Close()
	}()

	you := color.New(color.FgCyan, color.Bold)
	ai := color.New(color.FgGreen, color.Bold)
	errc := color.New(color.FgRed, color.Bold)

	fmt.Printf("hermit %s · model %s · /quit to exit\n", version, application.Client.Model())
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		you.Print("you> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch input {
		case "/quit", "/exit":
			return nil
		case "/tasks":
			fmt.Println(app.FormatTasks(application.Session().TaskList().All()))
			continue
		case "/archive":
			if _, err := application.ArchiveSession(); err != nil {
				errc.Printf("archive failed: %v\n", err)
			} else {
				fmt.Println("session archived, starting fresh")
			}
			continue
		}

		hooks := printHooks()
		hooks.OnToken = func(delta string) {
			fmt.Print(delta)
		}
		ai.Print("hermit> ")
		ctx, stop := contextWithSignals()
		if _, err := application.RunTurn(ctx, input, hooks); err != nil {
			errc.Printf("error: %v\n", err)
		}
		stop()
		fmt.Println()
	}
	return scanner.Err()
}
