package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"greenbranch/internal/app"
	"greenbranch/internal/tui"

	"github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	repoURL = "https://github.com/greenbranch-ai/greenbranch"
)

// buildBackends wires the controller's collaborators. With no backends
// configured (or --mock) the bundled mock executor runs the whole pipeline
// offline. Sessions live on the execution agent, streaming and PR creation
// on the healing server.
func buildBackends(cfg app.Config, forceMock bool, logger *app.Logger) (app.ExecutorAPI, app.StreamDialer, bool) {
	if forceMock || cfg.ServerURL == "" || cfg.AgentURL == "" {
		mock := app.NewMockExecutor()
		return mock, mock, true
	}
	api := app.NewExecutorClient(cfg.AgentURL, cfg.ServerURL, cfg.ProxyURL, logger)
	dialer := app.NewWSDialer(app.AgentWSURL(cfg.ServerURL), logger)
	return api, dialer, false
}

func loadConfig() (app.Config, error) {
	return app.LoadConfig(app.DefaultConfigPath())
}

func generateCompletion(shell string) error {
	switch shell {
	case "bash":
		fmt.Println("# bash completion for greenbranch")
		fmt.Println("_greenbranch_completions() {")
		fmt.Println("    local cur")
		fmt.Println("    COMPREPLY=()")
		fmt.Println("    cur=\"${COMP_WORDS[COMP_CWORD]}\"")
		fmt.Println("    opts=\"run completion help version --mock --team --leader --create-pr --help\"")
		fmt.Println("    if [[ $COMP_CWORD -eq 1 ]]; then")
		fmt.Println("        COMPREPLY=( $(compgen -W \"${opts}\" -- \"${cur}\") )")
		fmt.Println("    fi")
		fmt.Println("    return 0")
		fmt.Println("}")
		fmt.Println("complete -F _greenbranch_completions greenbranch")
	case "zsh":
		fmt.Println("# zsh completion for greenbranch")
		fmt.Println("compdef _greenbranch greenbranch")
		fmt.Println("_greenbranch() {")
		fmt.Println("    _arguments -C \\")
		fmt.Println("        '(-h --help)'{-h,--help}'[show help]' \\")
		fmt.Println("        '(-v --version)'{-v,--version}'[print version]' \\")
		fmt.Println("        '--mock[run against the bundled mock executor]' \\")
		fmt.Println("        '*::command:->command'")
		fmt.Println("}")
	case "fish":
		fmt.Println("# fish completion for greenbranch")
		fmt.Println("complete -c greenbranch -f -a 'run completion help version'")
		fmt.Println("complete -c greenbranch -s h -l help -d 'Show help'")
		fmt.Println("complete -c greenbranch -s v -l version -d 'Print version'")
		fmt.Println("complete -c greenbranch -l mock -d 'Use the bundled mock executor'")
	default:
		return fmt.Errorf("unsupported shell: %s", shell)
	}
	return nil
}

func main() {
	root := &cobra.Command{
		Use:     "greenbranch",
		Short:   "GreenBranch - AI repository healing dashboard",
		Long:    "GreenBranch drives an AI healing pipeline against a repository: clone, run tests, fix failures, verify and open a pull request.\n\nUse without arguments for the interactive dashboard, or 'run' for headless execution.\n\nFor more information, visit: " + repoURL,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Printf("GreenBranch v%s\n", version)
				fmt.Printf("Repository: %s\n", repoURL)
				return nil
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			prefs, _ := app.TakePrefs(app.DefaultPrefsPath())

			forceMock, _ := cmd.Flags().GetBool("mock")
			logger := app.NewFileLogger(app.DefaultStateDir())
			api, dialer, mockMode := buildBackends(cfg, forceMock, logger)
			ctrl := app.NewController(api, dialer, cfg, logger)

			p := tea.NewProgram(tui.New(ctrl, cfg, prefs, mockMode), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	root.Flags().Bool("mock", false, "Run against the bundled mock executor")
	root.Flags().BoolP("version", "v", false, "Print version information")

	runCmd := &cobra.Command{
		Use:   "run <repo-url>",
		Short: "Run the healing pipeline without the dashboard",
		Long:  "Run the full pipeline headless and print the outcome.\n\nExamples:\n  - greenbranch run https://github.com/acme/shop\n  - greenbranch run --team 'Rift Organisers' --leader 'Saiyam Kumar' https://github.com/acme/shop\n  - greenbranch run --mock --create-pr https://github.com/acme/shop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := app.NewLogger(os.Stderr)
			api, dialer, mockMode := buildBackends(cfg, runMock, logger)
			if mockMode && !runMock {
				fmt.Fprintln(os.Stderr, "no server/agent configured, using the mock executor")
			}

			ctrl := app.NewController(api, dialer, cfg, logger)
			return runHeadless(ctx, ctrl, cfg, args[0])
		},
	}

	runCmd.Flags().StringVarP(&runTeam, "team", "t", "", "Team name for the fix branch")
	runCmd.Flags().StringVarP(&runLeader, "leader", "l", "", "Team leader name for the fix branch")
	runCmd.Flags().StringVar(&runInstall, "install-command", "", "Override the install command")
	runCmd.Flags().StringVar(&runTest, "test-command", "", "Override the test command")
	runCmd.Flags().BoolVar(&runCreatePR, "create-pr", false, "Open a pull request when the run passes")
	runCmd.Flags().BoolVar(&runMock, "mock", false, "Use the bundled mock executor")
	root.AddCommand(runCmd)

	completionCmd := &cobra.Command{
		Use:   "completion [shell]",
		Short: "Generate shell completion",
		Long:  "Generate shell completion script for greenbranch.\n\nExamples:\n  - greenbranch completion bash >> ~/.bashrc\n  - greenbranch completion zsh > ~/.zsh/completion/_greenbranch\n  - greenbranch completion fish > ~/.config/fish/completions/greenbranch.fish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateCompletion(args[0])
		},
	}
	root.AddCommand(completionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runHeadless(ctx context.Context, ctrl *app.Controller, cfg app.Config, repo string) error {
	err := ctrl.StartClone(ctx, app.CloneRequest{
		RepoURL:        repo,
		Language:       cfg.Language,
		TeamName:       runTeam,
		TeamLeaderName: runLeader,
		GithubToken:    cfg.GithubToken,
	})
	if err != nil {
		return fmt.Errorf("clone failed: %w", err)
	}
	fmt.Printf("Session %s on branch %s\n", ctrl.Session().ID, ctrl.BranchName())

	stream, err := ctrl.StartExecution(ctx, app.ExecRequest{
		InstallCommand: runInstall,
		TestCommand:    runTest,
	})
	if err != nil {
		return fmt.Errorf("pipeline start failed: %w", err)
	}
	go func() {
		// unblocks Recv when the run is interrupted
		<-ctx.Done()
		_ = stream.Close()
	}()

	printed := 0
	for ctrl.Phase() == app.PhaseStreaming {
		if ctx.Err() != nil {
			ctrl.Reset()
			return ctx.Err()
		}
		raw, err := stream.Recv()
		if err != nil {
			ctrl.HandleDisconnect(err)
			break
		}
		ctrl.HandleFrame(raw)
		for _, line := range ctrl.Logs()[printed:] {
			fmt.Println("  " + line.Text)
		}
		printed = len(ctrl.Logs())
	}

	if ctrl.Phase() == app.PhaseFailed {
		return fmt.Errorf("pipeline failed during %s: %s", ctrl.FailureStage(), ctrl.FailureMessage())
	}

	final := ctrl.Final()
	fmt.Printf("\nPipeline Complete\n")
	fmt.Printf("Status: %s\n", final.Status)
	fmt.Printf("Iterations: %d\n", final.Iterations)
	fmt.Printf("Fixed: %d of %d failures\n", final.TotalFixed, final.TotalFailures)
	if final.BranchName != "" {
		fmt.Printf("Branch: %s\n", final.BranchName)
	}
	fmt.Printf("Duration: %.1fs\n", final.TimeTakenSeconds)

	switch ctrl.NextPRAction() {
	case app.PRActionExists:
		fmt.Printf("Pull request: %s\n", ctrl.PRResult().URL)
	case app.PRActionDraft:
		if !runCreatePR {
			fmt.Println("Run again with --create-pr to open a pull request for this branch.")
			break
		}
		draft := ctrl.BuildDraft()
		if err := ctrl.SubmitPR(ctx, draft); err != nil {
			return fmt.Errorf("pull request creation failed: %w", err)
		}
		fmt.Printf("Pull request: %s\n", ctrl.PRResult().URL)
	}
	return nil
}

var (
	runTeam     string
	runLeader   string
	runInstall  string
	runTest     string
	runCreatePR bool
	runMock     bool
)
