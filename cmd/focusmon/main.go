// Package main is the CLI entry point for focusmon.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/studyfocus/focusmon/internal/browser"
	"github.com/studyfocus/focusmon/internal/chat"
	"github.com/studyfocus/focusmon/internal/command"
	"github.com/studyfocus/focusmon/internal/config"
	"github.com/studyfocus/focusmon/internal/daemon"
	"github.com/studyfocus/focusmon/internal/domain"
	"github.com/studyfocus/focusmon/internal/infra"
	"github.com/studyfocus/focusmon/internal/intervene"
	"github.com/studyfocus/focusmon/internal/ipc"
	"github.com/studyfocus/focusmon/internal/notify"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "focusmon",
	Short: "Study focus daemon - timed work sessions with distraction interception",
	Long: `focusmon runs work/rest focus sessions against your browser.
During a work session in focused mode, switching to a page outside your
work-domain list raises an overlay asking whether it is really work.

The browser must be started with remote debugging enabled, e.g.
chromium --remote-debugging-port=9222`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the focusmon daemon in the background",
	RunE:  runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon and browser status",
	RunE:  runStatus,
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the current session state",
	RunE:  runState,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("focusmon %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
	},
}

// Hidden daemon command - used for self-exec from `focusmon start`
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Control the work/rest session",
}

var sessionDuration int

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a work session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showSnapshot(command.Request{Action: command.StartSession, Duration: sessionDuration})
	},
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showSnapshot(command.Request{Action: command.StopSession})
	},
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showSnapshot(command.Request{Action: command.PauseSession})
	},
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showSnapshot(command.Request{Action: command.ResumeSession})
	},
}

var durationsCmd = &cobra.Command{
	Use:   "durations <work-seconds> <rest-seconds>",
	Short: "Set work and rest interval lengths",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		work, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid work duration %q", args[0])
		}
		rest, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid rest duration %q", args[1])
		}
		return showSnapshot(command.Request{
			Action:       command.SetDurations,
			WorkDuration: work,
			RestDuration: rest,
		})
	},
}

var modeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Toggle between normal and focused mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showSnapshot(command.Request{Action: command.ToggleMode})
	},
}

var interceptCmd = &cobra.Command{
	Use:   "intercept <on|off>",
	Short: "Enable or disable tab interception",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
		return showSnapshot(command.Request{Action: command.SetIntercept, Enabled: &enabled})
	},
}

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Manage the work-domain list",
}

var domainAddCmd = &cobra.Command{
	Use:   "add <domain>",
	Short: "Add a domain to the work list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showDomains(command.Request{Action: command.AddWorkDomain, Domain: args[0]})
	},
}

var domainRemoveCmd = &cobra.Command{
	Use:   "remove <domain>",
	Short: "Remove a domain from the work list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showDomains(command.Request{Action: command.RemoveWorkDomain, Domain: args[0]})
	},
}

var domainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List work domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showDomains(command.Request{Action: command.ListWorkDomains})
	},
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage the task list",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := send(command.Request{Action: command.TaskAdd, Text: strings.Join(args, " ")})
		if err != nil {
			return err
		}
		var task domain.Task
		if err := json.Unmarshal(resp.Data, &task); err != nil {
			return err
		}
		fmt.Printf("Added task %d: %s\n", task.ID, task.Text)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := send(command.Request{Action: command.TaskList})
		if err != nil {
			return err
		}
		var tasks []domain.Task
		if err := json.Unmarshal(resp.Data, &tasks); err != nil {
			return err
		}
		fmt.Println(chat.FormatTaskList(tasks))
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	RunE:  taskIDCommand(command.TaskDone, "Marked task %d done.\n"),
}

var taskRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a task",
	Args:  cobra.ExactArgs(1),
	RunE:  taskIDCommand(command.TaskRemove, "Removed task %d.\n"),
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Ask the study helper (interactive without a message)",
	RunE:  runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")
	sessionStartCmd.Flags().IntVar(&sessionDuration, "duration", 0, "Work duration in seconds (0 = configured default)")

	sessionCmd.AddCommand(sessionStartCmd, sessionStopCmd, sessionPauseCmd, sessionResumeCmd)
	domainCmd.AddCommand(domainAddCmd, domainRemoveCmd, domainListCmd)
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskRemoveCmd)

	rootCmd.AddCommand(startCmd, statusCmd, stateCmd, sessionCmd, durationsCmd,
		modeCmd, interceptCmd, domainCmd, taskCmd, chatCmd, versionCmd, daemonCmd)
}

func send(req command.Request) (command.Response, error) {
	resp, err := ipc.NewClient(ipc.SocketPath()).Send(req)
	if err != nil {
		return command.Response{}, err
	}
	if !resp.Success {
		return command.Response{}, fmt.Errorf("%s", resp.Error)
	}
	return resp, nil
}

func showSnapshot(req command.Request) error {
	resp, err := send(req)
	if err != nil {
		return err
	}
	var snap domain.StateSnapshot
	if err := json.Unmarshal(resp.Data, &snap); err != nil {
		return err
	}
	printSnapshot(snap)
	return nil
}

func printSnapshot(snap domain.StateSnapshot) {
	status := "idle"
	switch {
	case snap.IsPaused:
		status = "paused"
	case snap.IsRunning:
		status = "running"
	}
	fmt.Printf("Phase:      %s (%s)\n", snap.Phase, status)
	fmt.Printf("Remaining:  %s\n", formatSeconds(snap.TimeRemaining))
	fmt.Printf("Mode:       %s\n", snap.Mode)
	fmt.Printf("Intercept:  %v\n", snap.InterceptEnabled)
	fmt.Printf("Durations:  %s work / %s rest\n",
		formatSeconds(snap.WorkDuration), formatSeconds(snap.RestDuration))
}

func formatSeconds(sec int) string {
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}

func showDomains(req command.Request) error {
	resp, err := send(req)
	if err != nil {
		return err
	}
	var payload struct {
		Domains []string `json:"domains"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return err
	}
	if len(payload.Domains) == 0 {
		fmt.Println("No work domains yet.")
		return nil
	}
	for _, d := range payload.Domains {
		fmt.Println(d)
	}
	return nil
}

func taskIDCommand(action string, okFormat string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid task id %q", args[0])
		}
		if _, err := send(command.Request{Action: action, ID: id}); err != nil {
			return err
		}
		fmt.Printf(okFormat, id)
		return nil
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ask := func(message string) error {
		resp, err := send(command.Request{Action: command.Chat, Message: message})
		if err != nil {
			return err
		}
		var reply string
		if err := json.Unmarshal(resp.Data, &reply); err != nil {
			return err
		}
		fmt.Printf("AI: %s\n", reply)
		return nil
	}

	if len(args) > 0 {
		return ask(strings.Join(args, " "))
	}

	fmt.Println("Study helper ready. Ask me anything. Type \"quit\" to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, "quit") {
			fmt.Println("Goodbye!")
			return nil
		}
		if line == "" {
			continue
		}
		if err := ask(line); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	// Already running?
	if resp, err := ipc.NewClient(ipc.SocketPath()).Send(command.Request{Action: command.GetState}); err == nil && resp.Success {
		fmt.Println("focusmon is already running")
		return nil
	}

	if err := daemon.StartDetached(configPath); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Give the daemon a moment to bind the socket.
	client := ipc.NewClient(ipc.SocketPath())
	for i := 0; i < 20; i++ {
		time.Sleep(100 * time.Millisecond)
		if resp, err := client.Send(command.Request{Action: command.GetState}); err == nil && resp.Success {
			fmt.Println("focusmon started")
			fmt.Printf("Control socket: %s\n", ipc.SocketPath())
			return nil
		}
	}
	return fmt.Errorf("daemon did not come up; check the log file")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("=== focusmon status ===")

	store, err := infra.NewFileStateStore(cfg.StatePath())
	if err != nil {
		return err
	}
	pm := infra.NewProcessManager()

	pid, beatAt, err := store.LoadHeartbeat()
	switch {
	case err != nil || pid == 0:
		fmt.Println("Daemon:  NOT RUNNING")
	case pm.IsRunning(pid):
		fmt.Printf("Daemon:  RUNNING (pid %d)\n", pid)
		if beatAt > 0 {
			fmt.Printf("         last heartbeat %s ago\n",
				time.Since(time.Unix(beatAt, 0)).Round(time.Second))
		}
	default:
		fmt.Printf("Daemon:  DEAD (stale pid %d)\n", pid)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client := browser.NewClient(cfg.DevToolsEndpoint, zap.NewNop())
	if page, err := client.ActivePage(ctx); err != nil {
		fmt.Printf("Browser: NOT REACHABLE at %s\n", cfg.DevToolsEndpoint)
		if name, ok := findBrowserProcess(pm); ok {
			fmt.Printf("         %s is running without remote debugging\n", name)
		}
		fmt.Println("         start it with --remote-debugging-port=9222")
	} else {
		fmt.Printf("Browser: connected, active tab %s\n", page.URL)
	}

	fmt.Printf("State:   %s\n", store.Path())
	return nil
}

// browserNames are the process names probed when the DevTools endpoint is
// down, to tell "no browser" apart from "browser without debugging".
var browserNames = []string{"chrome", "chromium", "brave", "msedge"}

func findBrowserProcess(pm domain.ProcessManager) (string, bool) {
	for _, name := range browserNames {
		if pids, err := pm.FindByName(name); err == nil && len(pids) > 0 {
			return name, true
		}
	}
	return "", false
}

func runState(cmd *cobra.Command, args []string) error {
	return showSnapshot(command.Request{Action: command.GetState})
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(path)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg.LogPath)
	defer func() { _ = logger.Sync() }()

	store, err := infra.NewFileStateStore(cfg.StatePath())
	if err != nil {
		return err
	}

	key, err := infra.EnsureKey(infra.NewFileKeyProvider(cfg.DataDir))
	if err != nil {
		return fmt.Errorf("task database key: %w", err)
	}
	tasks, err := infra.NewEncryptedTaskStore(cfg.DataDir, key)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer tasks.Close()

	devtools := browser.NewClient(cfg.DevToolsEndpoint, logger)
	tabs := browser.NewTabWatcher(devtools, logger)
	overlay := browser.NewOverlayChannel(devtools, logger)
	notifier := notify.NewDesktopNotifier(logger)
	assistant := chat.New(cfg.GeminiAPIKey, "", tasks, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var loop *daemon.Loop
	dispatcher := intervene.New(overlay, func(dom string) error {
		confirmCtx, c := context.WithTimeout(ctx, 5*time.Second)
		defer c()
		return loop.ConfirmDomain(confirmCtx, dom)
	}, logger)

	loop, err = daemon.New(store, tabs, dispatcher, notifier, daemon.NewAlarm(),
		infra.SystemClock{}, infra.NewProcessManager(), logger)
	if err != nil {
		return err
	}

	loop.SetDefaultDurations(cfg.WorkDuration, cfg.RestDuration)

	handler := func(ctx context.Context, req command.Request) command.Response {
		if command.Blocking(req.Action) {
			return handleBlocking(ctx, req, assistant, tasks)
		}
		resp, err := loop.Submit(ctx, req)
		if err != nil {
			return command.Fail(err.Error())
		}
		return resp
	}
	server := ipc.NewServer(ipc.SocketPath(), handler, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	errCh := make(chan error, 3)
	go func() { errCh <- server.Serve(ctx) }()
	go func() { errCh <- tabs.Run(ctx) }()
	go func() { errCh <- loop.Run(ctx) }()

	err = <-errCh
	cancel()
	if err == context.Canceled {
		return nil
	}
	return err
}

// handleBlocking answers chat and task commands on the connection
// goroutine so a slow model call cannot stall the event loop.
func handleBlocking(ctx context.Context, req command.Request, assistant *chat.Assistant, tasks domain.TaskStore) command.Response {
	switch req.Action {
	case command.Chat:
		reply, err := assistant.Reply(ctx, req.Message)
		if err != nil {
			return command.Fail(err.Error())
		}
		return command.OK(reply)

	case command.TaskAdd:
		task, err := tasks.Add(strings.TrimSpace(req.Text))
		if err != nil {
			return command.Fail(err.Error())
		}
		return command.OK(task)

	case command.TaskList:
		list, err := tasks.List()
		if err != nil {
			return command.Fail(err.Error())
		}
		if list == nil {
			list = []domain.Task{}
		}
		return command.OK(list)

	case command.TaskDone:
		if err := tasks.Complete(req.ID); err != nil {
			return command.Fail(err.Error())
		}
		return command.OK(nil)

	case command.TaskRemove:
		if err := tasks.Remove(req.ID); err != nil {
			return command.Fail(err.Error())
		}
		return command.OK(nil)

	default:
		return command.Unknown()
	}
}

func createLogger(logPath string) *zap.Logger {
	config := zap.NewProductionConfig()
	if logPath != "" {
		_ = os.MkdirAll(filepath.Dir(logPath), 0o700)
		config.OutputPaths = []string{logPath}
		config.ErrorOutputPaths = []string{logPath}
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
