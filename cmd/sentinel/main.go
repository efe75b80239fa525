package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sentinelai/sentinel/pkg/agents"
	"github.com/sentinelai/sentinel/pkg/bus"
	"github.com/sentinelai/sentinel/pkg/config"
	"github.com/sentinelai/sentinel/pkg/console"
	"github.com/sentinelai/sentinel/pkg/conversation"
	"github.com/sentinelai/sentinel/pkg/logger"
	"github.com/sentinelai/sentinel/pkg/memory"
	"github.com/sentinelai/sentinel/pkg/providers"
	"github.com/sentinelai/sentinel/pkg/router"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "sentinel"

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, formatVersion())
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	fmt.Printf("  Go: %s\n", goVer)
}

func main() {
	// Env first so SENTINEL_* overrides from .env apply to every command.
	_ = godotenv.Load()

	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sentinel", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}

func onboard() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		fmt.Print("Overwrite? (y/n): ")
		reader := bufio.NewReader(os.Stdin)
		response, readErr := reader.ReadString('\n')
		if readErr != nil {
			fmt.Println("Aborted.")
			return nil
		}
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkspacePath(), 0755); err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}

	fmt.Printf("%s is ready!\n", appName)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your API key to", configPath)
	fmt.Println("     (or set SENTINEL_CLASSIFIER_API_KEY in the environment)")
	fmt.Printf("  2. Start the assistant: %s run\n", appName)
	fmt.Printf("  3. Check readiness: %s status\n", appName)
	return nil
}

// buildStack wires the full assistant from config.
type stack struct {
	cfg    *config.Config
	mem    *memory.Service
	events *bus.EventBus
	rt     *router.Router
	exec   *agents.Executor
}

func buildStack(cfg *config.Config) (*stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mem := memory.NewService(memory.Options{
		DBPath:               cfg.MemoryDBPath(),
		DefaultTTL:           time.Duration(cfg.Memory.DefaultTTLHours) * time.Hour,
		FallbackCap:          cfg.Memory.FallbackCap,
		ContextWindowMinutes: cfg.Agents.ContextWindowMin,
		ContextMaxEntries:    cfg.Agents.ContextMaxEntries,
	})

	events := bus.NewEventBus()
	mem.OnFallback = func(reason string) {
		events.Emit(bus.StatusEvent{Type: bus.EventFallbackActive, Error: reason})
	}

	var chat providers.ChatClient
	if cfg.Classifier.APIKey != "" {
		client, err := providers.NewOpenAIClient(providers.OpenAIOptions{
			APIKey:  cfg.Classifier.APIKey,
			APIBase: cfg.Classifier.APIBase,
			Model:   cfg.Classifier.Model,
			Timeout: time.Duration(cfg.Classifier.TimeoutSec) * time.Second,
		})
		if err != nil {
			mem.Close()
			events.Close()
			return nil, err
		}
		chat = client
	} else {
		logger.WarnCF("main", "no classifier api key, every command will finish unrouted", nil)
	}

	var agentChat providers.ChatClient
	if cfg.Classifier.APIKey != "" {
		client, err := providers.NewOpenAIClient(providers.OpenAIOptions{
			APIKey:      cfg.Classifier.APIKey,
			APIBase:     cfg.Classifier.APIBase,
			Model:       cfg.Agents.Model,
			Temperature: float32(cfg.Agents.Temperature),
			Timeout:     time.Duration(cfg.Agents.ExecTimeoutSec) * time.Second,
		})
		if err != nil {
			mem.Close()
			events.Close()
			return nil, err
		}
		agentChat = client
	}

	registry := agents.DefaultRegistry(agentChat)
	exec := agents.NewExecutor(registry, mem, time.Duration(cfg.Agents.ExecTimeoutSec)*time.Second)

	return &stack{
		cfg:    cfg,
		mem:    mem,
		events: events,
		rt:     router.New(chat),
		exec:   exec,
	}, nil
}

func (s *stack) close() {
	s.events.Close()
	_ = s.mem.Close()
}

func run(debug, verbose bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	if verbose {
		st.events.Subscribe("cli", func(ev bus.StatusEvent) {
			fmt.Fprintf(os.Stderr, "[event] %s %v\n", ev.Type, ev.Data)
		})
	}

	sweeper := memory.NewSweeper(
		st.mem,
		cfg.Memory.RetentionCron,
		time.Duration(cfg.Memory.RetentionHours)*time.Hour,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper.Start(ctx)
	defer sweeper.Stop()

	cons, err := console.New(cfg.Assistant.WakeWord)
	if err != nil {
		return err
	}
	defer cons.Close()
	cons.OnEOF = func() {
		st.events.SendControl(bus.ControlEvent{Type: bus.EventShutdownRequest})
	}

	loop := conversation.NewLoop(cons, cons, cons, st.rt, st.exec, st.mem, st.events, conversation.Options{
		MaxTurns:        cfg.Assistant.MaxTurns,
		CommandTimeout:  time.Duration(cfg.Assistant.CommandTimeoutSec) * time.Second,
		FollowUpTimeout: time.Duration(cfg.Assistant.FollowUpTimeoutSec) * time.Second,
	})

	fmt.Printf("%s ready. Say %q to start. (Ctrl+C to exit)\n\n", appName, cfg.Assistant.WakeWord)
	return loop.Run(ctx)
}

// say routes and executes one command without the wake flow.
func say(text string, debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("nothing to say")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	st, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	ctx := context.Background()
	sessionID := "cli-session"
	st.mem.StoreCommand(ctx, sessionID, text)

	label := st.rt.Decide(ctx, []string{"user: " + text})
	if label.Terminal() {
		fmt.Println("Nothing to do for that request.")
		return nil
	}

	result, err := st.exec.Execute(ctx, label, sessionID, text)
	if err != nil {
		fmt.Println(agents.FailureSpeech(err))
		return err
	}
	fmt.Printf("\n%s %s\n", appName, result.Speech)
	return nil
}

func status() error {
	configPath := getConfigPath()
	fmt.Printf("%s status\n\n", appName)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  Config:     %s (error: %v)\n", configPath, err)
		return nil
	}
	if _, statErr := os.Stat(configPath); statErr == nil {
		fmt.Printf("  Config:     %s\n", configPath)
	} else {
		fmt.Printf("  Config:     defaults (no file at %s)\n", configPath)
	}

	fmt.Printf("  Wake word:  %q\n", cfg.Assistant.WakeWord)
	fmt.Printf("  Workspace:  %s\n", cfg.WorkspacePath())

	dbPath := cfg.MemoryDBPath()
	if _, err := os.Stat(dbPath); err == nil {
		fmt.Printf("  Memory DB:  %s\n", dbPath)
	} else {
		fmt.Printf("  Memory DB:  %s (not yet created)\n", dbPath)
	}

	if cfg.Classifier.APIKey != "" {
		fmt.Printf("  Classifier: %s (key set)\n", cfg.Classifier.Model)
	} else {
		fmt.Println("  Classifier: NOT CONFIGURED (set SENTINEL_CLASSIFIER_API_KEY)")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("\n  Validation: %v\n", err)
	} else {
		fmt.Println("\n  Validation: ok")
	}
	return nil
}
