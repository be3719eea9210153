package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"forumagent/internal/config"
	"forumagent/internal/generator"
	"forumagent/internal/images"
	"forumagent/internal/logging"
	"forumagent/internal/moderation"
	"forumagent/internal/orchestrator"
	"forumagent/internal/persona"
	"forumagent/internal/scheduler"
	"forumagent/internal/store"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "forumagent",
	Short: "forumagent - autonomous community content agent",
	Long: `forumagent keeps a game community forum alive with simulated participants.

Persona accounts ask questions through the Q&A front-end, open and populate
forums, and reply to unanswered posts on fixed daily schedules. Content comes
from the generative text service with per-game model-tier selection,
anti-duplication checks, and a moderation gate before anything is published.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		return logging.Initialize(level, cfg.Logging.Development)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(cmd.Context())
	},
}

// runCmd runs the agent until interrupted. Same as invoking the bare binary.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent with its schedules active",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(cmd.Context())
	},
}

// statusCmd prints the scheduler snapshot.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registered tasks, schedules, and run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := buildAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer agent.Close()
		return printJSON(agent.scheduler.Status())
	},
}

// triggerCmd fires one task immediately, bypassing its schedule.
var triggerCmd = &cobra.Command{
	Use:   "trigger <task>",
	Short: "Run one task now (ask_question, forum_post, reply)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := buildAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer agent.Close()

		result, err := agent.scheduler.TriggerTask(args[0])
		if err != nil {
			return err
		}
		if err := printJSON(result); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("task %s failed: %s", args[0], result.Message)
		}
		return nil
	},
}

// diagnoseCmd prints the scheduling health report.
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Report scheduling health: clocks, next firings, missed windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := buildAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer agent.Close()
		return printJSON(agent.scheduler.Diagnose())
	},
}

// personasCmd lists the registered personas.
var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the simulated personas and their roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := buildAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer agent.Close()

		for _, p := range agent.orchestrator.Registry().All() {
			paired := ""
			if p.PairedNovice != "" {
				paired = fmt.Sprintf("  paired:%s", p.PairedNovice)
			}
			fmt.Printf("%-18s %-7s skill:%-2d games:%d%s\n",
				p.Username, p.Role, p.SkillLevel, len(p.Games), paired)
		}
		return nil
	},
}

// agent bundles the wired components so commands can share construction.
type agent struct {
	config       *config.Config
	store        *store.Store
	orchestrator *orchestrator.Orchestrator
	scheduler    *scheduler.Scheduler
}

func (a *agent) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.BootWarn("store close failed: %v", err)
		}
	}
}

// buildAgent wires config, store, generator, personas, and scheduler. The
// scheduler comes back with tasks registered but not initialized; runAgent
// initializes it, the inspection commands don't.
func buildAgent(ctx context.Context) (*agent, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logging.Boot("%s v%s starting (enabled=%v test_mode=%v)",
		cfg.Name, cfg.Version, cfg.Enabled, cfg.TestMode)

	st, err := store.New(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("store initialization failed: %w", err)
	}

	client, err := generator.NewGenAIClient(ctx, cfg.LLM.APIKey)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("text service client failed: %w", err)
	}
	gen := generator.New(client, generatorConfig(cfg))

	registry, err := persona.Load(ctx, st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("persona load failed: %w", err)
	}
	logging.Boot("loaded %d personas: %s", len(registry.All()), strings.Join(registry.Usernames(), ", "))

	picker := images.NewPicker(images.NewMapping(cfg.Images.Directory), st)
	qa := orchestrator.NewHTTPQAClient(cfg.QA.BaseURL, parseDuration(cfg.QA.Timeout, 30*time.Second))
	orch := orchestrator.New(st, registry, gen, moderation.NewTermListChecker(), picker, qa, orchestrator.DefaultTuning())

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Enabled = cfg.Enabled
	schedCfg.TestMode = cfg.TestMode
	sched := scheduler.New(schedCfg)
	sched.Register("ask_question", cfg.Schedules.AskQuestion,
		"a novice persona asks the Q&A front-end a question", orch.RunAskQuestion)
	sched.Register("forum_post", cfg.Schedules.ForumPost,
		"a persona writes a post to a forum", orch.RunForumPost)
	sched.Register("reply", cfg.Schedules.Reply,
		"a matched expert replies to an unanswered post", orch.RunReply)

	return &agent{config: cfg, store: st, orchestrator: orch, scheduler: sched}, nil
}

// runAgent starts the scheduler and blocks until SIGINT/SIGTERM.
func runAgent(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := buildAgent(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.scheduler.Initialize(ctx); err != nil {
		return fmt.Errorf("scheduler initialization failed: %w", err)
	}
	logging.Boot("agent running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logging.Boot("received %s, shutting down", sig)
	case <-ctx.Done():
	}

	a.scheduler.Shutdown()
	return nil
}

// generatorConfig translates the string-typed config into generator types.
// Bad values fall back to defaults rather than refusing to start.
func generatorConfig(cfg *config.Config) generator.Config {
	out := generator.Config{
		DefaultModel: cfg.LLM.DefaultModel,
		FreshModel:   cfg.LLM.FreshModel,
		CallTimeout:  parseDuration(cfg.LLM.Timeout, 45*time.Second),
		ReleaseDates: map[string]time.Time{},
	}
	if t, err := time.Parse("2006-01-02", cfg.LLM.KnowledgeCutoff); err == nil {
		out.KnowledgeCutoff = t
	} else {
		logging.BootWarn("invalid knowledge_cutoff %q: %v", cfg.LLM.KnowledgeCutoff, err)
	}
	for game, date := range cfg.LLM.ReleaseDates {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			logging.BootWarn("invalid release date for %q: %v", game, err)
			continue
		}
		out.ReleaseDates[game] = t
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		logging.BootWarn("invalid duration %q, using %s", s, fallback)
		return fallback
	}
	return d
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "forumagent.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(personasCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
