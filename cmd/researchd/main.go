// Command researchd runs one research workflow end to end: it wires the
// configuration, telemetry, LLM, tooling, memory, run registry, approval
// gate, and workflow engine capabilities together, starts a single run for
// the topic given on the command line, waits for it to reach a terminal
// status, and prints the resulting report.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"

	"github.com/strukalex/agentic-assistant-framework-sub000/agentengine"
	"github.com/strukalex/agentic-assistant-framework-sub000/approval"
	"github.com/strukalex/agentic-assistant-framework-sub000/config"
	"github.com/strukalex/agentic-assistant-framework-sub000/engine"
	engineinmem "github.com/strukalex/agentic-assistant-framework-sub000/engine/inmem"
	enginetemporal "github.com/strukalex/agentic-assistant-framework-sub000/engine/temporal"
	"github.com/strukalex/agentic-assistant-framework-sub000/gap"
	"github.com/strukalex/agentic-assistant-framework-sub000/hooks"
	"github.com/strukalex/agentic-assistant-framework-sub000/hooks/redisstream"
	"github.com/strukalex/agentic-assistant-framework-sub000/llm"
	"github.com/strukalex/agentic-assistant-framework-sub000/llm/anthropic"
	"github.com/strukalex/agentic-assistant-framework-sub000/llm/openai"
	"github.com/strukalex/agentic-assistant-framework-sub000/memory"
	meminmem "github.com/strukalex/agentic-assistant-framework-sub000/memory/inmem"
	memmongo "github.com/strukalex/agentic-assistant-framework-sub000/memory/mongostore"
	"github.com/strukalex/agentic-assistant-framework-sub000/researchflow"
	"github.com/strukalex/agentic-assistant-framework-sub000/run"
	runinmem "github.com/strukalex/agentic-assistant-framework-sub000/run/inmem"
	runmongo "github.com/strukalex/agentic-assistant-framework-sub000/run/mongostore"
	"github.com/strukalex/agentic-assistant-framework-sub000/state"
	"github.com/strukalex/agentic-assistant-framework-sub000/telemetry"
	"github.com/strukalex/agentic-assistant-framework-sub000/tooling"
	"github.com/strukalex/agentic-assistant-framework-sub000/tools"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultTaskQueue = "research-agent"

type cliOptions struct {
	configPath  string
	topic       string
	userID      string
	useTemporal bool
	temporalURI string
	redisAddr   string
}

func main() {
	var opts cliOptions
	flag.StringVar(&opts.configPath, "config", "", "path to researchd.yaml (defaults built in if omitted)")
	flag.StringVar(&opts.topic, "topic", "the current state of fusion energy research", "research topic to investigate")
	flag.StringVar(&opts.userID, "user", "cli-user", "user id the run is attributed to")
	flag.BoolVar(&opts.useTemporal, "temporal", false, "run the workflow on a connected Temporal server instead of in-process")
	flag.StringVar(&opts.temporalURI, "temporal-address", "127.0.0.1:7233", "Temporal frontend address, used with -temporal")
	flag.StringVar(&opts.redisAddr, "redis-addr", "", "Redis address for the event hooks stream; empty disables it")
	flag.Parse()

	if err := runCLI(context.Background(), opts); err != nil {
		fmt.Fprintln(os.Stderr, "researchd:", err)
		os.Exit(1)
	}
}

func runCLI(ctx context.Context, opts cliOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewClueLogger()
	tracer := telemetry.NoopTracer{}

	llmClient, err := buildLLMClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	memStore, err := buildMemoryStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("build memory store: %w", err)
	}

	bus := hooks.NewBus()

	toolServer := tools.New(memStore, tools.Config{})
	invoker := tooling.New(toolServer, tooling.Options{
		MaxRepeats:  cfg.Tooling.MaxRepeats,
		ToolTimeout: cfg.Tooling.ToolTimeout,
		Tracer:      tracer,
		Bus:         bus,
	})
	gapDetector := gap.New(llmClient, toolServer)
	turnEngine := agentengine.New(llmClient, invoker, gapDetector, agentengine.Options{Tracer: tracer})
	researcher := engineAdapter{engine: turnEngine}

	if opts.redisAddr != "" {
		sink, err := redisstream.New(redisstream.Options{Client: goredis.NewClient(&goredis.Options{Addr: opts.redisAddr})})
		if err != nil {
			return fmt.Errorf("build redis hooks sink: %w", err)
		}
		if _, err := bus.Register(sink); err != nil {
			return fmt.Errorf("register redis hooks sink: %w", err)
		}
	}
	if _, err := bus.Register(hooks.SubscriberFunc(func(ctx context.Context, event hooks.Event) error {
		logger.Info(ctx, "event", "type", string(event.Type), "run_id", event.RunID)
		return nil
	})); err != nil {
		return fmt.Errorf("register log sink: %w", err)
	}

	runStore, err := buildRunStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("build run store: %w", err)
	}

	wfEngine, cleanup, err := buildEngine(opts)
	if err != nil {
		return fmt.Errorf("build workflow engine: %w", err)
	}
	defer cleanup()

	starter := engineStarter{engine: wfEngine, tools: llmToolSpecs()}
	registry := run.New(runStore, starter, run.Options{NewID: func() string { return uuid.NewString() }})

	gate := approval.New(
		toolExecutor{server: toolServer},
		cliSuspender{},
		approval.Options{
			Timeout: cfg.Approval.Timeout,
			Bus:     bus,
			OnSuspend: func(ctx context.Context, runID string, request approval.Request) error {
				publishEvent(ctx, bus, hooks.Event{
					Type: hooks.RunSuspended, RunID: runID,
					Data: hooks.RunSuspendedData{ActionType: request.ActionType, ActionDescription: request.ActionDescription},
				})
				return registry.MarkSuspended(ctx, runID, request)
			},
		},
	)

	activities := researchflow.NewActivities(researcher, memStore, state.DefaultFormatter, gate, registry, bus)
	if err := researchflow.Register(ctx, wfEngine, defaultTaskQueue, activities); err != nil {
		return fmt.Errorf("register workflow: %w", err)
	}

	record, err := registry.CreateRun(ctx, opts.topic, opts.userID)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	fmt.Printf("started run %s (status=%s)\n", record.RunID, record.Status)
	publishEvent(ctx, bus, hooks.Event{
		Type: hooks.RunStarted, RunID: record.RunID,
		Data: hooks.RunStartedData{Topic: opts.topic, UserID: opts.userID},
	})

	for record.Status != run.StatusCompleted && record.Status != run.StatusFailed && record.Status != run.StatusEscalated {
		time.Sleep(250 * time.Millisecond)
		record, err = registry.GetRun(ctx, record.RunID)
		if err != nil {
			return fmt.Errorf("poll run: %w", err)
		}
	}
	publishEvent(ctx, bus, hooks.Event{
		Type: hooks.RunCompleted, RunID: record.RunID,
		Data: hooks.RunCompletedData{Status: string(record.Status), Error: record.ErrorMessage},
	})

	if record.Status != run.StatusCompleted {
		return fmt.Errorf("run %s ended with status %s: %s", record.RunID, record.Status, record.ErrorMessage)
	}

	report, err := registry.GetReport(ctx, record.RunID)
	if err != nil {
		return fmt.Errorf("get report: %w", err)
	}
	fmt.Println("---")
	fmt.Println(report.Markdown)
	return nil
}

// publishEvent best-effort publishes to the hook bus. A subscriber error
// (including none being registered) never fails the run it describes.
func publishEvent(ctx context.Context, bus hooks.Bus, event hooks.Event) {
	_ = bus.Publish(ctx, event)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildLLMClient(cfg config.LLMConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for provider %q", cfg.Provider)
		}
		return openai.NewFromAPIKey(apiKey, cfg.Model)
	default:
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", cfg.Provider)
		}
		return anthropic.NewFromAPIKey(apiKey, cfg.Model)
	}
}

func buildMemoryStore(ctx context.Context, cfg config.StorageConfig) (memory.Store, error) {
	if cfg.Backend != "mongo" {
		return meminmem.New(), nil
	}
	mongoClient, err := mongodriver.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	return memmongo.New(ctx, memmongo.Options{
		Client:              mongoClient,
		Database:            cfg.Database,
		DocumentsCollection: "memory_documents",
		MessagesCollection:  "memory_messages",
		Timeout:             10 * time.Second,
	})
}

func buildRunStore(ctx context.Context, cfg config.StorageConfig) (run.Store, error) {
	if cfg.Backend != "mongo" {
		return runinmem.New(), nil
	}
	mongoClient, err := mongodriver.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	return runmongo.New(runmongo.Options{
		Client:     mongoClient,
		Database:   cfg.Database,
		Collection: "runs",
		Timeout:    10 * time.Second,
	})
}

func buildEngine(opts cliOptions) (engine.Engine, func(), error) {
	if !opts.useTemporal {
		return engineinmem.New(), func() {}, nil
	}
	c, err := client.Dial(client.Options{HostPort: opts.temporalURI})
	if err != nil {
		return nil, func() {}, fmt.Errorf("connect to temporal at %s: %w", opts.temporalURI, err)
	}
	eng, err := enginetemporal.New(enginetemporal.Options{Client: c, DefaultTaskQueue: defaultTaskQueue})
	if err != nil {
		c.Close()
		return nil, func() {}, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(runCtx) }()
	return eng, func() { cancel(); c.Close() }, nil
}

// engineStarter adapts a workflow engine to run.WorkflowStarter.
type engineStarter struct {
	engine engine.Engine
	tools  []llm.ToolSpec
}

func (s engineStarter) StartWorkflow(ctx context.Context, runID, topic, userID string) error {
	_, err := s.engine.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:        runID,
		Workflow:  researchflow.WorkflowName,
		TaskQueue: defaultTaskQueue,
		Input: researchflow.Input{
			RunID:         runID,
			Topic:         topic,
			UserID:        userID,
			MaxIterations: 3,
			MaxRuntime:    10 * time.Minute,
			Tools:         s.tools,
		},
	})
	return err
}

// engineAdapter narrows *agentengine.Engine to state.Researcher.
type engineAdapter struct {
	engine *agentengine.Engine
}

func (a engineAdapter) RunAgent(ctx context.Context, runID, task string, toolSpecs []llm.ToolSpec, maxRuntime time.Duration) (agentengine.Result, error) {
	return a.engine.RunAgent(ctx, runID, task, toolSpecs, maxRuntime)
}

// toolExecutor adapts a tooling.ToolServer to approval.ActionExecutor: an
// approved PlannedAction is dispatched as a direct tool call of the same
// name, bypassing the per-turn Invoker since it runs outside any agent turn.
type toolExecutor struct {
	server tooling.ToolServer
}

func (e toolExecutor) Execute(ctx context.Context, action state.PlannedAction) (map[string]any, error) {
	payload, err := json.Marshal(action.Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal action parameters: %w", err)
	}
	result, err := e.server.CallTool(ctx, action.ActionType, payload)
	if err != nil {
		return nil, err
	}
	blocks := result.TextBlocks()
	return map[string]any{"action_type": action.ActionType, "result": strings.Join(blocks, "")}, nil
}

// cliSuspender implements approval.SuspendForApproval by prompting on stdin.
// With no answer by the request's TimeoutAt it returns an approval_timeout
// payload.
type cliSuspender struct{}

func (cliSuspender) Suspend(ctx context.Context, req approval.Request) (approval.ResumePayload, error) {
	fmt.Printf("\napproval requested: %s (%s)\napprove? [y/N]: ", req.ActionType, req.ActionDescription)
	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		lines <- line
	}()
	var line string
	select {
	case line = <-lines:
	case <-time.After(time.Until(req.TimeoutAt)):
		return approval.ResumePayload{Error: "approval_timeout"}, nil
	case <-ctx.Done():
		return approval.ResumePayload{}, ctx.Err()
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return approval.ResumePayload{Decision: "approve", Approver: "cli"}, nil
	default:
		return approval.ResumePayload{Decision: "reject", Rejector: "cli"}, nil
	}
}

func llmToolSpecs() []llm.ToolSpec {
	return []llm.ToolSpec{
		{Name: "web_search", Description: "Search the public web.", InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)},
		{Name: "search_memory", Description: "Search stored research documents.", InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)},
		{Name: "store_memory", Description: "Persist a final answer.", InputSchema: json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"}},"required":["content"]}`)},
		{Name: "get_current_time", Description: "Return the current time.", InputSchema: json.RawMessage(`{"type":"object","properties":{}}`)},
	}
}
