// Command demo wires the tool catalog, execution ledger, and workflow
// orchestrator together and runs a small multi-agent scenario end to end. It
// uses in-memory stores by default; pass -redis to back the ledger with Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	"github.com/appforge/toolflow/agent"
	"github.com/appforge/toolflow/ledger"
	ledgerinmem "github.com/appforge/toolflow/ledger/inmem"
	ledgerredis "github.com/appforge/toolflow/ledger/redis"
	"github.com/appforge/toolflow/sink"
	sinkpulse "github.com/appforge/toolflow/sink/pulse"
	"github.com/appforge/toolflow/telemetry"
	threadinmem "github.com/appforge/toolflow/thread/inmem"
	"github.com/appforge/toolflow/tool"
	"github.com/appforge/toolflow/tool/catalog"
	"github.com/appforge/toolflow/tool/dynamic"
	dynamicinmem "github.com/appforge/toolflow/tool/dynamic/inmem"
	"github.com/appforge/toolflow/workflow"
)

func main() {
	var (
		redisF    = flag.String("redis", "", "Redis address for the execution ledger (e.g. localhost:6379); in-memory when empty")
		workflowF = flag.String("workflow", "", "Path to a YAML workflow definition; a built-in demo workflow is used when empty")
		dbgF      = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	// Setup logger.
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}
	logger := telemetry.NewClueLogger()

	// Ledger and event sink: Redis-backed when configured, in-memory and no-op
	// otherwise.
	var (
		led    ledger.Store
		events sink.Sink = sink.Noop{}
	)
	if *redisF != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: *redisF})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf(ctx, err, "cannot reach redis at %q", *redisF)
		}
		defer rdb.Close()
		store, err := ledgerredis.New(ledgerredis.Options{Client: rdb, Logger: logger})
		if err != nil {
			log.Fatal(ctx, err)
		}
		led = store
		events, err = sinkpulse.New(sinkpulse.Options{Redis: rdb, StreamMaxLen: 1000})
		if err != nil {
			log.Fatal(ctx, err)
		}
		log.Printf(ctx, "using redis ledger and event stream at %s", *redisF)
	} else {
		led = ledgerinmem.New()
		log.Printf(ctx, "using in-memory ledger")
	}

	// Seed a user-defined tool alongside the built-ins.
	defs := dynamicinmem.New()
	if err := defs.SaveDefinition(ctx, &dynamic.Definition{
		Name:        "shout",
		Description: "Uppercases the text parameter and appends an exclamation mark",
		Expression:  `upper(params.text) + "!"`,
	}); err != nil {
		log.Fatal(ctx, err)
	}
	dynOrigin, err := dynamic.NewOrigin(defs, logger)
	if err != nil {
		log.Fatal(ctx, err)
	}

	cat := catalog.New(catalog.Options{
		Origins: []catalog.Origin{
			&catalog.StaticOrigin{
				OriginName: "builtin",
				Descriptors: []tool.Descriptor{
					{
						Name:        "word_count",
						Description: "Counts words in the text parameter",
						Category:    tool.CategoryData,
						Executor: tool.ExecutorFunc(func(_ context.Context, params map[string]any) (any, error) {
							text, _ := params["text"].(string)
							return len(strings.Fields(text)), nil
						}),
					},
				},
			},
			dynOrigin,
		},
		Ledger: led,
		Logger: logger,
		Sink:   events,
	})
	if err := cat.Initialize(ctx); err != nil {
		log.Fatal(ctx, err)
	}

	// Agents drive their work through catalog tools.
	agents := agent.StaticResolver{
		"editor": agent.Func{
			AgentName: "editor",
			RunFunc: func(ctx context.Context, input, _ string) (agent.Output, error) {
				out, err := cat.ExecuteTool(ctx, "shout", map[string]any{"text": input})
				if err != nil {
					return agent.Output{}, err
				}
				return agent.Output{Text: fmt.Sprint(out)}, nil
			},
		},
		"analyst": agent.Func{
			AgentName: "analyst",
			RunFunc: func(ctx context.Context, input, _ string) (agent.Output, error) {
				out, err := cat.ExecuteTool(ctx, "word_count", map[string]any{"text": input})
				if err != nil {
					return agent.Output{}, err
				}
				return agent.Output{Text: fmt.Sprintf("%q has %v words", input, out)}, nil
			},
		},
	}

	threads := threadinmem.New()
	orch, err := workflow.New(workflow.Options{
		Resolver: agents,
		Threads:  threads,
		Logger:   logger,
		Sink:     events,
	})
	if err != nil {
		log.Fatal(ctx, err)
	}

	// Build the workflow, from a YAML file when one is given.
	var w *workflow.Workflow
	if *workflowF != "" {
		def, err := workflow.LoadDefinition(*workflowF)
		if err != nil {
			log.Fatal(ctx, err)
		}
		w = orch.CreateWorkflowFromDefinition(def)
	} else {
		w = orch.CreateWorkflow("demo", "edit then analyze", []workflow.StepInput{
			{AgentID: "editor", Input: "hello orchestrated world"},
			{AgentID: "analyst", Input: "hello orchestrated world"},
		})
	}

	done, err := orch.ExecuteWorkflow(ctx, w.ID)
	if err != nil {
		log.Fatal(ctx, err)
	}
	log.Printf(ctx, "workflow %s finished with status %s", done.ID, done.Status)
	for i, step := range done.Steps {
		if step.Status == workflow.StepFailed {
			log.Printf(ctx, "step %d (%s): failed: %s", i, step.AgentID, step.Error)
			continue
		}
		log.Printf(ctx, "step %d (%s): %s", i, step.AgentID, step.Result)
	}
	if done.Status == workflow.StatusFailed {
		os.Exit(1)
	}

	// Relay a message between the two agents, sharing the first step's thread.
	reply, err := orch.AgentToAgent(ctx, "editor", "analyst", "summarize our exchange", workflow.AgentToAgentOptions{
		SourceThreadID:   done.Steps[0].ThreadID,
		ShareFullHistory: true,
	})
	if err != nil {
		log.Fatal(ctx, err)
	}
	log.Printf(ctx, "agent-to-agent reply: %s", reply)

	// Show the ledger view of what just ran.
	for _, name := range []string{"shout", "word_count"} {
		stats, err := led.Stats(ctx, name)
		if err != nil {
			log.Fatal(ctx, err)
		}
		log.Printf(ctx, "tool %s: %d executions, %d ok, %d failed, avg %.1fms",
			name, stats.TotalExecutions, stats.SuccessfulExecutions, stats.FailedExecutions, stats.AvgExecutionTimeMs)
	}
}
