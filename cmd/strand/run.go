package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/strandworks/strand/pkg/strand"
	"github.com/strandworks/strand/pkg/strand/event"
	"github.com/strandworks/strand/pkg/strand/provider"
	"github.com/strandworks/strand/pkg/strand/spec"
)

var (
	runThread  string
	runSets    []string
	runReplies []string
)

var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Execute a workflow",
	Long: `Run compiles a workflow description and executes it for a
thread. Without a real provider wired in, generation echoes the
rendered prompt and tool calls echo their arguments, which is enough to
exercise routing, fan-out, and interrupts locally.

When the run suspends on an interrupt node, the awaiting prompt is
printed; continue it later with "strand resume".`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runThread, "thread", "", "thread id (default: generated)")
	runCmd.Flags().StringArrayVar(&runSets, "set", nil, "initial state value, key=value (repeatable)")
	runCmd.Flags().StringArrayVar(&runReplies, "reply", nil, "canned generator reply (repeatable)")
}

func runRun(cmd *cobra.Command, args []string) error {
	g, err := spec.LoadFile(args[0])
	if err != nil {
		return err
	}

	initial := strand.State{}
	for _, kv := range runSets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		initial[key] = value
	}

	threadID := runThread
	if threadID == "" {
		threadID = uuid.New().String()
	}

	rt, bus, cleanup, err := buildRuntime(g)
	if err != nil {
		return err
	}
	defer cleanup()
	defer bus.Close()

	result, err := rt.Run(cmd.Context(), threadID, initial)
	if err != nil {
		return err
	}
	return printResult(cmd, threadID, result)
}

// buildRuntime assembles a runtime with the runner's providers,
// checkpoint store, and progress printing.
func buildRuntime(g *spec.GraphSpec) (*strand.Runtime, *event.Bus, func(), error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := openStore(settings, g.Checkpointer)
	if err != nil {
		return nil, nil, nil, err
	}

	bus := event.NewBus()
	if verbose {
		sub := bus.Subscribe()
		go func() {
			for evt := range sub.Events() {
				fmt.Printf("[%s] %s %s\n", evt.Timestamp.Format("15:04:05"), evt.Type, evt.Node)
			}
		}()
	}

	var gen provider.Generator = echoGenerator{}
	if len(runReplies) > 0 {
		gen = provider.NewScriptedGenerator(runReplies...)
	}

	rt, err := strand.Compile(g,
		strand.WithGenerator(gen),
		strand.WithToolInvoker(echoInvoker{}),
		strand.WithCheckpointer(store),
		strand.WithLogger(newLogger(settings)),
		strand.WithEvents(bus),
		strand.WithMapWorkers(settings.MapWorkers),
	)
	if err != nil {
		bus.Close()
		store.Close()
		return nil, nil, nil, err
	}

	return rt, bus, func() { store.Close() }, nil
}

func printResult(cmd *cobra.Command, threadID string, result *strand.Result) error {
	if result.Interrupt != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "awaiting input on thread %s\n", threadID)
		fmt.Fprintf(cmd.OutOrStdout(), "node: %s\n", result.Interrupt.Node)
		if result.Interrupt.Prompt != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "prompt: %s\n", result.Interrupt.Prompt)
		}
		if result.Interrupt.Value != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "value: %v\n", result.Interrupt.Value)
		}
		return nil
	}

	data, err := json.MarshalIndent(result.State, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// echoGenerator answers every prompt with the prompt itself.
type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, req provider.GenerateRequest) (*provider.GenerateResponse, error) {
	return &provider.GenerateResponse{Content: req.Prompt}, nil
}

// echoInvoker answers every tool call with its own arguments.
type echoInvoker struct{}

func (echoInvoker) Invoke(_ context.Context, req provider.ToolRequest) (*provider.ToolResult, error) {
	return &provider.ToolResult{Output: req.Args}, nil
}
