package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strandworks/strand/pkg/strand/spec"
)

var (
	resumeThread string
	resumeInput  string
)

var resumeCmd = &cobra.Command{
	Use:   "resume <workflow.yaml>",
	Short: "Continue an interrupted workflow",
	Long: `Resume loads the checkpoint saved when a thread suspended on
an interrupt node, binds the supplied input to the interrupt's resume
key, and continues execution.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeThread, "thread", "", "thread id to resume")
	resumeCmd.Flags().StringVar(&resumeInput, "input", "", "value bound to the interrupt's resume key")
	_ = resumeCmd.MarkFlagRequired("thread")
}

func runResume(cmd *cobra.Command, args []string) error {
	g, err := spec.LoadFile(args[0])
	if err != nil {
		return err
	}

	rt, bus, cleanup, err := buildRuntime(g)
	if err != nil {
		return err
	}
	defer cleanup()
	defer bus.Close()

	result, err := rt.Resume(cmd.Context(), resumeThread, resumeInput)
	if err != nil {
		return fmt.Errorf("resume thread %s: %w", resumeThread, err)
	}
	return printResult(cmd, resumeThread, result)
}
