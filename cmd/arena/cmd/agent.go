package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillm/agent-arena/internal/scheduler"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Operate on a single agent",
}

var agentCycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one decision cycle for an agent now",
	Long: `Cycle runs a single decision cycle in the foreground, under the same
lease the scheduler uses, and prints the result as JSON. It fails with a
lease error while another process is running the same agent.`,
	RunE: runAgentCycle,
}

var (
	acTournament string
	acAgent      string
	acRecover    bool
)

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.AddCommand(agentCycleCmd)

	agentCycleCmd.Flags().StringVarP(&acTournament, "tournament", "t", "", "tournament id (required)")
	agentCycleCmd.Flags().StringVarP(&acAgent, "agent", "a", "", "agent id (required)")
	agentCycleCmd.Flags().BoolVar(&acRecover, "recover", false, "rehydrate from the stored snapshot first")
	agentCycleCmd.MarkFlagRequired("tournament")
	agentCycleCmd.MarkFlagRequired("agent")
}

func runAgentCycle(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, err := a.store.GetEnrollment(ctx, acTournament, acAgent)
	if err != nil {
		return fmt.Errorf("agent %s in tournament %s: %w", acAgent, acTournament, err)
	}

	sched := scheduler.New(a.schedulerConfig(), scheduler.Deps{
		Store:    a.store,
		Factory:  a.factory,
		Notifier: a.notifier,
		Observer: a.metrics,
		Logger:   a.logger,
	})

	res, err := sched.RunCycle(ctx, *e, acRecover)
	if res != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil {
			return encErr
		}
		if res.Failure != nil {
			a.logger.Warn("Cycle finished with a failure: %v", res.Failure)
		}
	}
	return err
}
