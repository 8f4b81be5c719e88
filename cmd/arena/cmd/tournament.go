package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/scheduler"
)

var tournamentCmd = &cobra.Command{
	Use:   "tournament",
	Short: "Create and inspect tournaments",
}

var tournamentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a tournament and enroll agents",
	Long: `Create registers an upcoming tournament. The scheduler starts it at
--start, initializes every agent with the starting cash of the policy and
completes it after --duration.

Agents are given as name:personality[:risk], for example:
  arena tournament create --name "Weekly #1" --duration 168h \
    --agent Bull:aggressive --agent Turtle:conservative:0.2`,
	RunE: createTournament,
}

var tournamentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tournaments",
	RunE:  listTournaments,
}

var tournamentStatusCmd = &cobra.Command{
	Use:   "status <tournament-id>",
	Short: "Show a tournament's standings",
	Args:  cobra.ExactArgs(1),
	RunE:  tournamentStatus,
}

var (
	tcName      string
	tcStart     string
	tcDuration  time.Duration
	tcPrizePool string
	tcAgents    []string
	tlStatus    string
)

func init() {
	rootCmd.AddCommand(tournamentCmd)
	tournamentCmd.AddCommand(tournamentCreateCmd, tournamentListCmd, tournamentStatusCmd)

	tournamentCreateCmd.Flags().StringVarP(&tcName, "name", "n", "", "tournament name (required)")
	tournamentCreateCmd.Flags().StringVar(&tcStart, "start", "", "start time in RFC3339 (default now)")
	tournamentCreateCmd.Flags().DurationVarP(&tcDuration, "duration", "d", 7*24*time.Hour, "tournament length")
	tournamentCreateCmd.Flags().StringVar(&tcPrizePool, "prize-pool", "0", "prize pool in USDC")
	tournamentCreateCmd.Flags().StringArrayVarP(&tcAgents, "agent", "a", nil, "agent as name:personality[:risk] (repeatable)")
	tournamentCreateCmd.MarkFlagRequired("name")
	tournamentCreateCmd.MarkFlagRequired("agent")

	tournamentListCmd.Flags().StringVarP(&tlStatus, "status", "s", "", "filter by status (upcoming, live, completed)")
}

// parseAgent reads name:personality[:risk]
func parseAgent(tournamentID, arg string) (domain.Enrollment, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return domain.Enrollment{}, fmt.Errorf("%w: agent %q, want name:personality[:risk]", domain.ErrInvalidInput, arg)
	}

	e := domain.Enrollment{
		TournamentID: tournamentID,
		AgentID:      uuid.NewString(),
		Name:         parts[0],
		Personality:  parts[1],
	}
	if len(parts) == 3 {
		risk, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || risk <= 0 || risk > 1 {
			return domain.Enrollment{}, fmt.Errorf("%w: risk of %q must be within (0, 1]", domain.ErrInvalidInput, arg)
		}
		e.RiskScore = risk
	}
	return e, nil
}

func createTournament(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	start := time.Now().UTC()
	if tcStart != "" {
		if start, err = time.Parse(time.RFC3339, tcStart); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}
	if tcDuration <= 0 {
		return fmt.Errorf("--duration must be positive")
	}
	prize, err := decimal.NewFromString(tcPrizePool)
	if err != nil {
		return fmt.Errorf("invalid --prize-pool: %w", err)
	}

	t := &domain.Tournament{
		ID:        uuid.NewString(),
		Name:      tcName,
		Status:    domain.StatusUpcoming,
		StartDate: start,
		EndDate:   start.Add(tcDuration),
		PrizePool: prize,
	}

	enrollments := make([]domain.Enrollment, 0, len(tcAgents))
	for _, arg := range tcAgents {
		e, err := parseAgent(t.ID, arg)
		if err != nil {
			return err
		}
		if e.RiskScore == 0 {
			e.RiskScore = a.policy.RiskScoreFor(e.Personality, domain.DefaultRiskScore)
		}
		enrollments = append(enrollments, e)
	}

	if err := a.store.CreateTournament(ctx, t); err != nil {
		return err
	}
	for _, e := range enrollments {
		if err := a.store.Enroll(ctx, e); err != nil {
			return err
		}
	}

	fmt.Printf("Tournament %s created: %s\n", t.Name, t.ID)
	fmt.Printf("  Runs %s -> %s\n", t.StartDate.Format(time.RFC3339), t.EndDate.Format(time.RFC3339))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  AGENT\tID\tPERSONALITY\tRISK")
	for _, e := range enrollments {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%.2f\n", e.Name, e.AgentID, e.Personality, e.RiskScore)
	}
	return w.Flush()
}

func listTournaments(cmd *cobra.Command, args []string) error {
	_, _, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	tournaments, err := store.ListTournaments(ctx, tlStatus)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSTART\tEND\tWINNER")
	for _, t := range tournaments {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Status,
			t.StartDate.Format(time.RFC3339), t.EndDate.Format(time.RFC3339), t.WinnerAgentID)
	}
	return w.Flush()
}

func tournamentStatus(cmd *cobra.Command, args []string) error {
	_, _, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	t, err := store.GetTournament(ctx, args[0])
	if err != nil {
		return err
	}
	enrollments, err := store.ListEnrollments(ctx, t.ID)
	if err != nil {
		return err
	}
	states, err := store.ListAgentStates(ctx, t.ID)
	if err != nil {
		return err
	}

	names := make(map[string]string, len(enrollments))
	for _, e := range enrollments {
		names[e.AgentID] = e.Name
	}
	ranks := scheduler.ComputeRanks(states)

	fmt.Printf("%s (%s) %s\n", t.Name, t.ID, strings.ToUpper(t.Status))
	fmt.Printf("  %s -> %s, prize pool $%s\n",
		t.StartDate.Format(time.RFC3339), t.EndDate.Format(time.RFC3339), t.PrizePool.StringFixed(2))
	if t.WinnerAgentID != "" {
		fmt.Printf("  Winner: %s (%s)\n", names[t.WinnerAgentID], t.WinnerAgentID)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tAGENT\tVALUE\tCASH\tROI\tTRADES\tWIN RATE\tUPDATED")
	for _, st := range sortedByRank(states, ranks) {
		fmt.Fprintf(w, "%d\t%s\t$%s\t$%s\t%s%%\t%d\t%s%%\t%s\n",
			ranks[st.AgentID], names[st.AgentID],
			st.TotalValue.StringFixed(2), st.Cash.StringFixed(2),
			st.ROI.Shift(2).StringFixed(2), st.NumTrades, st.WinRate.Shift(2).StringFixed(1),
			st.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func sortedByRank(states []domain.AgentState, ranks map[string]int) []domain.AgentState {
	out := make([]domain.AgentState, len(states))
	for _, st := range states {
		out[ranks[st.AgentID]-1] = st
	}
	return out
}
