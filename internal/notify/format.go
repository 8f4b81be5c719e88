package notify

import (
	"fmt"
	"time"
)

// PersistenceAlert reports an agent whose cycles keep failing to persist
func PersistenceAlert(agentID, tournamentID string, streak int, err error) string {
	return fmt.Sprintf("⚠️ Persistence failing\nAgent: %s\nTournament: %s\nConsecutive failures: %d\nLast error: %v",
		agentID, tournamentID, streak, err)
}

// TaskFailedAlert reports a task that exhausted its retries
func TaskFailedAlert(task string, attempts int, err error) string {
	return fmt.Sprintf("❌ Task failed after %d attempts\nTask: %s\nError: %v", attempts, task, err)
}

// TournamentStartedAlert announces a tournament going live
func TournamentStartedAlert(name string, agents int, duration time.Duration) string {
	return fmt.Sprintf("🏁 Tournament %s is live\nAgents: %d\nDuration: %s", name, agents, FormatDuration(duration))
}

// TournamentCompletedAlert announces the winner
func TournamentCompletedAlert(name, winner string, totalValue float64) string {
	if winner == "" {
		return fmt.Sprintf("🏆 Tournament %s completed without a winner", name)
	}
	return fmt.Sprintf("🏆 Tournament %s completed\nWinner: %s\nPortfolio value: $%.2f", name, winner, totalValue)
}

// FormatDuration renders d in the largest two units
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, minutes)
	} else {
		days := int(d.Hours()) / 24
		hours := int(d.Hours()) % 24
		return fmt.Sprintf("%dd %dh", days, hours)
	}
}
