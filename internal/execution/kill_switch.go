package execution

import (
	"sync"
	"time"

	"github.com/kirillm/agent-arena/pkg/utils"
)

// KillSwitch halts all trade execution across the arena until an operator
// clears it. Decision cycles keep running and persisting while it is active.
type KillSwitch struct {
	mu          sync.RWMutex
	active      bool
	activatedAt time.Time
	reason      string
	logger      *utils.Logger
}

// NewKillSwitch returns an inactive switch
func NewKillSwitch(logger *utils.Logger) *KillSwitch {
	if logger == nil {
		logger = utils.Default()
	}
	return &KillSwitch{logger: logger}
}

// Activate halts execution. Re-activating keeps the original timestamp.
func (ks *KillSwitch) Activate(reason string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if !ks.active {
		ks.activatedAt = time.Now()
	}
	ks.active = true
	ks.reason = reason

	ks.logger.Error("KILL SWITCH ACTIVATED: %s", reason)
}

// Deactivate resumes execution
func (ks *KillSwitch) Deactivate() {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if !ks.active {
		return
	}
	ks.active = false
	ks.reason = ""
	ks.activatedAt = time.Time{}

	ks.logger.Info("Kill switch deactivated")
}

func (ks *KillSwitch) IsActive() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	return ks.active
}

// GetStatus returns (active, reason, activatedAt)
func (ks *KillSwitch) GetStatus() (bool, string, time.Time) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	return ks.active, ks.reason, ks.activatedAt
}
