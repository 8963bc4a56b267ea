// Package cooldown suppresses duplicate notifications for a rule within its
// configured window.
package cooldown

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tracker keeps the last-fired timestamp per (rule, org) key and answers
// whether a rule may fire again. The check and the state update happen under
// one lock so two concurrent matches cannot both pass within a window.
type Tracker struct {
	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewTracker constructs an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{lastFired: make(map[string]time.Time)}
}

// key is deliberately (rule, org), not (rule, org, entity): a rule firing on
// a bulk operation should collapse into one notification. Extending
// suppression to per-entity granularity means extending this key.
func key(ruleID, orgID snowflake.ID) string {
	return fmt.Sprintf("%d:%d", ruleID, orgID)
}

// Allow atomically checks the window and records the firing when permitted.
// cooldownMinutes == 0 always allows and keeps no state, so rules that never
// suppress cannot grow the map.
func (t *Tracker) Allow(ruleID, orgID snowflake.ID, cooldownMinutes int, now time.Time) bool {
	if cooldownMinutes <= 0 {
		return true
	}
	window := time.Duration(cooldownMinutes) * time.Minute

	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(ruleID, orgID)
	last, ok := t.lastFired[k]
	if ok && now.Sub(last) < window {
		return false
	}
	t.lastFired[k] = now
	return true
}

// LastFired reports the recorded timestamp for a key, mainly for tests and
// observability.
func (t *Tracker) LastFired(ruleID, orgID snowflake.ID) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastFired[key(ruleID, orgID)]
	return last, ok
}
