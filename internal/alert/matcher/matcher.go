// Package matcher decides which alert rules fire for one audit event. It is
// a pure filter: no mutation of rules or events, no I/O.
package matcher

import (
	"sort"

	alertdomain "github.com/stridehq/stride/internal/alert/domain"
	auditdomain "github.com/stridehq/stride/internal/audit/domain"
)

// Match returns the subset of rules that fire for the event. A rule fires
// iff it is active, belongs to the event's org, its trigger actions contain
// the event action, and its trigger entities contain the event's entity type
// or the wildcard. The result is sorted by rule id so downstream cooldown
// and delivery behaviour is deterministic for a fixed input.
func Match(event auditdomain.Event, rules []*alertdomain.AlertRule) []*alertdomain.AlertRule {
	firing := make([]*alertdomain.AlertRule, 0, len(rules))
	for _, rule := range rules {
		if rule == nil || !rule.IsActive {
			continue
		}
		if rule.OrgID != event.OrgID {
			continue
		}
		if !rule.MatchesAction(event.Action) {
			continue
		}
		if !rule.MatchesEntity(event.EntityType) {
			continue
		}
		firing = append(firing, rule)
	}
	sort.Slice(firing, func(i, j int) bool { return firing[i].ID < firing[j].ID })
	return firing
}
