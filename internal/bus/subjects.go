package bus

import "fmt"

// Subjects builds the hierarchical subject names from spec §6, under
// configurable prefixes (defaults: "rebaser", "layerdb", "audit_logs",
// "actions"). The "pending_events" prefix is fixed, not configurable.
type Subjects struct {
	RebaserPrefix string
	LayerDBPrefix string
	AuditPrefix   string
	ActionPrefix  string
}

// DefaultSubjects returns the subject-prefix set named in spec §6.
func DefaultSubjects() Subjects {
	return Subjects{
		RebaserPrefix: "rebaser",
		LayerDBPrefix: "layerdb",
		AuditPrefix:   "audit_logs",
		ActionPrefix:  "actions",
	}
}

// ActionDispatch is actions.dispatch.$cs.$action — the Action Scheduler's
// own wakeup channel, separate from the Rebaser's per-change-set task
// stream: an action dispatch is a job for a specific action, not a
// rebase-task wakeup for the whole change set.
func (s Subjects) ActionDispatch(changeSetID, actionID string) string {
	return fmt.Sprintf("%s.dispatch.%s.%s", s.ActionPrefix, changeSetID, actionID)
}

// RebaserRequests is rebaser.requests.$wp.$cs.
func (s Subjects) RebaserRequests(workspaceID, changeSetID string) string {
	return fmt.Sprintf("%s.requests.%s.%s", s.RebaserPrefix, workspaceID, changeSetID)
}

// RebaserTasks is rebaser.tasks.$wp.$cs.
func (s Subjects) RebaserTasks(workspaceID, changeSetID string) string {
	return fmt.Sprintf("%s.tasks.%s.%s", s.RebaserPrefix, workspaceID, changeSetID)
}

// LayerDBEvents is layerdb.events.$wp.$cs.$table.$op.
func (s Subjects) LayerDBEvents(workspaceID, changeSetID, table, op string) string {
	return fmt.Sprintf("%s.events.%s.%s.%s.%s", s.LayerDBPrefix, workspaceID, changeSetID, table, op)
}

// PendingEventsAuditLog is pending_events.audit_log.$wp.$cs.$session.
func (s Subjects) PendingEventsAuditLog(workspaceID, changeSetID, sessionID string) string {
	return fmt.Sprintf("pending_events.audit_log.%s.%s.%s", workspaceID, changeSetID, sessionID)
}

// AuditLogs is audit_logs.$wp.
func (s Subjects) AuditLogs(workspaceID string) string {
	return fmt.Sprintf("%s.%s", s.AuditPrefix, workspaceID)
}
