// Package scheduler implements the Action Scheduler (spec §4.F): the state
// machine and dispatch-eligibility logic driving WSG Action nodes from
// Queued through Dispatched, Running, and finally either removal (success)
// or Failed, with an OnHold pause state in between.
//
// The in-memory action-state index follows statemanager/manager.go's
// mutex-guarded map pattern; dispatch follows worker/pool.go's
// queue-draining worker loop generalized from a generic job queue to
// action dispatch, backed by the bus package rather than a direct Redis
// list (queue/redis/queue.go's Enqueue/MarkProcessing/CompleteJob/FailJob
// state transitions map directly onto Queued->Dispatched->Running->
// {removed,Failed}).
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"eve.evalgo.org/internal/bus"
	"eve.evalgo.org/internal/dvg"
	"eve.evalgo.org/internal/errkind"
	"eve.evalgo.org/internal/id"
	"eve.evalgo.org/internal/wsg"
)

// record is one action's tracked state, mirroring statemanager.OperationState
// but keyed by the action's WSG node id rather than a free-form string.
type record struct {
	actionID          id.ID
	changeSetID       id.ID
	targetComponentID id.ID
	state             wsg.ActionState
	dependencies      []id.ID
	dispatchedAt      *time.Time
	funcRunResult     wsg.FuncRunResultState
}

// Scheduler tracks every in-flight action for a single workspace instance
// and decides which Queued actions are eligible to dispatch.
type Scheduler struct {
	mu      sync.RWMutex
	actions map[id.ID]*record
	bus     bus.Transport
	subject bus.Subjects
	log     *logrus.Entry

	// wsgGraph and dvgGraph are the latest published snapshot and its
	// derived dependent-value graph. Both are swapped wholesale as new
	// snapshots/DVGs are computed upstream (copy-on-write, spec §4.D) —
	// the scheduler never mutates someone else's in-flight graph, only
	// its own reference to the latest one.
	wsgGraph *wsg.Graph
	dvgGraph *dvg.Graph
}

// New returns a Scheduler that dispatches ActionJobs over transport.
func New(transport bus.Transport, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		actions: make(map[id.ID]*record),
		bus:     transport,
		subject: bus.DefaultSubjects(),
		log:     log,
	}
}

// SetWSG installs g as the snapshot Succeed and the DVG interlock consult.
func (s *Scheduler) SetWSG(g *wsg.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wsgGraph = g
}

// WSG returns the scheduler's current snapshot reference, or nil if none has
// been installed yet.
func (s *Scheduler) WSG() *wsg.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wsgGraph
}

// SetDVG installs g as the dependent-value graph isEligible's interlock
// consults (spec §4.F dispatch-rule condition 3 / property P9).
func (s *Scheduler) SetDVG(g *dvg.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dvgGraph = g
}

// Enqueue registers action as Queued, targeting targetComponentID, with the
// given dependency set (other action ids that must reach a terminal success
// state first).
func (s *Scheduler) Enqueue(actionID, changeSetID, targetComponentID id.ID, dependencies []id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[actionID] = &record{
		actionID:          actionID,
		changeSetID:       changeSetID,
		targetComponentID: targetComponentID,
		state:             wsg.ActionQueued,
		dependencies:      dependencies,
	}
}

// Hold transitions actionID to OnHold; an OnHold action is never dispatch
// eligible until Resume is called, regardless of its dependencies.
func (s *Scheduler) Hold(actionID id.ID) error {
	return s.transition(actionID, wsg.ActionOnHold)
}

// Resume transitions actionID from OnHold back to Queued.
func (s *Scheduler) Resume(actionID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.actions[actionID]
	if !ok {
		return errkind.New(errkind.GraphInvariantViolation, fmt.Sprintf("resume: unknown action %s", actionID))
	}
	if r.state != wsg.ActionOnHold {
		return errkind.New(errkind.GraphInvariantViolation, fmt.Sprintf("resume: action %s is not OnHold", actionID))
	}
	r.state = wsg.ActionQueued
	return nil
}

func (s *Scheduler) transition(actionID id.ID, next wsg.ActionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.actions[actionID]
	if !ok {
		return errkind.New(errkind.GraphInvariantViolation, fmt.Sprintf("unknown action %s", actionID))
	}
	r.state = next
	return nil
}

// isEligible reports whether r may dispatch right now. Conditions:
// (1) the action itself is Queued, not OnHold/Dispatched/Running/Failed;
// (2) every dependency has already succeeded (is no longer tracked —
// success removes an action from the index), so a Failed dependency, which
// stays tracked, blocks its dependents rather than letting them dispatch
// against a partial result; and (3) the critical interlock, property P9:
// the action's target component
// must not appear in the currently-installed DVG's touched-component set —
// an in-flight dependent-value recalculation on that component could still
// change the inputs this action would act on, so dispatch must wait for the
// DVG to drain first.
func (s *Scheduler) isEligible(r *record) bool {
	if r.state != wsg.ActionQueued {
		return false
	}
	for _, depID := range r.dependencies {
		if _, stillTracked := s.actions[depID]; stillTracked {
			// Still pending or Failed: either way, not yet succeeded.
			return false
		}
	}
	if s.dvgGraph != nil && s.wsgGraph != nil && s.dvgGraph.Touches(s.wsgGraph, r.targetComponentID) {
		return false
	}
	return true
}

// ReadyToDispatch returns the ids of every currently eligible Queued
// action, ordered by ascending id (spec §4.F "tie-break by ascending ID").
func (s *Scheduler) ReadyToDispatch() []id.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ready []id.ID
	for actionID, r := range s.actions {
		if s.isEligible(r) {
			ready = append(ready, actionID)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return id.Less(ready[i], ready[j]) })
	return ready
}

// Dispatch marks actionID Dispatched and publishes an ActionJob wakeup on
// the bus, deduplicated by action id so redundant dispatch calls collapse
// (spec §4.G's two-message dedup pattern, reused here for action wakeups).
func (s *Scheduler) Dispatch(ctx context.Context, actionID id.ID) error {
	s.mu.Lock()
	r, ok := s.actions[actionID]
	if !ok {
		s.mu.Unlock()
		return errkind.New(errkind.GraphInvariantViolation, fmt.Sprintf("dispatch: unknown action %s", actionID))
	}
	now := time.Now()
	r.state = wsg.ActionDispatched
	r.dispatchedAt = &now
	changeSetID := r.changeSetID
	s.mu.Unlock()

	subject := s.subject.ActionDispatch(changeSetID.String(), actionID.String())
	msg := bus.Message{
		Subject: subject,
		Headers: bus.Headers{MessageID: actionID.String(), MessageType: "ActionJob"},
		Body:    []byte(actionID.String()),
	}
	if err := s.bus.Publish(ctx, msg, bus.PublishOptions{DedupKey: "action:" + actionID.String()}); err != nil {
		return errkind.Wrap(errkind.BusPublish, "dispatch action job", err)
	}
	return nil
}

// MarkRunning transitions actionID from Dispatched to Running, as the
// worker picking up the job reports it has started.
func (s *Scheduler) MarkRunning(actionID id.ID) error {
	return s.transition(actionID, wsg.ActionRunning)
}

// Succeed removes actionID from the tracked set, unblocking any dependent
// actions whose only remaining dependency was this one (spec §4.F "removed
// on success" — success is the absence of further tracking, not a fourth
// state). It also removes the action's node from the installed WSG
// snapshot and, when the action's target component is marked ToDelete with
// no resource payload left to reconcile, removes the component node too.
func (s *Scheduler) Succeed(actionID id.ID, resultState wsg.FuncRunResultState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, tracked := s.actions[actionID]
	delete(s.actions, actionID)
	_ = resultState // the result itself is persisted by the caller via internal/lhc before removal

	if !tracked || s.wsgGraph == nil {
		return
	}

	next := s.wsgGraph.Clone()
	if aw, ok := next.GetNode(actionID); ok {
		next.RemoveNode(actionID, aw.Clock)
	}
	if cw, ok := next.GetNode(r.targetComponentID); ok && cw.Component != nil &&
		cw.Component.ToDelete && len(cw.Component.ResourcePayload) == 0 {
		next.RemoveNode(r.targetComponentID, cw.Clock)
	}
	s.wsgGraph = next
}

// Fail transitions actionID to Failed. A Failed action stays tracked (so
// ReadyToDispatch can keep blocking its dependents) until the operator
// retries or cancels it.
func (s *Scheduler) Fail(actionID id.ID, resultState wsg.FuncRunResultState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.actions[actionID]
	if !ok {
		return errkind.New(errkind.GraphInvariantViolation, fmt.Sprintf("fail: unknown action %s", actionID))
	}
	r.state = wsg.ActionFailed
	r.funcRunResult = resultState
	return nil
}

// State returns actionID's current tracked state.
func (s *Scheduler) State(actionID id.ID) (wsg.ActionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.actions[actionID]
	if !ok {
		return 0, false
	}
	return r.state, true
}

// Run drives the dispatch loop until ctx is cancelled, polling
// ReadyToDispatch every interval. This generalizes worker/pool.go's
// per-worker processing loop: instead of one goroutine per queue slot
// blocking on a single queue item, one loop dispatches every currently
// eligible action each tick, since eligibility here depends on the shared
// dependency graph rather than FIFO order.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, actionID := range s.ReadyToDispatch() {
				if err := s.Dispatch(ctx, actionID); err != nil && s.log != nil {
					s.log.WithFields(logrus.Fields{
						"action_id": actionID.String(),
						"error":     err.Error(),
					}).Error("scheduler: dispatch failed")
				}
			}
		}
	}
}
