package engine

import (
	"context"
	"fmt"
)

// Trigger decides when a declared notification is queued.
type Trigger string

const (
	// TriggerOnChange queues the notification only when the declaring step
	// or unit changed something.
	TriggerOnChange Trigger = "on_change"

	// TriggerAlways queues the notification every time the unit runs.
	TriggerAlways Trigger = "always"
)

// Notification is a statically declared edge from a step or unit to a target
// resource action.
type Notification struct {
	Target  ResourceID `json:"target"`
	Action  Action     `json:"action"`
	Trigger Trigger    `json:"trigger,omitempty"`

	// Delayed queues the edge against the declaring unit's container so it
	// flushes once the container's whole subtree has converged, letting
	// siblings share a single firing.
	Delayed bool `json:"delayed,omitempty"`
}

// Handler performs a notified action on the resource it is registered for.
type Handler func(ctx context.Context, action Action) (Result, error)

// maxFlushRounds bounds re-entrant flushing when handlers queue new edges
// against the resource being flushed.
const maxFlushRounds = 8

type edge struct {
	source ResourceID
	target ResourceID
	action Action
}

type edgeKey struct {
	target ResourceID
	action Action
}

// Graph holds queued notification edges and the handlers that fire them.
// Queue and Flush are its only mutating operations during a run; it is not
// safe for concurrent use.
type Graph struct {
	queues   map[ResourceID][]edge
	order    []ResourceID
	handlers map[ResourceID]Handler
	dryRun   bool
}

// NewGraph creates an empty notification graph. In dry-run mode Flush reports
// the edges that would fire without invoking any handler.
func NewGraph(dryRun bool) *Graph {
	return &Graph{
		queues:   make(map[ResourceID][]edge),
		handlers: make(map[ResourceID]Handler),
		dryRun:   dryRun,
	}
}

// Register installs the handler for notifications targeting id.
func (g *Graph) Register(id ResourceID, h Handler) {
	g.handlers[id] = h
}

// Has reports whether a handler is registered for id.
func (g *Graph) Has(id ResourceID) bool {
	_, ok := g.handlers[id]
	return ok
}

// Notify queues a directed edge against source. The edge fires when source
// is flushed.
func (g *Graph) Notify(source, target ResourceID, action Action) {
	if _, seen := g.queues[source]; !seen {
		g.order = append(g.order, source)
	}
	g.queues[source] = append(g.queues[source], edge{source: source, target: target, action: action})
}

// Pending returns the number of edges queued against source.
func (g *Graph) Pending(source ResourceID) int {
	return len(g.queues[source])
}

// Sources returns every resource with queued edges, in first-queued order.
func (g *Graph) Sources() []ResourceID {
	out := make([]ResourceID, 0, len(g.order))
	for _, id := range g.order {
		if len(g.queues[id]) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// Flush fires every edge queued against source exactly once, in FIFO order.
// Duplicate (target, action) pairs within one flush collapse into the first
// occurrence. Firing is synchronous; the first handler error stops the flush
// and is returned with the edge identity attached.
func (g *Graph) Flush(ctx context.Context, source ResourceID) ([]NotificationResult, error) {
	var results []NotificationResult

	for round := 0; len(g.queues[source]) > 0; round++ {
		if round >= maxFlushRounds {
			return results, NewInternalError(
				fmt.Sprintf("notifications for %s keep re-queueing after %d rounds", source, maxFlushRounds), nil).
				WithResource(source.String()).
				WithOperation("flush")
		}

		queued := g.queues[source]
		g.queues[source] = nil

		var keys []edgeKey
		counts := make(map[edgeKey]int)
		for _, e := range queued {
			k := edgeKey{target: e.target, action: e.action}
			if counts[k] == 0 {
				keys = append(keys, k)
			}
			counts[k]++
		}

		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				return results, err
			}

			res := NotificationResult{
				Source:    source,
				Target:    k.target,
				Action:    k.action,
				Collapsed: counts[k] - 1,
				DryRun:    g.dryRun,
			}

			h, ok := g.handlers[k.target]
			if !ok {
				return results, NewValidationError(
					fmt.Sprintf("no handler for notification %s on %s", k.action, k.target), nil).
					WithCode(ErrCodeUnknownTarget).
					WithResource(source.String()).
					WithOperation(string(k.action))
			}

			if g.dryRun {
				res.Changed = true
				results = append(results, res)
				continue
			}

			out, err := h(ctx, k.action)
			if err != nil {
				return results, Attach(err, k.target.String(), string(k.action))
			}
			res.Changed = out.Changed
			results = append(results, res)
		}
	}

	return results, nil
}
