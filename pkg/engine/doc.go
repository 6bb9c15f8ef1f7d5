// Package engine provides the convergence driver and notification graph for deckhand.
//
// # Overview
//
// A converge run takes an ordered tree of Units. Each Unit applies one
// action to one resource (server, project, job, node source, ACL or user)
// through an ordered list of typed Steps:
//
//  1. Check - observe the current state without side effects
//  2. Apply - close the gap, only when Check reported a difference
//  3. Notify - queue declared notifications when something changed
//  4. Flush - fire queued notifications once, in FIFO order
//  5. Children - converge contained resources in declaration order, then
//     flush the delayed edges they queued
//
// Running the same tree twice against an unchanged host performs no Apply
// and fires no on-change notification the second time.
//
// # Notifications
//
// Notification edges are declared statically on steps and units and are
// validated before the first step runs. Edges queue against the declaring
// unit, or against its container when marked Delayed, and fire when that
// unit is flushed. Delayed edges of root units fire at the end of the run. Duplicate (target, action) pairs in a flush collapse to
// a single firing, so three user changes produce one realm rebuild:
//
//	users := []*engine.Unit{alice, bob, carol}
//	for _, u := range users {
//	    u.Notifies = []engine.Notification{{
//	        Target:  serverID,
//	        Action:  engine.ActionRebuildRealm,
//	        Trigger: engine.TriggerAlways,
//	        Delayed: true,
//	    }}
//	}
//	server.Children = users
//	summary, err := engine.NewDriver(opts).Run(ctx, []*engine.Unit{server})
//
// # Errors
//
// Every failure is an *EngineError carrying a Kind (validation,
// external_command, timeout, unimplemented, internal) plus the resource and
// operation it happened in. Use the Is* predicates or errors.As to branch on
// the kind. The first failure aborts the run; there is no rollback.
//
// # Dry Run
//
// With Options.DryRun set, the driver runs every Check, records what would
// change and which notifications would fire, and performs no Apply.
package engine
