// Package pipeline provides the onion-model event pipeline.
//
// A Scheduler drives one event at a time through an ordered list of stages.
// Each stage either completes, letting the scheduler move on, or suspends:
// the scheduler then runs every later stage recursively and afterwards calls
// the stage's post-phase continuation.
//
// # Execution order
//
// Given stages A, B and C that all suspend, the observed order is:
//
//	A.pre, B.pre, C.pre, C.post, B.post, A.post
//
// # Short-circuit
//
// Any stage may stop the event through its control token. Stages after the
// stopping point are skipped; stages that already suspended still get their
// post-phase while the recursion unwinds.
//
// # Fault isolation
//
// An error or panic from a stage is logged with the stage name and treated as
// Complete. Initialization errors are logged and never block other stages.
//
// # Registration
//
// Stages are built by name from a Registry populated in composition code, see
// stages.RegisterBuiltins. DefaultOrder lists the built-in chain.
package pipeline
