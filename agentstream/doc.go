// Package agentstream defines the common event vocabulary that provider SDK
// event types implement to participate in the generic adapter bridge.
//
// Each agent provider (a CLI wrapper, an emitter-style SDK, a replayed
// trace) exposes its own native event structs. Rather than forcing every
// provider onto one struct shape, providers implement these small
// interfaces on their native types; the adapter bridge type-switches on
// them to produce normalized bus events. SDK events that implement none of
// these interfaces are silently skipped.
//
// Method names are prefixed with "Stream" to avoid collisions with SDK
// struct fields.
package agentstream
