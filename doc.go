// Package clawless bridges a chat platform (Telegram or Slack) to a
// locally-spawned CLI coding agent that speaks the Agent Client Protocol
// (ACP) over NDJSON, streams the agent's reply back into the chat as a
// live-updated message, and offloads heavyweight requests to a one-shot
// background worker while the foreground conversation keeps going.
//
// # Architecture
//
// The main components are:
//
//   - Transport: JSON-RPC 2.0 over NDJSON framing around the agent's stdio
//   - Supervisor: spawns and gracefully terminates the agent process
//   - Runtime: owns the ACP session, prewarm, prompt execution, timeouts
//   - Queue: strict FIFO serialization of inbound chat messages
//   - LiveMessage: debounced streaming preview management
//   - Hybrid pipeline: QUICK/ASYNC mode detection
//   - Orchestrator: wires everything together and owns process-wide state
//
// Chat-platform adapters, the scheduler, the HTTP callback surface,
// configuration, and the semantic-recall store live in subpackages.
package clawless
