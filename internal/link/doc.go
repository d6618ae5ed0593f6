// Package link owns the station-mode WiFi connection lifecycle.
//
// The Manager is a scheduler task that brings the radio up, associates with
// the access point and recovers from disconnects, forever:
//
//	down ──► starting ──► connecting ──► connected
//	            │              │              │ disconnect event
//	            ▼              ▼              ▼
//	          disconnected ◄────────────────────
//	            │
//	            └─(5 s)──► starting (radio not up) or connecting
//
// Every radio-level failure (credential rejection, start failure, association
// failure) is logged and moves the link to disconnected, then retried after a
// fixed delay; none of them stops the task. A disconnect is followed by a
// settle delay before re-association so a flapping access point does not
// cause a reconnect storm.
//
// Exactly one of start-and-retry, connect-and-retry or watch-disconnect is
// active at any time, and at most one association attempt is ever in flight.
//
// The radio itself is a collaborator behind the Radio interface; the Linux
// host implementation lives in internal/host.
package link
