// Package uplink owns the node's TCP connection to the collector and the
// task that streams queued readings over it.
//
// # Connection manager
//
// Manager runs a three-state machine (Disconnected, Connecting, Connected)
// on its own goroutine:
//
//	link down          -> release any connection, wait LinkDownPoll (2s)
//	Disconnected       -> Connecting -> dial
//	  dial ok          -> Connected, wait ConnectedPoll (5s)
//	  dial failed      -> Disconnected, wait RetryDelay (5s)
//	Connected, link up -> wait ConnectedPoll
//
// Waits end early when the link flips. Only the manager goroutine dials,
// so at most one connect is ever in flight.
//
// Other goroutines use the connection through a Handle. A handle is stamped
// with the connection generation; Write rejects stale handles and
// ReportFailure only releases the connection the handle was issued for.
// Release takes the write lock, so it waits for an in-flight Write.
//
// # Transmitter
//
// Transmitter pops readings from the queue and writes each as one
// line-delimited JSON record. A failed write releases the connection and
// the reading is dropped; nothing is retried or re-queued.
package uplink
