// Package supervisor runs the connectivity loop: bring the WiFi link up,
// open a broker session, subscribe the registry's topics and poll for
// messages until anything fails, then tear everything down and start over
// after a fixed delay.
//
// # Cycle
//
//	Idle ─▶ LinkUp ─▶ SessionUp ─▶ Serving ─▶ TearDown ─▶ Idle (after RetryDelay)
//
// Every cycle uses a fresh Link and a fresh Session. The registry's store
// is shared across cycles, so the last received values survive failures.
//
// Teardown is deferred: whatever step fails, and even if a step panics,
// the session (if one was created) and the link are each disconnected
// exactly once. Disconnect errors are logged and ignored.
//
// # Concurrency
//
// Run executes on one goroutine. Message dispatch happens inside
// Session.PollOnce on that goroutine, so the store has a single writer.
// Stats and State may be read from any goroutine.
//
// # Shutdown
//
// Cancelling the context passed to Run stops the loop. The current cycle
// is torn down and recorded before Run returns.
package supervisor
