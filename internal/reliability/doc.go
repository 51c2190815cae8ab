// Package reliability provides the backoff policies shared by the broker
// clients.
//
// Two kinds of loops use them:
//   - bounded loops, such as a connection attempt that gives up after a fixed
//     number of tries (FixedDelay with a retry limit)
//   - supervision loops that retry until cancelled (any policy with
//     MaxAttempts set to Unbounded)
//
// Example usage:
//
//	policy := NewFixedDelay(5*time.Second, 4)
//	err := Retry(ctx, policy, func() error {
//	    return dial()
//	})
package reliability
