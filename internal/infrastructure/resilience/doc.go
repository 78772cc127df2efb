/*
Package resilience provides a circuit breaker for operations that can fail
repeatedly, such as forking a shell.

# States

- Closed: calls pass through and outcomes are counted
- Open: calls fail with ErrCircuitOpen until Cooldown elapses
- Half-Open: up to Probes calls are let through; all succeeding closes the
  breaker, any failure reopens it

	Closed --[ReadyToTrip]-> Open --[Cooldown]-> Half-Open --[Probes ok]-> Closed
	                                                |
	                                           [failure]
	                                                v
	                                              Open

# Usage

	breaker := resilience.New("shell-launch", resilience.Settings{
		Cooldown: 30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	err := breaker.Do(func() error {
		proc, err = launcher.Start(spec)
		return err
	})

Settings.Now makes the breaker's clock injectable for tests.
*/
package resilience
