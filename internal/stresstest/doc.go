/*
Package stresstest implements the load testing engine.

# Overview

A Test drives a pool of virtual users against a fixed set of endpoints on
one host. Every user runs its own loop:
  - pick an endpoint uniformly at random
  - sleep a random duration drawn from the configured range
  - wait on the shared rate limiter, if any
  - send one request and record the outcome

# Aggregation

Outcomes are recorded in Results records at three levels that share one
contract (Updatable):
  - the endpoint that was called
  - the user, plus the user's per-endpoint record
  - the test (global)

A response with a status in [200, 400) is a success and adds its latency.
Any other response counts as a failed request. An attempt that produced no
response is a connection error and is not counted as a request.

Rates are not maintained on the request path. CalculateRates is called by
the test on every observer tick and once when the test ends.

# Lifecycle

Tests and users move through CREATED, RUNNING, then STOPPED or FINISHED.
Stop always wins over Finish. Cancellation flows through context: each user
context is a child of the test's, so stopping the test reaches every user,
while stopping a user leaves its siblings running.

Run returns only after every user has exited.

# Persistence

Manager stores finished reports in SQLite:
  - load_test_runs: one row per run with the global results
  - load_test_endpoint_results: per-endpoint results of a run
  - load_test_user_results: per-user results of a run

# Example Usage

	test, err := NewTest(config, logger)
	if err != nil {
		return err
	}

	go func() {
		<-time.After(30 * time.Second)
		test.Finish()
	}()

	if err := test.Run(ctx); err != nil {
		return err
	}

	fmt.Println(test)
*/
package stresstest
