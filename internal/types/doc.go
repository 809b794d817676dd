/*
Package types defines core data structures used throughout swarmcli.

# Overview

The types package provides shared type definitions for:
  - Load test definitions (hosts, endpoints, headers, pacing)
  - Lifecycle status of tests and virtual users
  - Result snapshots and hierarchical reports
  - The remote-control command envelope

# Test Definition

TestConfig:
  - Parsed from .yaml, .json or .jsonc test files
  - Sent by a master to workers inside a Create command
  - Validate() rejects unusable definitions before a test is built

EndpointConfig:
  - One target route (method, url)
  - Optional headers (override global headers on collision)
  - Optional params (GET only) and body (POST/PUT only)

# Status

Tests and users share one status enumeration:

	CREATED -> RUNNING -> STOPPED
	                   -> FINISHED

RUNNING is entered once. STOPPED and FINISHED are terminal, and once
STOPPED a later finish never overwrites it.

# Results

ResultsSummary is a copy of a results record taken under its read lock.
Report nests summaries for the test, each endpoint and each user.

# Remote Control

Frames on the control channel are JSON objects tagged by "type":

	{"type":"Create","test_config":{...},"user_count":10}
	{"type":"Start"}
	{"type":"Stop"}
	{"type":"Finish"}
	{"type":"Hello","worker_id":"..."}
	{"type":"Report","worker_id":"...","report":{...}}

# Example Test File

	name: checkout
	host: http://localhost:8080
	user_count: 20
	run_time_sec: 60
	sleep_range: [100, 500]
	global_headers:
	  Accept: application/json
	endpoints:
	  - method: GET
	    url: /products
	    params:
	      page: "1"
	  - method: POST
	    url: /cart
	    body: '{"sku":"A1"}'
	    headers:
	      Content-Type: application/json
*/
package types
