//go:build integration

// Package integration provides end-to-end tests for the sketch pipeline.
//
// The OCI tests require Docker and spin up a real OCI registry using
// testcontainers. Run with: go test -tags=integration ./integration/...
package integration
