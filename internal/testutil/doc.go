// Package testutil holds deterministic helpers shared by package tests and
// the scenario harness.
package testutil
