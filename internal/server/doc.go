// Package server hosts the Fiber HTTP surface in front of the fetch pipeline:
// single-asset and bundle loads, plus the request-id and recover middleware
// shared by the diagnostics routes registered from the routes subpackage.
// Keep exports narrow and accept explicit dependencies.
package server
