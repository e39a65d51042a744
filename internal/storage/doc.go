// Package storage persists the task graph for the application layer.
//
// A store keeps one snapshot (the graph wire JSON) and an append-only audit
// log of the mutations that produced it. The core packages never touch it;
// the app saves after every successful mutation and loads on startup.
package storage
