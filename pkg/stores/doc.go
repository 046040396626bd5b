// Package stores persists run history for the kforge CLI. The only
// implementation is SQLite-backed, with schema migrations embedded in
// the binary.
package stores
