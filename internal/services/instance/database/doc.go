// Package database describes the relational backends an instance can run on,
// opens connections to them, and detects which backend accepts a candidate
// set of connection parameters.
package database
