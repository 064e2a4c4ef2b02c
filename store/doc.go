// Package store archives run reports in a SQLite database.
//
// Each run is stored under a UUID together with the names of the network
// and environment configurations it was produced from. Reports are kept as
// JSON with their key order intact, so a report read back renders exactly
// as it did when the run finished.
package store
