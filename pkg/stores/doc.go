// Package stores provides the SQLite state database: the run journal
// (runs, their steps, fired notifications and events), the last known
// state of every resource, and the node inventory. Schema changes are
// embedded migrations applied with golang-migrate. Concurrent runs against
// one host are serialized with an exclusive lock file next to the database.
package stores
