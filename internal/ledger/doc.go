// Package ledger records batch runs and their item results in a SQLite
// database so earlier runs can be listed with `meshforge history`.
//
// The schema is embedded and versioned; a database created by a different
// schema version is rejected with ErrSchemaMismatch rather than migrated.
package ledger
