// Package repositories implements the session token store: the mapping from an opaque session id to the
// [models.TokenRecord] granted to that browser session.
//
// Key Implementations:
//   - [MemoryStore] : mutex-guarded map, the default
//   - [SQLiteStore] : the same contract on top of the embedded migrations, usable with ":memory:" or a file
//
// Absence is not a failure: Get reports [shared.ErrSessionNotFound] for ids never written, cleared, or older than
// the retention window, and callers branch on it with errors.Is.
package repositories
