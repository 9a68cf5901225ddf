// Package master stores and verifies the bcrypt hash of the vault's master
// password.
//
// The hash lives alone in its own file. Replacing it is always an atomic
// rename, so a reader sees either the old hash or the new one. Password
// rotation stages the next hash in a ".pending" sibling first; Promote
// moves it into place once the re-encrypted records have been committed.
package master
