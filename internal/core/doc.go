// Package core implements the credential vault: the encrypted credential
// table, the master-password gate in front of it and master-password
// rotation.
//
// A Vault is opened from configuration. Authenticate checks the master
// password against the stored bcrypt hash and returns a Session, which holds
// the password in memory and uses it to encrypt and decrypt credentials.
// Each credential's entries are serialized to JSON and sealed with a key
// derived from the master password and a per-record salt.
//
// RotatePassword re-encrypts every credential under a new password. The
// records are committed in one store transaction and the new master hash is
// staged beside the old one until that commit succeeds, so an interrupted
// rotation is settled on the next Authenticate.
package core
