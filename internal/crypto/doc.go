// Package crypto provides the record encryption primitives for credvault.
//
// Every encrypted record is self-contained:
//
//	salt[16] || nonce[12] || AES-256-GCM ciphertext || tag[16]
//
// The 32-byte key is derived from the master password and the record's own
// salt via PBKDF2-HMAC-SHA256. A fresh salt is drawn for every Encrypt call,
// so no two records (or two versions of one record) share a key.
//
// Decryption failures are reported as ErrAuthFailed regardless of whether the
// password was wrong or the blob was damaged.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with a derived key
package crypto
