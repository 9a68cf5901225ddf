// Package storage provides the embedded databases that hold credvault's
// encrypted credential rows.
//
// Two backends implement Backend:
//   - bolt: a BBolt file with three buckets
//     config (store settings), credentials (id -> row) and names (name -> id)
//   - sqlite: the credentials(id, name UNIQUE, entries) table, schema managed
//     by embedded migrations
//
// Backends never see plaintext. Each row's entries column is an opaque
// encrypted blob; the name index is what enforces uniqueness, and it is
// maintained in the same transaction as the row it points to.
package storage
