// Package models defines the workledger domain entities: companies, the employees
// they employ, and the documents attached to either.
//
// Every entity implements [Entity], which is what the store surface in
// [github.com/workledger/workledger/pkg/store] operates on. The same structs are
// persisted by every driver: GORM tags describe the relational schema, JSON tags
// describe the HTTP representation, and the CBOR encoding used by the SurrealDB and
// Redis drivers falls back to the JSON tags.
//
// IDs are positive int64 values assigned by the store on insert when left zero.
package models
