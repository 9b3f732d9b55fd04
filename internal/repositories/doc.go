// Package repositories implements SQLite persistence for the cur8 entities.
//
// Repositories take a [Querier], which both *sql.DB and *sql.Tx satisfy, so the same repository
// code runs standalone or inside [WithTx]. The callback flow uses that to upsert a user and their
// credential atomically.
//
//   - [UserRepository] : users keyed by Spotify user ID
//   - [CredentialRepository] : one Spotify credential per user
//   - [TrackRepository] : cached saved-track metadata
//   - [TrackStateRepository] : per-user keep/remove decisions and the pending queue
//
// Sequence numbers give stable, human-readable ordering independent of UUIDs; [NextSequence]
// hands them out from the sequences table.
package repositories
