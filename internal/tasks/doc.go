// package tasks implements the swipe queue over a user's Spotify library.
//
// The core abstraction is [LibraryEngine]. Sync pages through the user's saved tracks and queues
// each one as pending; Next picks a random pending track; Swipe records keep or remove and mirrors
// removals to Spotify. Long operations emit [ProgressUpdate]s on an optional channel for the CLI
// and TUI. Sends never block: a full channel drops the update.
//
// Spotify is paced with a [rate.Limiter] so a large library cannot burn the upstream quota in a
// single burst.
package tasks
