// Package ui implements the terminal swipe interface using bubbletea's Elm architecture.
//
// The TUI works on the library of a user who has already connected Spotify through the web flow:
//  1. [SyncView] : Queue saved tracks, with page-by-page progress from the library engine
//  2. [SwipeView] : Show one pending track at a time and record keep or remove
//  3. [DoneView] : Summarize the decisions once nothing is left pending
//  4. [DecisionsView] : Browse the tracks decided so far
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Sync progress flows through a channel from the [tasks.LibraryEngine], so the view never blocks on Spotify.
//
// Keyboard navigation uses vim-style bindings (h/l, j/k, o, d, esc, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
