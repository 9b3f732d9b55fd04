package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSyncProgress MsgKind = iota
	MsgSyncComplete
	MsgTrackLoaded
	MsgSwiped
	MsgCountsLoaded
	MsgDecisionsLoaded
	MsgPreviewOpened
)

type syncComplete struct {
	result *tasks.SyncResult
	err    error
}

type trackLoaded struct {
	track *models.Track
	err   error
}

type swiped struct {
	track    *models.Track
	decision models.Decision
	err      error
}

type countsLoaded struct {
	counts map[models.Decision]int
	err    error
}

type decisionsLoaded struct {
	records []models.DecisionRecord
	err     error
}

// syncProgressMsg is the constructor for [MsgSyncProgress]
func syncProgressMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgSyncProgress, data: update}
}

// syncCompleteMsg is the constructor for [MsgSyncComplete]
func syncCompleteMsg(result *tasks.SyncResult, err error) Msg {
	return Msg{kind: MsgSyncComplete, data: syncComplete{result, err}}
}

// trackLoadedMsg is the constructor for [MsgTrackLoaded]; a nil track means the queue is empty.
func trackLoadedMsg(track *models.Track, err error) Msg {
	return Msg{kind: MsgTrackLoaded, data: trackLoaded{track, err}}
}

// swipedMsg is the constructor for [MsgSwiped]
func swipedMsg(track *models.Track, decision models.Decision, err error) Msg {
	return Msg{kind: MsgSwiped, data: swiped{track, decision, err}}
}

// countsLoadedMsg is the constructor for [MsgCountsLoaded]
func countsLoadedMsg(counts map[models.Decision]int, err error) Msg {
	return Msg{kind: MsgCountsLoaded, data: countsLoaded{counts, err}}
}

// decisionsLoadedMsg is the constructor for [MsgDecisionsLoaded]
func decisionsLoadedMsg(records []models.DecisionRecord, err error) Msg {
	return Msg{kind: MsgDecisionsLoaded, data: decisionsLoaded{records, err}}
}

// previewOpenedMsg is the constructor for [MsgPreviewOpened]
func previewOpenedMsg(err error) Msg {
	return Msg{kind: MsgPreviewOpened, data: err}
}
