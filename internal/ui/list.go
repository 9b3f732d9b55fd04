package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/cur8/internal/models"
)

var _ list.Item = decisionItem{}

// decisionItem wraps [models.DecisionRecord] to implement [list.Item].
type decisionItem struct {
	record models.DecisionRecord
}

func (i decisionItem) FilterValue() string {
	return i.record.Track.Name() + " " + i.record.Track.Artists()
}

func (i decisionItem) Title() string {
	mark := "·"
	switch i.record.State {
	case models.Kept:
		mark = "✓"
	case models.Removed:
		mark = "✗"
	}
	return fmt.Sprintf("%s %s", mark, i.record.Track.Name())
}

func (i decisionItem) Description() string {
	desc := i.record.Track.Artists()
	if album := i.record.Track.AlbumName(); album != "" {
		desc = fmt.Sprintf("%s • %s", desc, album)
	}
	return desc
}
