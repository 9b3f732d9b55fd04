package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/shared"
	"github.com/desertthunder/cur8/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	SyncView ViewState = iota
	SwipeView
	DoneView
	DecisionsView
)

// Engine is the library surface the TUI drives.
type Engine interface {
	tasks.SwipeEngine
	Counts(userID string) (map[models.Decision]int, error)
	Decisions(userID string, filter ...models.Decision) ([]models.DecisionRecord, error)
}

var _ Engine = (*tasks.LibraryEngine)(nil)

// syncRun carries one Sync call's progress. done receives the final message before progress closes.
type syncRun struct {
	progress chan tasks.ProgressUpdate
	done     chan Msg
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	engine   Engine
	user     *models.User
	syncMode bool
	openURL  func(string) error

	view     ViewState
	prevView ViewState
	width    int
	height   int

	run      *syncRun
	progress tasks.ProgressUpdate
	synced   *tasks.SyncResult

	current *models.Track
	busy    bool
	status  string
	tally   map[models.Decision]int
	counts  map[models.Decision]int

	decisionList list.Model
	spinner      spinner.Model
	err          error
	help         help.Model
	keys         keyMap
}

// Option customizes a [Model].
type Option func(*Model)

// WithSync queues the whole saved library before the first track is shown.
// Without it the engine syncs only when the pending queue runs dry.
func WithSync() Option {
	return func(m *Model) { m.syncMode = true }
}

// WithOpener replaces the browser launcher used to play previews.
func WithOpener(open func(string) error) Option {
	return func(m *Model) { m.openURL = open }
}

// NewModel creates a new TUI model for user with the provided dependencies.
func NewModel(ctx context.Context, engine Engine, user *models.User, opts ...Option) *Model {
	m := &Model{
		ctx:     ctx,
		engine:  engine,
		user:    user,
		openURL: shared.OpenBrowser,
		view:    SwipeView,
		tally:   make(map[models.Decision]int),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.ok)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.syncMode {
		m.view = SyncView
	}
	return m
}

// Init starts the spinner and either a full sync or the first track lookup.
func (m *Model) Init() tea.Cmd {
	if m.syncMode {
		return tea.Batch(m.spinner.Tick, m.startSync())
	}
	m.busy = true
	return tea.Batch(m.spinner.Tick, m.loadNext())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.view == DecisionsView {
			m.decisionList.SetSize(msg.Width-4, msg.Height-6)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case SyncView:
			return m.handleSyncKeys(msg)
		case SwipeView:
			return m.handleSwipeKeys(msg)
		case DoneView:
			return m.handleDoneKeys(msg)
		case DecisionsView:
			return m.handleDecisionKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == DecisionsView {
		var cmd tea.Cmd
		m.decisionList, cmd = m.decisionList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSyncProgress:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForSync()

	case MsgSyncComplete:
		data := msg.data.(syncComplete)
		m.run = nil
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.synced = data.result
		m.view = SwipeView
		m.busy = true
		return m, m.loadNext()

	case MsgTrackLoaded:
		data := msg.data.(trackLoaded)
		m.busy = false
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.current = data.track
		if data.track == nil {
			m.view = DoneView
			return m, m.loadCounts()
		}
		return m, nil

	case MsgSwiped:
		data := msg.data.(swiped)
		m.busy = false
		if data.err != nil {
			m.status = styles.err.Render(fmt.Sprintf("Could not record %s: %v", data.decision, data.err))
			return m, nil
		}
		m.tally[data.decision]++
		m.status = swipeStatus(data.track, data.decision)
		m.busy = true
		return m, m.loadNext()

	case MsgCountsLoaded:
		data := msg.data.(countsLoaded)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.counts = data.counts
		return m, nil

	case MsgDecisionsLoaded:
		data := msg.data.(decisionsLoaded)
		if data.err != nil {
			m.status = styles.err.Render(fmt.Sprintf("Could not load decisions: %v", data.err))
			return m, nil
		}
		items := make([]list.Item, len(data.records))
		for i, r := range data.records {
			items[i] = decisionItem{record: r}
		}
		m.decisionList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.decisionList.Title = fmt.Sprintf("Decisions (%d)", len(items))
		m.decisionList.SetSize(m.width-4, m.height-6)
		m.prevView = m.view
		m.view = DecisionsView
		return m, nil

	case MsgPreviewOpened:
		if err, ok := msg.data.(error); ok && err != nil {
			m.status = styles.warn.Render(fmt.Sprintf("Could not open preview: %v", err))
		}
		return m, nil
	}
	return m, nil
}

func swipeStatus(track *models.Track, decision models.Decision) string {
	if track == nil {
		return ""
	}
	if decision == models.Removed {
		return styles.warn.Render(fmt.Sprintf("✗ Removed %s", track.Name()))
	}
	return styles.ok.Render(fmt.Sprintf("✓ Kept %s", track.Name()))
}

func (m *Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) {
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleSwipeKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.decisions):
		return m, m.loadDecisions()
	}

	if m.busy {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.retry) && m.err != nil:
		m.err = nil
		m.busy = true
		return m, m.loadNext()
	case m.current == nil:
		return m, nil
	case key.Matches(msg, m.keys.keep):
		return m, m.swipe(models.Kept)
	case key.Matches(msg, m.keys.remove):
		return m, m.swipe(models.Removed)
	case key.Matches(msg, m.keys.open):
		return m, m.openPreview()
	}
	return m, nil
}

func (m *Model) handleDoneKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.decisions):
		return m, m.loadDecisions()
	}
	return m, nil
}

func (m *Model) handleDecisionKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.decisionList.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.back):
			m.view = m.prevView
			return m, nil
		case msg.String() == "q" || msg.String() == "ctrl+c":
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.decisionList, cmd = m.decisionList.Update(msg)
	return m, cmd
}

func (m *Model) startSync() tea.Cmd {
	run := &syncRun{
		progress: make(chan tasks.ProgressUpdate, 50),
		done:     make(chan Msg, 1),
	}
	m.run = run

	go func() {
		result, err := m.engine.Sync(m.ctx, m.user.ID(), run.progress)
		run.done <- syncCompleteMsg(result, err)
		close(run.progress)
	}()

	return m.waitForSync()
}

func (m *Model) waitForSync() tea.Cmd {
	run := m.run
	return func() tea.Msg {
		if run == nil {
			return nil
		}
		update, ok := <-run.progress
		if !ok {
			return <-run.done
		}
		return syncProgressMsg(update)
	}
}

func (m *Model) loadNext() tea.Cmd {
	return func() tea.Msg {
		track, err := m.engine.Next(m.ctx, m.user.ID())
		return trackLoadedMsg(track, err)
	}
}

func (m *Model) swipe(decision models.Decision) tea.Cmd {
	track := m.current
	m.busy = true
	m.status = ""
	return func() tea.Msg {
		err := m.engine.Swipe(m.ctx, m.user.ID(), track.SpotifyTrackID(), decision)
		return swipedMsg(track, decision, err)
	}
}

func (m *Model) loadCounts() tea.Cmd {
	return func() tea.Msg {
		counts, err := m.engine.Counts(m.user.ID())
		return countsLoadedMsg(counts, err)
	}
}

func (m *Model) loadDecisions() tea.Cmd {
	return func() tea.Msg {
		records, err := m.engine.Decisions(m.user.ID(), models.Kept, models.Removed)
		return decisionsLoadedMsg(records, err)
	}
}

func (m *Model) openPreview() tea.Cmd {
	url := m.current.PreviewURL()
	if url == "" {
		m.status = styles.warn.Render("No preview available for this track")
		return nil
	}
	open := m.openURL
	return func() tea.Msg {
		return previewOpenedMsg(open(url))
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case SyncView:
		return m.renderSync()
	case SwipeView:
		return m.renderSwipe()
	case DoneView:
		return m.renderDone()
	case DecisionsView:
		return m.renderDecisions()
	default:
		return ""
	}
}

func (m *Model) renderSync() string {
	title := styles.title.Render("Syncing saved tracks")
	if m.err != nil {
		return fmt.Sprintf("%s\n%s\n\n%s", title,
			styles.err.Render(fmt.Sprintf("Sync failed: %v", m.err)),
			m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	}

	var phase string
	switch m.progress.Phase {
	case tasks.FetchLibrary:
		phase = fmt.Sprintf("Fetching page %d...", max(m.progress.Step, 1))
	case tasks.QueueTracks:
		phase = fmt.Sprintf("Queued %d of %d tracks", m.progress.Step, m.progress.Total)
	case tasks.Complete:
		phase = "Done"
	default:
		phase = "Starting..."
	}

	return fmt.Sprintf("%s\n%s %s\n%s", title, m.spinner.View(), phase, styles.help.Render(m.progress.Message))
}

func (m *Model) renderSwipe() string {
	var b strings.Builder
	b.WriteString(styles.title.Render(m.heading()))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.retry, m.keys.quit}))
		return b.String()
	case m.current == nil:
		fmt.Fprintf(&b, "%s Loading next track...\n", m.spinner.View())
		return b.String()
	}

	b.WriteString(styles.card.Render(m.renderTrack(m.current)))
	b.WriteString("\n")
	if m.busy {
		fmt.Fprintf(&b, "%s Saving...\n", m.spinner.View())
	} else if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n%s\n", styles.help.Render(fmt.Sprintf("This session: %d kept, %d removed",
		m.tally[models.Kept], m.tally[models.Removed])))
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.keep, m.keys.remove, m.keys.open, m.keys.decisions, m.keys.quit}))
	return b.String()
}

func (m *Model) heading() string {
	if m.user == nil {
		return "cur8"
	}
	name := m.user.DisplayName()
	if name == "" {
		name = m.user.SpotifyUserID()
	}
	return fmt.Sprintf("cur8 • %s", name)
}

func (m *Model) renderTrack(t *models.Track) string {
	lines := []string{
		NewBold("#FFFFFF").Render(t.Name()),
		t.Artists(),
	}
	if album := t.AlbumName(); album != "" {
		lines = append(lines, styles.help.Render(album))
	}
	if t.DurationMS() > 0 {
		lines = append(lines, t.Duration())
	}
	if t.PreviewURL() == "" {
		lines = append(lines, styles.warn.Render("no preview"))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderDone() string {
	title := styles.ok.Render("✓ Nothing left to review!")
	info := fmt.Sprintf("\nThis session: %d kept, %d removed", m.tally[models.Kept], m.tally[models.Removed])
	if m.counts != nil {
		info += fmt.Sprintf("\nAll time: %d kept, %d removed", m.counts[models.Kept], m.counts[models.Removed])
	}
	if m.synced != nil {
		info += fmt.Sprintf("\nLast sync: %d tracks seen, %d newly queued", m.synced.Seen, m.synced.Queued)
	}
	if m.err != nil {
		info += "\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.decisions, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}

func (m *Model) renderDecisions() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.decisionList.View(), helpView)
}
