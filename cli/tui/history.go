package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/shiggityshwah/punchlist/ledger"
)

// historyItem adapts one history entry to the list delegate.
type historyItem struct {
	entry ledger.HistoryEntry
}

func (i historyItem) Title() string {
	title := i.entry.TrackingID
	if i.entry.Complete() {
		title += " ✓"
	}
	return title
}

func (i historyItem) Description() string {
	parts := []string{"checked " + i.entry.CheckedProgress.String()}
	if i.entry.ReviewedProgress != nil {
		parts = append(parts, "reviewed "+i.entry.ReviewedProgress.String())
	}
	if i.entry.PolicyNumber != "" {
		parts = append(parts, "policy "+i.entry.PolicyNumber)
	}
	if !i.entry.MovedToHistory.IsZero() {
		parts = append(parts, i.entry.MovedToHistory.Format("2006-01-02 15:04"))
	}
	return strings.Join(parts, "  ")
}

// FilterValue lets "/" filtering match on any identity the entry carries.
func (i historyItem) FilterValue() string {
	return strings.Join([]string{
		i.entry.TrackingID,
		i.entry.PolicyNumber,
		i.entry.SubmissionNumber,
		i.entry.Broker,
	}, " ")
}

// HistoryModel is a scrollable, filterable browser over history entries.
type HistoryModel struct {
	list list.Model
}

// NewHistoryModel creates the history browser.
func NewHistoryModel(entries []ledger.HistoryEntry) HistoryModel {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = historyItem{entry: e}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Form History"
	l.Styles.Title = TitleStyle
	return HistoryModel{list: l}
}

// Init implements tea.Model.
func (m HistoryModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		// While the filter input is active every key belongs to it.
		if m.list.FilterState() != list.Filtering && key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m HistoryModel) View() string {
	return m.list.View()
}

// RunHistory browses history entries until the user quits.
func RunHistory(entries []ledger.HistoryEntry) error {
	p := tea.NewProgram(NewHistoryModel(entries), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
