package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/simdeck/simdeck/pkg/api"
	"github.com/simdeck/simdeck/pkg/cache"
	"github.com/simdeck/simdeck/pkg/live"
)

// summaryMsg delivers the (possibly cached) simulation summary.
type summaryMsg struct {
	sim api.Simulation
	err error
}

// watchModel is the dashboard for one simulation's live feed.
type watchModel struct {
	simID   string
	engine  *live.Client
	queries *cache.Store
	client  *api.Client

	spinner spinner.Model
	width   int
	height  int

	summary    api.Simulation
	summaryErr error
	quitting   bool
}

func newWatchModel(simID string, engine *live.Client, queries *cache.Store, client *api.Client) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return watchModel{
		simID:   simID,
		engine:  engine,
		queries: queries,
		client:  client,
		spinner: sp,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchSummary())
}

// fetchSummary resolves the simulation summary through the query cache, so
// a fresh request only goes out after the engine invalidated the scope.
func (m watchModel) fetchSummary() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		v, err := m.queries.GetOr(ctx, live.Scope{SimulationID: m.simID}, func(ctx context.Context) (any, error) {
			return m.client.GetSimulation(ctx, m.simID)
		})
		if err != nil {
			return summaryMsg{err: err}
		}

		sim, ok := v.(api.Simulation)
		if !ok {
			return summaryMsg{err: fmt.Errorf("unexpected cache entry %T", v)}
		}
		return summaryMsg{sim: sim}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			m.engine.Disconnect()
			return m, tea.Quit
		case "r":
			m.engine.Connect(m.simID)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case engineUpdateMsg:
		// The store already holds the new state; re-resolve the summary so
		// an invalidated scope triggers a refetch.
		return m, m.fetchSummary()

	case summaryMsg:
		if msg.err != nil {
			m.summaryErr = msg.err
		} else {
			m.summary = msg.sim
			m.summaryErr = nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	snap := m.engine.Store().Snapshot()

	var b strings.Builder

	name := m.summary.Name
	if name == "" {
		name = m.simID
	}
	b.WriteString(titleStyle.Render("simdeck") + "  " + name)
	if m.summary.Name != "" {
		b.WriteString(dimStyle.Render("  (" + m.simID + ")"))
	}
	b.WriteString("\n")
	b.WriteString(m.statusLine(snap) + "\n\n")

	b.WriteString(renderAgents(snap.Agents))
	b.WriteString("\n")

	maxMessages := 10
	if m.height > 0 {
		// Header, status, blank lines, agents, and footer eat the rest.
		if room := m.height - len(snap.Agents) - 8; room > 0 {
			maxMessages = room
		}
	}
	b.WriteString(renderMessages(snap.Messages, maxMessages))

	b.WriteString("\n" + dimStyle.Render("q quit · r reconnect"))

	return b.String()
}

func (m watchModel) statusLine(snap live.Snapshot) string {
	var status string
	switch snap.Status {
	case live.StatusConnected:
		status = connectedStyle.Render("● connected")
	case live.StatusConnecting:
		status = connectingStyle.Render(m.spinner.View() + "connecting")
	default:
		status = disconnectedStyle.Render("○ disconnected")
	}

	parts := []string{status}

	if snap.Running {
		parts = append(parts, connectedStyle.Render("running"))
	} else if snap.Status == live.StatusConnected {
		parts = append(parts, dimStyle.Render("paused"))
	}

	if snap.Step.Total > 0 {
		parts = append(parts, fmt.Sprintf("step %d/%d", snap.Step.Current, snap.Step.Total))
	} else if snap.Step.Current > 0 {
		parts = append(parts, fmt.Sprintf("step %d", snap.Step.Current))
	}

	if snap.LastError != "" {
		parts = append(parts, errorStyle.Render(snap.LastError))
	} else if m.summaryErr != nil {
		parts = append(parts, errorStyle.Render(m.summaryErr.Error()))
	}

	return strings.Join(parts, dimStyle.Render(" · "))
}

// renderAgents renders the per-agent table sorted by name.
func renderAgents(agents map[string]live.AgentState) string {
	if len(agents) == 0 {
		return dimStyle.Render("no agent activity yet") + "\n"
	}

	sorted := make([]live.AgentState, 0, len(agents))
	for _, st := range agents {
		sorted = append(sorted, st)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].ID < sorted[j].ID
	})

	var b strings.Builder
	for _, st := range sorted {
		name := st.Name
		if name == "" {
			name = st.ID
		}

		var activity string
		switch st.Status {
		case live.AgentThinking:
			activity = thinkingStyle.Render("thinking…")
		case live.AgentResponded:
			activity = respondedStyle.Render("responded")
		default:
			activity = idleStyle.Render("idle")
		}

		fmt.Fprintf(&b, "  %-20s %s %s\n",
			name, activity,
			dimStyle.Render(fmt.Sprintf("%d msg", st.MessageCount)))
	}

	return b.String()
}

// renderMessages renders the tail of the live message log.
func renderMessages(msgs []live.LiveMessage, max int) string {
	if len(msgs) == 0 {
		return dimStyle.Render("no messages yet") + "\n"
	}

	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}

	var b strings.Builder
	for _, msg := range msgs {
		ts := dimStyle.Render(msg.ReceivedAt.Format("15:04:05"))
		sender := senderStyle.Render(msg.SenderID)
		if msg.ReceiverID != "" {
			sender += dimStyle.Render(" → ") + msg.ReceiverID
		}
		b.WriteString(ts + " " + sender + "\n")
		b.WriteString(messageStyle.Render(truncate(msg.Content, 200)) + "\n")
	}

	return b.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
