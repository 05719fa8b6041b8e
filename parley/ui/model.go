// Package ui is the terminal conversation screen. It renders session
// Snapshots and turns key presses into session calls; it keeps no message
// state of its own.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"parley/parley/services/identity"
	"parley/parley/session"
	"parley/parley/utils/errs"
	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

const statusTTL = 5 * time.Second

// Session is the part of *session.Session the screen drives.
type Session interface {
	Bootstrap(ctx context.Context) (session.Snapshot, error)
	Reset(ctx context.Context) (session.Snapshot, error)
	RefreshIdentity(ctx context.Context) (bool, error)
	Snapshot() session.Snapshot
	Updates() <-chan struct{}
	PostUserMessage(ctx context.Context, text string) (types.Message, error)
	Reply(ctx context.Context, text string) (types.Message, error)
}

type Options struct {
	Session  Session
	Identity identity.Provider
	Styles   *Styles
	// Markdown renders AI replies with glamour.
	Markdown bool
	// Title is shown in the header, e.g. the gateway URL or "local".
	Title string
}

// LoginURLMsg carries the sign-in URL to show while a sign-in is pending.
type LoginURLMsg string

type (
	bootstrapMsg struct {
		snap session.Snapshot
		err  error
	}
	postedMsg struct {
		text string
		err  error
	}
	replyMsg    struct{ err error }
	updateMsg   struct{}
	identityMsg struct {
		changed bool
		err     error
	}
	clearStatusMsg struct{ seq int }
)

type Model struct {
	ctx      context.Context
	sess     Session
	idp      identity.Provider
	styles   Styles
	title    string
	markdown bool

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	snap       session.Snapshot
	ready      bool
	booting    bool
	busy       bool
	signingIn  bool
	loginURL   string
	status     string
	statusErr  bool
	statusSeq  int
	width      int
	height     int
	lastRender string
}

func New(ctx context.Context, opts Options) Model {
	styles := DefaultStyles()
	if opts.Styles != nil {
		styles = *opts.Styles
	}
	idp := opts.Identity
	if idp == nil {
		idp = identity.Guest{}
	}

	ti := textinput.New()
	ti.Placeholder = "Type a message (Enter to send)"
	ti.Prompt = "> "
	ti.PromptStyle = styles.Prompt
	ti.CharLimit = 4096
	ti.Width = 76
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	m := Model{
		ctx:      ctx,
		sess:     opts.Session,
		idp:      idp,
		styles:   styles,
		title:    opts.Title,
		markdown: opts.Markdown,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		booting:  true,
	}
	if m.markdown {
		m.renderer = newRenderer(80)
	}
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		logging.ErrorLogger.Warn("markdown renderer unavailable", zap.Error(err))
		return nil
	}
	return r
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.bootstrap(),
		waitForUpdate(m.sess.Updates()),
	)
}

func (m Model) bootstrap() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.sess.Bootstrap(m.ctx)
		return bootstrapMsg{snap: snap, err: err}
	}
}

func (m Model) reset() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.sess.Reset(m.ctx)
		return bootstrapMsg{snap: snap, err: err}
	}
}

func (m Model) post(text string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.sess.PostUserMessage(m.ctx, text)
		return postedMsg{text: text, err: err}
	}
}

func (m Model) reply(text string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.sess.Reply(m.ctx, text)
		return replyMsg{err: err}
	}
}

func (m Model) signIn() tea.Cmd {
	return func() tea.Msg {
		m.idp.SignIn(m.ctx)
		changed, err := m.sess.RefreshIdentity(m.ctx)
		return identityMsg{changed: changed, err: err}
	}
}

func (m Model) signOut() tea.Cmd {
	return func() tea.Msg {
		m.idp.SignOut(m.ctx)
		changed, err := m.sess.RefreshIdentity(m.ctx)
		return identityMsg{changed: changed, err: err}
	}
}

// waitForUpdate yields one updateMsg per session notification and nil once
// the session is closed.
func waitForUpdate(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return updateMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			return m.submit()

		case tea.KeyCtrlL:
			if m.signingIn {
				return m, nil
			}
			if m.snap.Identity != nil {
				cmd := m.setStatus("already signed in as "+m.snap.Identity.Email, false)
				return m, cmd
			}
			m.signingIn = true
			return m, m.signIn()

		case tea.KeyCtrlO:
			if m.snap.Identity == nil {
				cmd := m.setStatus("not signed in", false)
				return m, cmd
			}
			return m, m.signOut()

		case tea.KeyCtrlN:
			if m.busy || m.booting {
				return m, nil
			}
			m.booting = true
			return m, m.reset()
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case bootstrapMsg:
		m.booting = false
		m.snap = msg.snap
		if msg.err != nil {
			cmds = append(cmds, m.setStatus(describe(msg.err), true))
		}

	case updateMsg:
		m.snap = m.sess.Snapshot()
		cmds = append(cmds, waitForUpdate(m.sess.Updates()))

	case postedMsg:
		m.snap = m.sess.Snapshot()
		if msg.err != nil {
			m.busy = false
			if errors.Is(msg.err, errs.ErrEmptyInput) {
				break
			}
			cmds = append(cmds, m.setStatus(describe(msg.err), true))
			break
		}
		// the input is kept until the save succeeds
		if m.input.Value() == msg.text {
			m.input.Reset()
		}
		cmds = append(cmds, m.reply(msg.text))

	case replyMsg:
		m.busy = false
		m.snap = m.sess.Snapshot()
		if msg.err != nil {
			cmds = append(cmds, m.setStatus(describe(msg.err), true))
		}

	case identityMsg:
		m.signingIn = false
		m.loginURL = ""
		m.snap = m.sess.Snapshot()
		switch {
		case msg.err != nil:
			cmds = append(cmds, m.setStatus(describe(msg.err), true))
		case !msg.changed && m.snap.Identity == nil:
			cmds = append(cmds, m.setStatus("sign-in did not complete", true))
		case msg.changed && m.snap.Identity != nil:
			cmds = append(cmds, m.setStatus("signed in as "+m.snap.Identity.Email, false))
		case msg.changed:
			cmds = append(cmds, m.setStatus("signed out", false))
		}

	case LoginURLMsg:
		m.loginURL = string(msg)

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
			m.statusErr = false
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.refreshViewport()
	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.busy || m.booting {
		return m, nil
	}
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	if !m.snap.CanSend {
		if m.snap.ConversationID == "" {
			cmd := m.setStatus(describe(errs.ErrNoConversation), true)
			return m, cmd
		}
		cmd := m.setStatus(describe(errs.ErrNotSignedIn), true)
		return m, cmd
	}
	m.busy = true
	m.status = ""
	return m, m.post(text)
}

// setStatus shows text until statusTTL passes or a newer status replaces it.
func (m *Model) setStatus(text string, isErr bool) tea.Cmd {
	m.statusSeq++
	m.status = text
	m.statusErr = isErr
	seq := m.statusSeq
	return tea.Tick(statusTTL, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

func describe(err error) string {
	switch {
	case errors.Is(err, errs.ErrNotSignedIn):
		return "sign in (ctrl+l) to send messages"
	case errors.Is(err, errs.ErrNoConversation), errors.Is(err, errs.ErrBootstrapAborted):
		return "no conversation: the store is unavailable (ctrl+n to retry)"
	case errors.Is(err, errs.ErrResponder):
		return "no reply: the responder is unavailable"
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrNotFound):
		return err.Error()
	case errors.Is(err, errs.ErrStore):
		return "message not sent: the store is unavailable"
	}
	return fmt.Sprintf("error: %v", err)
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	const chrome = 6 // header, rule, status, input, help
	h := height - chrome
	if h < 3 {
		h = 3
	}
	m.viewport.Width = width
	m.viewport.Height = h
	m.input.Width = width - 4
	if m.markdown {
		m.renderer = newRenderer(width - 4)
	}
	m.ready = true
	m.lastRender = ""
}

func (m *Model) refreshViewport() {
	content := m.renderMessages()
	if content == m.lastRender {
		return
	}
	m.lastRender = content
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m Model) renderMessages() string {
	if len(m.snap.Messages) == 0 {
		return m.styles.Help.Render("No messages yet.")
	}
	var b strings.Builder
	for i, msg := range m.snap.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Role {
		case types.RoleAI:
			b.WriteString(m.styles.AI.Render("AI"))
			b.WriteString("\n")
			b.WriteString(m.renderReply(msg.Message))
		default:
			b.WriteString(m.styles.User.Render("You"))
			b.WriteString("\n")
			b.WriteString(msg.Message)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderReply(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render(m.help()))
	return b.String()
}

func (m Model) header() string {
	who := "guest"
	if m.snap.Identity != nil {
		who = m.snap.Identity.Email
	}
	conv := "no conversation"
	if id := m.snap.ConversationID; id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		conv = "conversation " + id
	}
	parts := []string{"parley"}
	if m.title != "" {
		parts = append(parts, m.title)
	}
	parts = append(parts, conv, who)
	return m.styles.Header.Render(strings.Join(parts, " · "))
}

func (m Model) statusLine() string {
	switch {
	case m.signingIn && m.loginURL != "":
		return m.styles.Warning.Render("Open to sign in: " + m.loginURL)
	case m.signingIn:
		return m.spinner.View() + m.styles.Info.Render(" waiting for sign-in...")
	case m.booting:
		return m.spinner.View() + m.styles.Info.Render(" connecting...")
	case m.busy:
		return m.spinner.View() + m.styles.Info.Render(" thinking...")
	case m.status != "" && m.statusErr:
		return m.styles.Error.Render(m.status)
	case m.status != "":
		return m.styles.Info.Render(m.status)
	}
	return ""
}

func (m Model) help() string {
	keys := []string{"enter send"}
	if m.snap.Identity == nil {
		keys = append(keys, "ctrl+l sign in")
	} else {
		keys = append(keys, "ctrl+o sign out")
	}
	keys = append(keys, "ctrl+n new conversation", "esc quit")
	return strings.Join(keys, " • ")
}
