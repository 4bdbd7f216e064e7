package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/npc-engine/internal/conversation"
	"github.com/jwebster45206/npc-engine/pkg/protocol"
)

const (
	PlaceHolderText = "Type your message here..."
	youName         = "You"
)

// Talker is the player side of one NPC conversation.
type Talker interface {
	Address() string
	NPC() string
	Setup(ctx context.Context, msg protocol.SetupMessage) (string, error)
	Send(ctx context.Context, text string) (string, error)
	SendChat(ctx context.Context, text string) (string, error)
}

type lineKind int

const (
	lineNPC lineKind = iota
	linePlayer
	lineSystem
	lineError
)

type transcriptLine struct {
	kind lineKind
	text string
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	client       Talker
	transcript   []transcriptLine
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	loading      bool

	chatMode  bool
	setupDone bool
	lastReply string

	showQuitModal bool
	progressTick  int
}

type replyMsg struct {
	setup bool
	reply string
	err   error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	npcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")). // green
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

const helpText = `Commands:
• /setup <description> [race=.. class=.. level=.. background=..] - Set up the NPC
• /chat - Toggle chat mode (acknowledged messages)
• /copy - Copy the last NPC reply to the clipboard
• /clear - Clear the transcript
• /help - Show this help
• Ctrl+C - Quit

Anything else is sent to the NPC as a player message.`

func NewConsoleUI(client Talker) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		client:       client,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
	}
}

func (m ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("CONVERSATION") + "\n\n")

	content.WriteString("NPC:\n")
	content.WriteString(m.client.NPC() + "\n\n")

	content.WriteString("You:\n")
	content.WriteString(m.client.Address() + "\n\n")

	content.WriteString("Mode:\n")
	if m.chatMode {
		content.WriteString("chat\n\n")
	} else {
		content.WriteString("player\n\n")
	}

	content.WriteString("Setup:\n")
	if m.setupDone {
		content.WriteString("done\n\n")
	} else {
		content.WriteString("not yet\n\n")
	}

	content.WriteString("Messages:\n")
	fmt.Fprintf(&content, "%d total\n\n", len(m.transcript))

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• /setup: Set up NPC\n")
	content.WriteString("• /chat: Toggle mode\n")
	content.WriteString("• /copy: Copy reply\n")

	return content.String()
}

// writeChatContent renders the transcript for the current viewport width
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding
	if chatWidth < 10 {
		chatWidth = 10
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("NPC ENGINE") + "\n\n")
	content.WriteString("Start with /setup and a character description, then talk.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth)) + "\n\n")

	for _, line := range m.transcript {
		content.WriteString(formatLine(line, m.client.NPC(), chatWidth) + "\n\n")
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func formatLine(line transcriptLine, npcName string, width int) string {
	switch line.kind {
	case linePlayer:
		return userStyle.Render(youName+": ") + wordwrap.String(line.text, width-len(youName)-2)
	case lineSystem:
		return systemStyle.Render(wordwrap.String(line.text, width))
	case lineError:
		return errorStyle.Render(wordwrap.String(line.text, width))
	default:
		return npcStyle.Render(npcName+": ") + wordwrap.String(line.text, width-len(npcName)-2)
	}
}

func (m *ConsoleUI) appendLine(kind lineKind, text string) {
	m.transcript = append(m.transcript, transcriptLine{kind: kind, text: text})
}

func (m *ConsoleUI) resize() {
	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m *ConsoleUI) refresh() {
	m.writeChatContent()
	m.metaViewport.SetContent(m.writeMetadata())
}

func (m ConsoleUI) Init() tea.Cmd {
	return textarea.Blink
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			m.textarea.Reset()
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.appendLine(linePlayer, input)
			return m.startRequest(m.sendMessage(input))
		}

	case replyMsg:
		m.loading = false
		switch {
		case msg.err != nil:
			m.appendLine(lineError, "Error: "+msg.err.Error())
		case msg.setup:
			m.appendLine(lineSystem, msg.reply)
			if strings.HasSuffix(msg.reply, strings.TrimPrefix(conversation.SetupCompleteFormat, "%s")) {
				m.setupDone = true
			}
		default:
			m.lastReply = msg.reply
			m.appendLine(lineNPC, msg.reply)
		}
		m.refresh()
		return m, nil

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m ConsoleUI) startRequest(cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.loading = true
	m.progressTick = 0
	m.refresh()
	return m, tea.Batch(cmd, progressTick())
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/help":
		m.appendLine(lineSystem, helpText)

	case "/setup":
		setup, err := parseSetup(rest)
		if err != nil {
			m.appendLine(lineError, "Error: "+err.Error())
			break
		}
		m.appendLine(linePlayer, "/setup "+rest)
		return m.startRequest(m.sendSetup(setup))

	case "/chat":
		m.chatMode = !m.chatMode
		if m.chatMode {
			m.appendLine(lineSystem, "Chat mode on: messages are sent as acknowledged chat.")
		} else {
			m.appendLine(lineSystem, "Chat mode off: messages are sent as player messages.")
		}

	case "/copy":
		switch {
		case m.lastReply == "":
			m.appendLine(lineSystem, "Nothing to copy yet.")
		default:
			if err := clipboard.WriteAll(m.lastReply); err != nil {
				m.appendLine(lineError, "Error: could not copy: "+err.Error())
			} else {
				m.appendLine(lineSystem, "Copied the last reply to the clipboard.")
			}
		}

	case "/clear":
		m.transcript = nil

	default:
		m.appendLine(lineError, fmt.Sprintf("Unknown command %s. Type /help for commands.", name))
	}

	m.refresh()
	return m, nil
}

// parseSetup reads "/setup" arguments: free text description plus optional
// key=value hints for race, class, level and background.
func parseSetup(args string) (protocol.SetupMessage, error) {
	var setup protocol.SetupMessage
	var words []string

	for _, field := range strings.Fields(args) {
		key, value, ok := strings.Cut(field, "=")
		if !ok || value == "" {
			words = append(words, field)
			continue
		}
		switch strings.ToLower(key) {
		case "race":
			setup.Race = value
		case "class":
			setup.Class = value
		case "background":
			setup.Background = value
		case "level":
			level, err := strconv.Atoi(value)
			if err != nil || level < 1 {
				return setup, fmt.Errorf("level must be a positive number, got %q", value)
			}
			setup.Level = &level
		default:
			words = append(words, field)
		}
	}

	setup.Description = strings.Join(words, " ")
	if setup.Description == "" {
		return setup, fmt.Errorf("usage: /setup <description> [race=.. class=.. level=.. background=..]")
	}
	return setup, nil
}

func (m ConsoleUI) sendSetup(setup protocol.SetupMessage) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		reply, err := client.Setup(context.Background(), setup)
		return replyMsg{setup: true, reply: reply, err: err}
	}
}

func (m ConsoleUI) sendMessage(text string) tea.Cmd {
	client := m.client
	chatMode := m.chatMode
	return func() tea.Msg {
		var (
			reply string
			err   error
		)
		if chatMode {
			reply, err = client.SendChat(context.Background(), text)
		} else {
			reply, err = client.Send(context.Background(), text)
		}
		return replyMsg{reply: reply, err: err}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case replyMsg:
		// A reply can land while the modal is open; keep it.
		m.showQuitModal = false
		model, cmd := m.Update(msg)
		ui := model.(ConsoleUI)
		ui.showQuitModal = true
		return ui, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Are you sure you want to leave this conversation?")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 0))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar draws the waiting-for-reply animation
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30
	}
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
