package ui

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/evallife/polychat/internal/chat"
	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/provider"
	"github.com/evallife/polychat/internal/settings"
	"github.com/evallife/polychat/internal/types"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"
)

type TViewUI struct {
	App         *tview.Application
	Pages       *tview.Pages
	ChatView    *tview.TextView
	StatusView  *tview.TextView
	InputField  *tview.InputField
	HistoryList *tview.List
	ModelList   *tview.List

	// Sidebar components
	Sidebar  *tview.List
	MainFlex *tview.Flex

	ctx        context.Context
	chat       *chat.Service
	settings   *settings.Service
	log        zerolog.Logger
	renderer   *glamour.TermRenderer
	historyIDs []string
	modelIDs   []string
	pending    atomic.Bool
}

func NewTViewUI(ctx context.Context, chatSvc *chat.Service, settingsSvc *settings.Service, log zerolog.Logger) *TViewUI {
	ui := &TViewUI{
		App:      tview.NewApplication(),
		Pages:    tview.NewPages(),
		ctx:      ctx,
		chat:     chatSvc,
		settings: settingsSvc,
		log:      log,
	}

	// Theme / styling
	tview.Styles.PrimitiveBackgroundColor = tcell.ColorBlack
	tview.Styles.ContrastBackgroundColor = tcell.ColorDarkSlateGray
	tview.Styles.BorderColor = tcell.ColorDarkSlateGray
	tview.Styles.TitleColor = tcell.ColorLightSkyBlue
	tview.Styles.PrimaryTextColor = tcell.ColorWhite
	tview.Styles.SecondaryTextColor = tcell.ColorGray
	tview.Styles.TertiaryTextColor = tcell.ColorLightGray

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		log.Warn().Err(err).Msg("markdown renderer unavailable, showing raw text")
	} else {
		ui.renderer = renderer
	}

	ui.setupSidebar()
	ui.setupChatView()
	ui.setupHistoryView()
	ui.setupModelView()

	footer := ui.buildFooterBar()
	chatFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.ChatView, 0, 1, false).
		AddItem(ui.StatusView, 1, 0, false).
		AddItem(ui.InputField, 3, 1, true).
		AddItem(footer, 3, 1, false)

	ui.MainFlex = tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(ui.Sidebar, 20, 1, false).
		AddItem(chatFlex, 0, 4, true)

	ui.Pages.AddPage("chat", ui.MainFlex, true, true)
	ui.App.SetRoot(ui.Pages, true).EnableMouse(true)

	ui.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlN:
			ui.newConversation()
			return nil
		case tcell.KeyCtrlH:
			ui.showHistory()
			return nil
		case tcell.KeyCtrlS:
			ui.showSettings()
			return nil
		case tcell.KeyCtrlO:
			ui.showModels()
			return nil
		case tcell.KeyCtrlE:
			ui.exportHistory()
			return nil
		case tcell.KeyCtrlR:
			ui.regenerate()
			return nil
		case tcell.KeyCtrlX:
			ui.chat.Stop(ui.chat.ActiveID())
			return nil
		case tcell.KeyCtrlD:
			ui.dismissNotices()
			return nil
		}
		return event
	})

	ui.chat.OnChange(func(convID string) {
		if convID == "" || convID == ui.chat.ActiveID() {
			ui.scheduleRefresh()
		}
	})
	ui.refreshChat()
	return ui
}

func (ui *TViewUI) setupSidebar() {
	ui.Sidebar = tview.NewList().
		AddItem("New Chat", "Start fresh", 'n', ui.newConversation).
		AddItem("History", "Past chats", 'h', ui.showHistory).
		AddItem("Models", "Pick a model", 'm', ui.showModels).
		AddItem("Settings", "API keys", 's', ui.showSettings).
		AddItem("Quit", "Exit app", 'q', func() { ui.App.Stop() })

	ui.Sidebar.SetBorder(true).SetTitle(" Menu ")
	ui.Sidebar.SetTitleColor(tcell.ColorYellow)
}

func (ui *TViewUI) setupChatView() {
	ui.ChatView = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)
	ui.ChatView.SetBorder(true).SetTitle(" Chat ")
	ui.ChatView.SetTitleColor(tcell.ColorLightSkyBlue)

	ui.StatusView = tview.NewTextView().SetDynamicColors(true)

	ui.InputField = tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0)
	ui.InputField.SetBorder(true).SetTitle(" Input (Enter to send, /help) ")
	ui.InputField.SetTitleColor(tcell.ColorLightSkyBlue)
	ui.InputField.SetFieldBackgroundColor(tcell.ColorBlack)
	ui.InputField.SetFieldTextColor(tcell.ColorWhite)
	ui.InputField.SetLabelColor(tcell.ColorLightCyan)

	ui.InputField.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := ui.InputField.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		ui.InputField.SetText("")
		ui.handleInput(text)
	})
}

func (ui *TViewUI) handleInput(input string) {
	if strings.HasPrefix(input, "/") {
		ui.handleCommand(input)
		return
	}
	ui.send(input)
}

func (ui *TViewUI) send(text string) {
	go func() {
		if err := ui.chat.Send(ui.ctx, text); err != nil {
			ui.log.Debug().Err(err).Msg("send finished with error")
		}
	}()
}

func (ui *TViewUI) handleCommand(input string) {
	parts := strings.Fields(input)
	cmd := parts[0]
	args := parts[1:]

	switch cmd {
	case "/read":
		if len(args) == 0 {
			ui.appendSystemMsg("Usage: /read <path>")
			return
		}
		content, err := os.ReadFile(args[0])
		if err != nil {
			ui.appendSystemMsg(fmt.Sprintf("Error reading file: %v", err))
			return
		}
		ui.send(fmt.Sprintf("Content of file %s:\n\n%s", args[0], string(content)))

	case "/regen":
		ui.regenerate()

	case "/version":
		if len(args) == 0 {
			ui.appendSystemMsg("Usage: /version <n>")
			return
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			ui.appendSystemMsg("Version must be a number.")
			return
		}
		ui.selectVersion(n - 1)

	case "/stop":
		if !ui.chat.Stop(ui.chat.ActiveID()) {
			ui.appendSystemMsg("Nothing is generating.")
		}

	case "/model":
		if len(args) == 0 {
			ui.showModels()
			return
		}
		ui.useModel(args[0])

	case "/rename":
		id := ui.chat.ActiveID()
		if id == "" || len(args) == 0 {
			ui.appendSystemMsg("Usage: /rename <title> (in an open chat)")
			return
		}
		if err := ui.chat.Rename(id, strings.Join(args, " ")); err != nil {
			ui.appendSystemMsg(chaterr.UserMessage(err))
		}

	case "/clear":
		ui.confirm("Delete ALL conversations?", "Delete all", func() {
			if err := ui.chat.ClearHistory(); err != nil {
				ui.appendSystemMsg(fmt.Sprintf("Clear failed: %v", err))
			}
		})

	case "/save":
		filename := "chat_save.md"
		if len(args) > 0 {
			filename = args[0]
		}
		ui.exportToFile(filename)

	case "/help":
		ui.appendSystemMsg("Commands:\n" +
			"/read <path> - Send a file\n" +
			"/regen - Regenerate the last answer (Ctrl-R)\n" +
			"/version <n> - Show answer version n\n" +
			"/stop - Stop generating (Ctrl-X)\n" +
			"/model [id] - Pick the model for this chat (Ctrl-O)\n" +
			"/rename <title> - Rename this chat\n" +
			"/clear - Delete all chats\n" +
			"/save [path] - Save to file (Ctrl-E)\n" +
			"/help - Show this help")

	default:
		ui.appendSystemMsg(fmt.Sprintf("Unknown command: %s. Type /help for list.", cmd))
	}
}

// lastAssistant returns the trailing assistant message of the active chat.
func (ui *TViewUI) lastAssistant() (string, types.Message, bool) {
	conv, ok := ui.chat.Active()
	if !ok {
		return "", types.Message{}, false
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == types.RoleAssistant {
			return conv.ID, conv.Messages[i], true
		}
	}
	return "", types.Message{}, false
}

func (ui *TViewUI) regenerate() {
	convID, msg, ok := ui.lastAssistant()
	if !ok {
		ui.appendSystemMsg("There is no answer to regenerate.")
		return
	}
	go func() {
		if err := ui.chat.Regenerate(ui.ctx, convID, msg.ID); err != nil {
			ui.log.Debug().Err(err).Msg("regenerate finished with error")
		}
	}()
}

func (ui *TViewUI) selectVersion(index int) {
	convID, msg, ok := ui.lastAssistant()
	if !ok {
		ui.appendSystemMsg("There is no answer yet.")
		return
	}
	if err := ui.chat.SelectVersion(convID, msg.ID, index); err != nil {
		ui.appendSystemMsg(fmt.Sprintf("Pick a version between 1 and %d.", len(msg.Versions)))
	}
}

func (ui *TViewUI) useModel(id string) {
	if _, ok := ui.settings.Model(id); !ok {
		ui.appendSystemMsg(fmt.Sprintf("Unknown model: %s", id))
		return
	}
	convID := ui.chat.ActiveID()
	if convID == "" {
		convID = ui.chat.NewConversation(id)
	} else if err := ui.chat.SetModel(convID, id); err != nil {
		ui.appendSystemMsg(chaterr.UserMessage(err))
		return
	}
	ui.refreshChat()
}

func (ui *TViewUI) exportToFile(filename string) {
	conv, ok := ui.chat.Active()
	if !ok {
		ui.appendSystemMsg("Nothing to save.")
		return
	}
	err := os.WriteFile(filename, []byte(chat.ExportMarkdown(conv)), 0644)
	if err != nil {
		ui.appendSystemMsg(fmt.Sprintf("Save failed: %v", err))
	} else {
		ui.appendSystemMsg("History saved to " + filename)
	}
}

// scheduleRefresh coalesces redraw requests coming from stream goroutines.
func (ui *TViewUI) scheduleRefresh() {
	if !ui.pending.CompareAndSwap(false, true) {
		return
	}
	go ui.App.QueueUpdateDraw(func() {
		ui.pending.Store(false)
		ui.refreshChat()
	})
}

func (ui *TViewUI) refreshChat() {
	ui.ChatView.Clear()
	conv, ok := ui.chat.Active()
	if !ok {
		ui.ChatView.SetTitle(" Chat ")
		fmt.Fprint(ui.ChatView, "[gray]Type a message to start a new chat.[-]\n")
		ui.refreshStatus(nil)
		return
	}

	model, _ := ui.settings.Model(conv.ModelID)
	ui.ChatView.SetTitle(fmt.Sprintf(" %s · %s ", tview.Escape(conv.Title), modelLabel(conv.ModelID, model)))
	for _, m := range conv.Messages {
		roleColor := "purple"
		if m.Role == types.RoleAssistant {
			roleColor = "green"
		}
		header := strings.ToUpper(string(m.Role))
		if len(m.Versions) > 1 {
			header = fmt.Sprintf("%s [gray](version %d/%d)[-]", header, m.CurrentVersionIndex+1, len(m.Versions))
		}
		fmt.Fprintf(ui.ChatView, "[%s][b]%s[-][/b]\n", roleColor, header)

		switch {
		case m.IsLoading && m.Content == "":
			fmt.Fprint(ui.ChatView, "[gray]...[-]\n\n")
		case m.IsLoading:
			// Raw text while streaming; markdown is rendered once finalized.
			fmt.Fprintf(ui.ChatView, "%s\n\n", tview.Escape(m.Content))
		default:
			fmt.Fprintf(ui.ChatView, "%s\n", ui.render(m.Content))
			if m.Incomplete {
				fmt.Fprint(ui.ChatView, "[yellow][i](incomplete)[-][/i]\n\n")
			}
		}
	}
	ui.ChatView.ScrollToEnd()
	ui.refreshStatus(conv)
}

// render formats finalized markdown, falling back to the escaped raw text
// when no renderer is available or rendering fails.
func (ui *TViewUI) render(content string) string {
	if ui.renderer == nil {
		return tview.Escape(content) + "\n"
	}
	rendered, err := ui.renderer.Render(content)
	if err != nil {
		ui.log.Warn().Err(err).Msg("markdown render failed")
		return tview.Escape(content) + "\n"
	}
	return tview.TranslateANSI(rendered)
}

func modelLabel(id string, model types.ModelRef) string {
	if model.Name != "" {
		return model.Name
	}
	if id == "" {
		return "default model"
	}
	return id
}

// refreshStatus shows the newest notice for the active chat, or the call to
// action when the chat's model cannot be used. Input is disabled until the
// model resolves.
func (ui *TViewUI) refreshStatus(conv *types.Conversation) {
	ui.StatusView.Clear()
	activeID := ""
	if conv != nil {
		activeID = conv.ID
	}

	_, _, resolveErr := ui.settings.Resolve(conv)
	if resolveErr != nil {
		ui.InputField.SetPlaceholder(chaterr.UserMessage(resolveErr) + " (Ctrl-S settings, Ctrl-O models)")
	} else {
		ui.InputField.SetPlaceholder("")
	}
	ui.InputField.SetDisabled(resolveErr != nil)

	notices := ui.chat.Notices()
	for i := len(notices) - 1; i >= 0; i-- {
		n := notices[i]
		if n.ConversationID != "" && n.ConversationID != activeID {
			continue
		}
		color := "yellow"
		if n.Blocking {
			color = "red"
		}
		fmt.Fprintf(ui.StatusView, "[%s]%s[-] [gray](Ctrl-D to dismiss)[-]", color, tview.Escape(n.Text))
		return
	}

	if resolveErr != nil {
		fmt.Fprintf(ui.StatusView, "[red]%s[-]", tview.Escape(chaterr.UserMessage(resolveErr)))
		return
	}
	if conv != nil && ui.chat.Streaming(conv.ID) {
		fmt.Fprint(ui.StatusView, "[gray]Generating... (Ctrl-X to stop)[-]")
	}
}

func (ui *TViewUI) dismissNotices() {
	for _, n := range ui.chat.Notices() {
		ui.chat.DismissNotice(n.ID)
	}
	ui.refreshChat()
}

func (ui *TViewUI) appendSystemMsg(msg string) {
	fmt.Fprintf(ui.ChatView, "[red][b]SYSTEM[-][/b]\n%s\n\n", tview.Escape(msg))
	ui.ChatView.ScrollToEnd()
}

func (ui *TViewUI) setupHistoryView() {
	ui.HistoryList = tview.NewList().
		SetSelectedFunc(func(index int, mainText string, secondaryText string, shortcut rune) {
			if index < 0 || index >= len(ui.historyIDs) {
				return
			}
			if err := ui.chat.SetActive(ui.historyIDs[index]); err != nil {
				ui.log.Warn().Err(err).Msg("select conversation")
			}
			ui.Pages.SwitchToPage("chat")
			ui.refreshChat()
		})
	ui.HistoryList.SetBorder(true).SetTitle(" History ")
	ui.HistoryList.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEsc {
			ui.Pages.SwitchToPage("chat")
			return nil
		}
		if event.Key() == tcell.KeyDelete || event.Rune() == 'd' {
			ui.confirmDeleteSelected()
			return nil
		}
		return event
	})

	historyFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.HistoryList, 0, 1, true).
		AddItem(ui.buildHistoryBar(), 3, 1, false)

	ui.Pages.AddPage("history", historyFlex, true, false)
}

func (ui *TViewUI) showHistory() {
	ui.HistoryList.Clear()
	ui.historyIDs = ui.historyIDs[:0]
	for _, c := range ui.chat.Conversations() {
		secondary := fmt.Sprintf("%s · %d messages · %s", c.ModelID, c.Messages, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
		if c.Streaming {
			secondary += " · generating"
		}
		ui.HistoryList.AddItem(tview.Escape(c.Title), secondary, 0, nil)
		ui.historyIDs = append(ui.historyIDs, c.ID)
	}
	ui.Pages.SwitchToPage("history")
}

func (ui *TViewUI) setupModelView() {
	ui.ModelList = tview.NewList().
		SetSelectedFunc(func(index int, mainText string, secondaryText string, shortcut rune) {
			if index < 0 || index >= len(ui.modelIDs) {
				return
			}
			ui.useModel(ui.modelIDs[index])
			ui.Pages.SwitchToPage("chat")
		})
	ui.ModelList.SetBorder(true).SetTitle(" Models (Enter use · f favorite · * default · a add · x remove) ")
	ui.ModelList.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEsc {
			ui.Pages.SwitchToPage("chat")
			return nil
		}
		idx := ui.ModelList.GetCurrentItem()
		var id string
		if idx >= 0 && idx < len(ui.modelIDs) {
			id = ui.modelIDs[idx]
		}
		var err error
		switch event.Rune() {
		case 'f':
			_, err = ui.settings.ToggleFavorite(id)
		case '*':
			err = ui.settings.SetDefaultModel(id)
		case 'x':
			err = ui.settings.RemoveModel(id)
		case 'a':
			ui.showAddModel()
			return nil
		default:
			return event
		}
		if err != nil {
			ui.showMessage(err.Error())
		}
		ui.showModels()
		ui.ModelList.SetCurrentItem(idx)
		return nil
	})
	ui.Pages.AddPage("models", ui.ModelList, true, false)
}

func (ui *TViewUI) showModels() {
	st := ui.settings.Settings()
	active := map[types.ProviderID]bool{}
	for _, id := range ui.settings.ActiveProviders() {
		active[id] = true
	}

	ui.ModelList.Clear()
	ui.modelIDs = ui.modelIDs[:0]
	// Favorites first, catalog order otherwise.
	for _, favorites := range []bool{true, false} {
		for _, m := range st.Models {
			if m.IsFavorite != favorites {
				continue
			}
			label := m.Name
			if m.IsFavorite {
				label = "★ " + label
			}
			if m.ID == st.DefaultModelID {
				label += " (default)"
			}
			secondary := fmt.Sprintf("%s · %s", m.Provider, m.ID)
			if !active[m.Provider] {
				secondary += " · no API key"
			}
			ui.ModelList.AddItem(tview.Escape(label), secondary, 0, nil)
			ui.modelIDs = append(ui.modelIDs, m.ID)
		}
	}
	ui.Pages.SwitchToPage("models")
}

func (ui *TViewUI) showAddModel() {
	form := tview.NewForm()
	form.AddInputField("Model ID", "", 40, nil, nil).
		AddInputField("Name", "", 40, nil, nil).
		AddInputField("Base URL", "", 40, nil, nil).
		AddInputField("Description", "", 40, nil, nil).
		AddButton("Add", func() {
			ref := types.ModelRef{
				ID:          form.GetFormItem(0).(*tview.InputField).GetText(),
				Name:        form.GetFormItem(1).(*tview.InputField).GetText(),
				BaseURL:     form.GetFormItem(2).(*tview.InputField).GetText(),
				Description: form.GetFormItem(3).(*tview.InputField).GetText(),
				Provider:    types.ProviderOpenAICompatible,
			}
			if _, err := ui.settings.AddCustomModel(ref); err != nil {
				ui.showMessage(err.Error())
				return
			}
			ui.Pages.RemovePage("add-model")
			ui.showModels()
		}).
		AddButton("Cancel", func() {
			ui.Pages.RemovePage("add-model")
			ui.showModels()
		})
	form.SetBorder(true).SetTitle(" Add OpenAI-compatible model ")
	ui.Pages.AddPage("add-model", form, true, true)
}

// showSettings builds the credential form fresh so it reflects the store.
func (ui *TViewUI) showSettings() {
	adapters := provider.All()
	form := tview.NewForm()
	for _, a := range adapters {
		form.AddPasswordField(a.Name, ui.settings.Credential(a.ID), 50, '*', nil)
	}
	values := func() map[types.ProviderID]string {
		out := map[types.ProviderID]string{}
		for i, a := range adapters {
			out[a.ID] = form.GetFormItem(i).(*tview.InputField).GetText()
		}
		return out
	}
	form.AddButton("Save", func() {
		for id, v := range values() {
			if err := ui.settings.SetCredential(id, v); err != nil {
				ui.showMessage(err.Error())
				return
			}
		}
		ui.Pages.RemovePage("settings")
		ui.Pages.SwitchToPage("chat")
		ui.refreshChat()
	}).
		AddButton("Validate", func() {
			ui.validateCredentials(values())
		}).
		AddButton("Cancel", func() {
			ui.Pages.RemovePage("settings")
			ui.Pages.SwitchToPage("chat")
		})
	form.SetBorder(true).SetTitle(" Settings · API keys ")
	form.SetCancelFunc(func() {
		ui.Pages.RemovePage("settings")
		ui.Pages.SwitchToPage("chat")
	})
	ui.Pages.AddPage("settings", form, true, true)
}

func (ui *TViewUI) validateCredentials(values map[types.ProviderID]string) {
	baseURL := ""
	for _, m := range ui.settings.Settings().Models {
		if m.Provider == types.ProviderOpenAICompatible && m.BaseURL != "" {
			baseURL = m.BaseURL
			break
		}
	}
	go func() {
		ctx, cancel := context.WithTimeout(ui.ctx, 30*time.Second)
		defer cancel()
		var sb strings.Builder
		for _, a := range provider.All() {
			v := strings.TrimSpace(values[a.ID])
			if v == "" {
				continue
			}
			state := "rejected"
			if ui.settings.ValidateCredential(ctx, a.ID, v, baseURL) {
				state = "ok"
			}
			sb.WriteString(fmt.Sprintf("%s: %s\n", a.Name, state))
		}
		if sb.Len() == 0 {
			sb.WriteString("No keys entered.")
		}
		ui.App.QueueUpdateDraw(func() { ui.showMessage(sb.String()) })
	}()
}

func (ui *TViewUI) showMessage(text string) {
	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(int, string) { ui.Pages.RemovePage("message") })
	ui.Pages.AddPage("message", modal, true, true)
}

func (ui *TViewUI) newConversation() {
	model := ""
	if conv, ok := ui.chat.Active(); ok {
		model = conv.ModelID
	}
	ui.chat.NewConversation(model)
	ui.Pages.SwitchToPage("chat")
	ui.refreshChat()
}

func (ui *TViewUI) exportHistory() {
	filename := fmt.Sprintf("chat_export_%d.md", time.Now().Unix())
	ui.exportToFile(filename)
}

func (ui *TViewUI) makeButton(label string, action func()) *tview.Button {
	btn := tview.NewButton(label)
	btn.SetSelectedFunc(action)
	btn.SetBackgroundColor(tcell.ColorDarkSlateGray)
	btn.SetBackgroundColorActivated(tcell.ColorLightSkyBlue)
	btn.SetLabelColor(tcell.ColorWhite)
	btn.SetLabelColorActivated(tcell.ColorBlack)
	return btn
}

func (ui *TViewUI) buildFooterBar() *tview.Flex {
	bar := tview.NewFlex().SetDirection(tview.FlexColumn)
	bar.SetBorder(true).SetTitle(" Actions ")
	bar.AddItem(ui.makeButton("New", ui.newConversation), 0, 1, false)
	bar.AddItem(ui.makeButton("History", ui.showHistory), 0, 1, false)
	bar.AddItem(ui.makeButton("Regenerate", ui.regenerate), 0, 1, false)
	bar.AddItem(ui.makeButton("Stop", func() { ui.chat.Stop(ui.chat.ActiveID()) }), 0, 1, false)
	bar.AddItem(ui.makeButton("Models", ui.showModels), 0, 1, false)
	bar.AddItem(ui.makeButton("Settings", ui.showSettings), 0, 1, false)
	bar.AddItem(ui.makeButton("Quit", func() { ui.App.Stop() }), 0, 1, false)
	return bar
}

func (ui *TViewUI) buildHistoryBar() *tview.Flex {
	bar := tview.NewFlex().SetDirection(tview.FlexColumn)
	bar.SetBorder(true).SetTitle(" History Actions ")
	bar.AddItem(ui.makeButton("Delete", ui.confirmDeleteSelected), 0, 1, false)
	bar.AddItem(ui.makeButton("Clear all", func() {
		ui.confirm("Delete ALL conversations?", "Delete all", func() {
			if err := ui.chat.ClearHistory(); err != nil {
				ui.showMessage(fmt.Sprintf("Clear failed: %v", err))
			}
			ui.showHistory()
		})
	}), 0, 1, false)
	bar.AddItem(ui.makeButton("Back", func() { ui.Pages.SwitchToPage("chat") }), 0, 1, false)
	return bar
}

func (ui *TViewUI) getSelectedHistoryID() (string, bool) {
	idx := ui.HistoryList.GetCurrentItem()
	if idx < 0 || idx >= len(ui.historyIDs) {
		return "", false
	}
	return ui.historyIDs[idx], true
}

func (ui *TViewUI) confirmDeleteSelected() {
	convID, ok := ui.getSelectedHistoryID()
	if !ok {
		return
	}
	ui.confirm("Delete this conversation?", "Delete", func() {
		if err := ui.chat.DeleteConversation(convID); err != nil {
			ui.showMessage(fmt.Sprintf("Delete failed: %v", err))
		}
		ui.showHistory()
	})
}

func (ui *TViewUI) confirm(text, action string, fn func()) {
	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{action, "Cancel"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			ui.Pages.RemovePage("confirm")
			if buttonLabel == action {
				fn()
			}
		})
	ui.Pages.AddPage("confirm", modal, true, true)
}

func (ui *TViewUI) Run() error {
	return ui.App.Run()
}
