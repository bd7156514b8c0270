package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/precinct/internal/rpc"
	"github.com/matheus3301/precinct/internal/tui/client"
	"github.com/matheus3301/precinct/internal/tui/keys"
	"github.com/matheus3301/precinct/internal/tui/model"
	"github.com/matheus3301/precinct/internal/tui/ui"
	"github.com/matheus3301/precinct/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageConversations = "conversations"
	pageThread        = "thread"
	pageSearch        = "search"
	pageAuth          = "auth"
	pageHelp          = "help"
	pageDetails       = "details"

	promptHeight = 3
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	vm       *model.ViewModel
	registry *keys.Registry
	notices  *ui.Notices

	info   *ui.SessionInfo
	menu   *ui.Menu
	crumbs *ui.Crumbs
	bar    *ui.NoticeBar
	prompt *ui.Prompt
	body   *tview.Flex

	convList *views.ConversationList
	thread   *views.MessageThread
	searchV  *views.SearchView
	authView *views.AuthView
	helpView *views.HelpView
	details  *views.ConversationInfo

	session string
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		pages:    ui.NewPages(),
		vm:       model.NewViewModel(c),
		registry: keys.NewRegistry(),
		notices:  ui.NewNotices(),
		info:     ui.NewSessionInfo(theme),
		menu:     ui.NewMenu(theme),
		crumbs:   ui.NewCrumbs(theme),
		bar:      ui.NewNoticeBar(theme),
		prompt:   ui.NewPrompt(theme),
		convList: views.NewConversationList(theme),
		thread:   views.NewMessageThread(theme),
		searchV:  views.NewSearchView(theme),
		authView: views.NewAuthView(theme),
		helpView: views.NewHelpView(theme),
		details:  views.NewConversationInfo(theme),
		session:  sessionName,
		ctx:      ctx,
		cancel:   cancel,
	}
	a.pages.Register(pageConversations, a.convList)
	a.pages.Register(pageThread, a.thread)
	a.pages.Register(pageSearch, a.searchV)
	a.pages.Register(pageAuth, a.authView)
	a.pages.Register(pageHelp, a.helpView)
	a.pages.Register(pageDetails, a.details)

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune,
		Description: "?:help", Visible: true,
		Handler: func() { a.push(pageHelp) },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune,
		Description: "::command",
		Handler:     func() { a.showPrompt(ui.PromptCommand) },
	})

	a.registry.AddView(pageConversations, "filter", &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Description: "/:filter", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageConversations, "search", &keys.Action{
		Rune: 's', Key: tcell.KeyRune,
		Description: "s:search", Visible: true,
		Handler: a.openSearch,
	})
	a.registry.AddView(pageThread, "search", &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Description: "/:search", Visible: true,
		Handler: a.openSearch,
	})
	a.registry.AddView(pageThread, "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, "retry", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:retry", Visible: true,
		Handler: a.retry,
	})
	a.registry.AddView(pageThread, "details", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune,
		Description: "d:details", Visible: true,
		Handler: func() {
			a.details.Update(a.thread.Conversation(), a.vm.Status())
			a.push(pageDetails)
		},
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, _ int) {
		if c, ok := a.convList.ByIndex(row); ok {
			a.open(c)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			if _, err := a.vm.Send(a.ctx, text); err != nil {
				a.notices.Error(fmt.Errorf("send failed: %w", err))
			}
		}()
	})

	a.searchV.SetOnQuery(a.search)
	a.searchV.SetNames(a.vm.Name)
	a.searchV.Results().SetSelectedFunc(func(_, _ int) {
		id := a.searchV.SelectedConversation()
		if id == "" {
			return
		}
		c, ok := model.Find(a.vm.Conversations(), id)
		if !ok {
			c = rpc.Conversation{ID: id}
		}
		a.open(c)
	})

	a.authView.SetOnToken(a.login)

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptFilter {
			a.convList.SetFilter(text)
			return
		}
		a.runCommand(ParseCommand(text))
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func(top ui.Page, trail []ui.Page) {
		a.crumbs.Update(ui.Titles(trail))
		a.menu.Update(top.Hints())
		a.app.SetFocus(top.FocusTarget())
	})
}

func (a *App) setupLayout() {
	header := tview.NewFlex().
		AddItem(a.info, 0, 2, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(ui.NewLogo(a.theme), 16, 0, false)

	a.body = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.bar, 1, 0, false)

	a.app.SetRoot(a.body, true)
	a.pages.Reset(pageConversations)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		current := a.pages.Current()
		focused := a.app.GetFocus()

		if event.Key() == tcell.KeyEscape {
			if focused == a.prompt.InputField {
				return event
			}
			if focused == a.thread.Composer() {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			a.back()
			return nil
		}

		// Let text input widgets handle all keys normally.
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if current == pageConversations && event.Key() == tcell.KeyRune && event.Rune() >= '0' && event.Rune() <= '9' {
			n := int(event.Rune() - '0')
			if n == 0 {
				a.convList.ClearFilter()
				return nil
			}
			if c, ok := a.convList.ByIndex(n); ok {
				a.open(c)
			}
			return nil
		}

		if a.registry.HandleEvent(current, event) {
			return nil
		}
		return event
	})
}

func (a *App) push(page string) { a.pages.Push(page) }

func (a *App) reset(page string) { a.pages.Reset(page) }

// back pops one page. Leaving the thread closes the conversation stream.
func (a *App) back() {
	if a.pages.Pop() == pageThread {
		go func() {
			if err := a.vm.Deselect(a.ctx); err != nil {
				a.notices.Error(err)
			}
		}()
	}
}

// refocus gives input back to the top page and redraws its crumbs.
func (a *App) refocus() { a.pages.Refresh() }

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.body.ResizeItem(a.prompt, promptHeight, 0)
	a.app.SetFocus(a.prompt.InputField)
}

func (a *App) hidePrompt() {
	a.body.ResizeItem(a.prompt, 0, 0)
	a.refocus()
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.push(pageHelp)
	case "open":
		c, ok := model.Find(a.vm.Conversations(), cmd.Args)
		if !ok {
			a.notices.Warn("no conversation matches %q", cmd.Args)
			return
		}
		a.open(c)
	case "search":
		a.openSearch()
		if cmd.Args != "" {
			a.searchV.SetQuery(cmd.Args)
			a.search(cmd.Args, a.searchV.Scope())
		}
	case "retry":
		a.retry()
	case "close":
		if a.pages.Current() == pageThread {
			a.back()
		}
	case "login":
		if cmd.Args == "" {
			a.reset(pageAuth)
			return
		}
		a.login(cmd.Args)
	case "logout":
		go func() {
			if err := a.vm.Logout(a.ctx); err != nil {
				a.notices.Error(err)
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.authView.ShowMessage("Logged out.")
				a.reset(pageAuth)
			})
		}()
	default:
		a.notices.Warn("unknown command %q", cmd.Name)
	}
}

// open selects c on the daemon and shows its thread.
func (a *App) open(c rpc.Conversation) {
	a.thread.Open(c)
	if a.pages.Current() != pageThread {
		a.push(pageThread)
	}
	go func() {
		conv, err := a.vm.Select(a.ctx, c.ID)
		if err != nil {
			a.notices.Error(fmt.Errorf("open %s: %w", c.ID, err))
			return
		}
		a.app.QueueUpdateDraw(func() {
			if a.thread.Conversation().ID == conv.ID {
				a.thread.Update(a.vm.Thread())
			}
			if a.pages.Current() == pageThread {
				a.refocus()
			}
		})
	}()
}

func (a *App) retry() {
	go func() {
		if _, err := a.vm.RetryLastFailed(a.ctx); err != nil {
			a.notices.Error(fmt.Errorf("retry: %w", err))
			return
		}
		a.notices.Info("message resent")
	}()
}

// openSearch shows the search page scoped to the open thread, if any.
func (a *App) openSearch() {
	active := ""
	if a.pages.Current() == pageThread {
		active = a.thread.Conversation().ID
	}
	a.searchV.SetActive(active)
	if active != "" && a.searchV.Scope() == views.ScopeAll {
		a.searchV.ToggleScope()
	}
	a.push(pageSearch)
}

func (a *App) search(query string, scope views.SearchScope) {
	conv := ""
	if scope == views.ScopeActive {
		conv = a.searchV.ActiveID()
	}
	go func() {
		hits, err := a.vm.Search(a.ctx, query, conv)
		if err != nil {
			a.notices.Error(fmt.Errorf("search failed: %w", err))
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.searchV.Update(hits)
			a.app.SetFocus(a.searchV.Results())
		})
	}()
}

func (a *App) login(token string) {
	a.authView.ShowMessage("Logging in...")
	go func() {
		resp, err := a.vm.Login(a.ctx, token)
		if err != nil {
			a.app.QueueUpdateDraw(func() {
				a.authView.ShowMessage("Login failed: " + err.Error())
			})
			return
		}
		_ = a.vm.LoadConversations(a.ctx)
		a.notices.Info("logged in as %s", resp.UserID)
		a.app.QueueUpdateDraw(func() {
			a.convList.Update(a.vm.Conversations())
			a.reset(pageConversations)
		})
	}()
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.refresh()
	go a.vm.Watch(a.ctx, func(evt *rpc.WatchEvent) {
		a.app.QueueUpdateDraw(func() {
			a.thread.Update(evt)
			if a.pages.Current() == pageDetails && evt.Conversation.ID == a.thread.Conversation().ID {
				a.details.Update(evt.Conversation, a.vm.Status())
			}
		})
	})
	go a.watchNotices()
	return a.app.Run()
}

func (a *App) refresh() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		statusErr := a.vm.LoadStatus(a.ctx)
		_ = a.vm.LoadConversations(a.ctx)
		a.app.QueueUpdateDraw(func() {
			if statusErr != nil {
				a.notices.Post(ui.SevError, "daemon unreachable: "+statusErr.Error())
				return
			}
			a.render()
		})
		select {
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}
	}
}

// render applies the latest status and directory. Must run on the UI goroutine.
func (a *App) render() {
	ss := a.vm.Status()
	if ss == nil {
		return
	}
	a.info.Update(&ui.SessionData{
		Session:       a.session,
		User:          userLabel(ss),
		Status:        ss.Status,
		Detail:        ss.StatusMessage,
		Active:        ss.ActiveID,
		Conversations: ss.ConversationCount,
		InFlight:      ss.InFlight,
		Uptime:        time.Duration(ss.UptimeMs) * time.Millisecond,
	})
	a.convList.Update(a.vm.Conversations())
	a.bar.Show(a.notices.Visible())

	current := a.pages.Current()
	switch {
	case ss.Status == "AUTH_REQUIRED" && current != pageAuth:
		a.authView.ShowMessage("The daemon has no valid portal token.")
		a.reset(pageAuth)
	case ss.Status != "AUTH_REQUIRED" && current == pageAuth:
		a.reset(pageConversations)
	}
}

func (a *App) watchNotices() {
	for {
		select {
		case n := <-a.notices.Changes():
			a.app.QueueUpdateDraw(func() { a.bar.Show(n, true) })
		case <-a.ctx.Done():
			return
		}
	}
}

func userLabel(ss *rpc.StatusResponse) string {
	switch {
	case ss.UserName != "" && ss.UserID != "":
		return fmt.Sprintf("%s (%s)", ss.UserName, ss.UserID)
	case ss.UserID != "":
		return ss.UserID
	}
	return ""
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
