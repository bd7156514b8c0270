package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/matheus3301/precinct/internal/rpc"
	"github.com/matheus3301/precinct/internal/session"
	"github.com/matheus3301/precinct/internal/tui/client"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fatalf("error: %v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// sessions reads the filesystem and works without a daemon.
	if args[0] == "sessions" {
		cmdSessions(*jsonFlag)
		return
	}

	c, err := client.New(session.SocketPath(sessionName))
	if err != nil {
		fatalf("error: cannot connect to daemon for session %q: %v", sessionName, err)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		cmdWatch(ctx, c, *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := printer{json: *jsonFlag}
	switch args[0] {
	case "status":
		cmdStatus(ctx, c, out)
	case "login":
		cmdLogin(ctx, c, out, args[1:])
	case "logout":
		_, err := c.Session.Logout(ctx, &rpc.LogoutRequest{})
		check(err)
		fmt.Println("Logged out.")
	case "conversations", "ls":
		cmdConversations(ctx, c, out)
	case "open":
		need(args, 2, "open <conversation>")
		resp, err := c.Conversations.Select(ctx, &rpc.SelectRequest{ConversationID: args[1]})
		check(err)
		out.conversation(resp.Conversation)
	case "close":
		_, err := c.Conversations.Deselect(ctx, &rpc.DeselectRequest{})
		check(err)
	case "history":
		cmdHistory(ctx, c, out, args[1:])
	case "send":
		need(args, 3, "send <conversation> <text...>")
		cmdSend(ctx, c, out, args[1], strings.Join(args[2:], " "))
	case "retry":
		need(args, 3, "retry <conversation> <message-id>")
		_, err := c.Conversations.Select(ctx, &rpc.SelectRequest{ConversationID: args[1]})
		check(err)
		resp, err := c.Messages.Retry(ctx, &rpc.RetryRequest{MessageID: args[2]})
		check(err)
		out.sendResult(resp)
	case "search":
		cmdSearch(ctx, c, out, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: precinctctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show session status")
	fmt.Fprintln(os.Stderr, "  sessions                        List known sessions")
	fmt.Fprintln(os.Stderr, "  login [--token <t>]             Log in (token read from stdin if omitted)")
	fmt.Fprintln(os.Stderr, "  logout                          Forget the portal token")
	fmt.Fprintln(os.Stderr, "  conversations                   List conversations")
	fmt.Fprintln(os.Stderr, "  open <conversation>             Select a conversation")
	fmt.Fprintln(os.Stderr, "  close                           Close the active conversation")
	fmt.Fprintln(os.Stderr, "  history [--before ms] [--limit n] [<conversation>]")
	fmt.Fprintln(os.Stderr, "                                  Show messages")
	fmt.Fprintln(os.Stderr, "  send <conversation> <text...>   Send a message and wait for the echo")
	fmt.Fprintln(os.Stderr, "  retry <conversation> <id>       Resend a failed message")
	fmt.Fprintln(os.Stderr, "  search [--in <conversation>] <query...>")
	fmt.Fprintln(os.Stderr, "                                  Search the archive")
	fmt.Fprintln(os.Stderr, "  watch                           Stream the active conversation")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "conversations are dm:<user-id> or room:<room-id>")
}

func cmdStatus(ctx context.Context, c *client.Client, out printer) {
	resp, err := c.Session.Status(ctx, &rpc.StatusRequest{})
	check(err)
	if out.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("Session:       %s\n", resp.Session)
	fmt.Printf("Status:        %s\n", resp.Status)
	if resp.StatusMessage != "" {
		fmt.Printf("Detail:        %s\n", resp.StatusMessage)
	}
	if resp.UserID != "" {
		fmt.Printf("User:          %s %s\n", resp.UserID, resp.UserName)
	}
	fmt.Printf("View:          %s %s\n", resp.ViewState, resp.ActiveID)
	fmt.Printf("Conversations: %d\n", resp.ConversationCount)
	fmt.Printf("In flight:     %d\n", resp.InFlight)
	fmt.Printf("Archived:      %d\n", resp.Archived)
	fmt.Printf("Uptime:        %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
}

func cmdSessions(jsonOut bool) {
	sessions, err := session.List()
	check(err)
	if jsonOut {
		outputJSON(sessions)
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range sessions {
		running := "stopped"
		if s.DaemonRunning {
			running = fmt.Sprintf("running, pid %d", s.DaemonPID)
		}
		creds := ""
		if !s.HasCredentials {
			creds = " [no token]"
		}
		fmt.Printf("%-20s %s (%s)%s\n", s.Name, s.Dir, running, creds)
	}
}

func cmdLogin(ctx context.Context, c *client.Client, out printer, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	token := fs.String("token", "", "portal API token")
	_ = fs.Parse(args)
	if *token == "" {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, 64<<10))
		check(err)
		*token = strings.TrimSpace(string(data))
	}
	if *token == "" {
		fatalf("error: no token given")
	}
	resp, err := c.Session.Login(ctx, &rpc.LoginRequest{Token: *token})
	check(err)
	if out.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("Logged in as %s %s\n", resp.UserID, resp.Name)
}

func cmdConversations(ctx context.Context, c *client.Client, out printer) {
	resp, err := c.Conversations.List(ctx, &rpc.ListConversationsRequest{})
	check(err)
	if out.json {
		outputJSON(resp)
		return
	}
	if len(resp.Conversations) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, conv := range resp.Conversations {
		out.conversation(conv)
	}
}

func cmdHistory(ctx context.Context, c *client.Client, out printer, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	before := fs.Int64("before", 0, "archive page: messages older than this unix ms")
	limit := fs.Int("limit", 50, "maximum messages")
	_ = fs.Parse(args)

	req := &rpc.MessagesRequest{BeforeUnixMs: *before, Limit: *limit}
	if fs.NArg() > 0 {
		req.ConversationID = fs.Arg(0)
	}
	resp, err := c.Conversations.Messages(ctx, req)
	check(err)
	if out.json {
		outputJSON(resp)
		return
	}
	for _, m := range resp.Messages {
		out.message(m)
	}
}

// cmdSend selects the conversation, sends and waits until the message
// leaves Pending.
func cmdSend(ctx context.Context, c *client.Client, out printer, conv, text string) {
	_, err := c.Conversations.Select(ctx, &rpc.SelectRequest{ConversationID: conv})
	check(err)

	watchCtx, stop := context.WithCancel(ctx)
	defer stop()
	stream, err := c.Conversations.Watch(watchCtx, &rpc.WatchRequest{})
	check(err)
	if err := waitOpen(stream, conv); err != nil {
		fatalf("error: %v", err)
	}

	resp, err := c.Messages.Send(ctx, &rpc.SendRequest{Text: text})
	check(err)
	if resp.Error != "" {
		out.sendResult(resp)
		os.Exit(1)
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			fatalf("error: waiting for delivery: %v", err)
		}
		for _, m := range evt.Messages {
			if m.ID == resp.Message.ID && m.State == "FAILED" {
				out.sendResult(&rpc.SendResponse{Message: m, Error: "delivery timed out"})
				os.Exit(1)
			}
			if m.ClientID == resp.Message.ID && m.State == "CONFIRMED" {
				out.sendResult(&rpc.SendResponse{Message: m})
				return
			}
		}
	}
}

func waitOpen(stream rpc.WatchClient, conv string) error {
	for {
		evt, err := stream.Recv()
		if err != nil {
			return err
		}
		if evt.Conversation.ID != conv {
			continue
		}
		switch evt.Conversation.ConnectionState {
		case "OPEN":
			return nil
		case "DISCONNECTED":
			if evt.Conversation.ConnectionError != "" {
				return errors.New(evt.Conversation.ConnectionError)
			}
		}
	}
}

func cmdSearch(ctx context.Context, c *client.Client, out printer, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	in := fs.String("in", "", "restrict to one conversation")
	limit := fs.Int("limit", 20, "maximum hits")
	_ = fs.Parse(args)
	query := strings.Join(fs.Args(), " ")
	if query == "" {
		fatalf("usage: precinctctl search [--in <conversation>] <query...>")
	}
	resp, err := c.Messages.Search(ctx, &rpc.SearchRequest{Query: query, ConversationID: *in, Limit: *limit})
	check(err)
	if out.json {
		outputJSON(resp)
		return
	}
	if len(resp.Hits) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, h := range resp.Hits {
		fmt.Printf("%-12s %s  %s\n", h.ConversationID, stamp(h.Message.TimestampUnixMs), h.Snippet)
	}
}

func cmdWatch(ctx context.Context, c *client.Client, jsonOut bool) {
	stream, err := c.Conversations.Watch(ctx, &rpc.WatchRequest{})
	check(err)
	out := printer{json: jsonOut}
	for {
		evt, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			fatalf("error: %v", err)
		}
		if jsonOut {
			outputJSON(evt)
			continue
		}
		if evt.Conversation.ID == "" {
			fmt.Println("-- no active conversation")
			continue
		}
		fmt.Printf("-- %s rev %d [%s]\n", evt.Conversation.ID, evt.Revision, evt.Conversation.ConnectionState)
		for _, m := range evt.Messages {
			out.message(m)
		}
	}
}

type printer struct {
	json bool
}

func (p printer) conversation(c rpc.Conversation) {
	if p.json {
		outputJSON(c)
		return
	}
	unread := ""
	if c.Unread > 0 {
		unread = fmt.Sprintf(" (%d unread)", c.Unread)
	}
	fmt.Printf("%-14s %-24s %s%s\n", c.ID, c.Name, c.ConnectionState, unread)
}

func (p printer) message(m rpc.Message) {
	dir := "<"
	if m.Outgoing {
		dir = ">"
	}
	state := ""
	if m.State != "CONFIRMED" {
		state = " [" + m.State + "]"
	}
	fmt.Printf("%s %s %-10s %s%s\n", stamp(m.TimestampUnixMs), dir, m.ID, m.Body, state)
}

func (p printer) sendResult(r *rpc.SendResponse) {
	if p.json {
		outputJSON(r)
		return
	}
	if r.Error != "" {
		fmt.Printf("%s %s: %s\n", r.Message.ID, r.Message.State, r.Error)
		return
	}
	fmt.Printf("%s %s\n", r.Message.ID, r.Message.State)
}

func stamp(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fatalf("usage: precinctctl %s", usage)
	}
}

func check(err error) {
	if err != nil {
		fatalf("error: %v", err)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
