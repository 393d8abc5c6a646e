package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"chatpro/internal/config"
	"chatpro/internal/content"
	"chatpro/internal/directory"
	"chatpro/internal/gate"
	"chatpro/internal/models"
	"chatpro/internal/registry"
	"chatpro/internal/resolver"
	"chatpro/internal/session"
	"chatpro/internal/transport"

	"golang.org/x/sync/errgroup"
)

type app struct {
	cfg       *config.Config
	gate      *gate.Gate
	directory *directory.Directory
	registry  *registry.Registry
	client    *transport.Client

	cred    gate.Credential
	current *session.Session
	out     io.Writer
}

func run(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := gate.OpenStore(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	client := transport.New(cfg.BaseURL, cfg.HTTPTimeout)

	a := &app{
		cfg:       cfg,
		gate:      gate.New(client, store),
		directory: directory.New(ctx, client, cfg.SearchCacheTTL),
		registry:  registry.New(client, resolver.New(client, resolver.DefaultMaxConcurrent)),
		client:    client,
		out:       out,
	}

	if cred, err := a.gate.Current(); err == nil {
		a.cred = cred
		fmt.Fprintf(out, "Logged in as %s\n", cred.Username)
	} else {
		fmt.Fprintln(out, "Not logged in. Use: login <username> <password>")
	}

	g, gCtx := errgroup.WithContext(ctx)
	replDone := make(chan struct{})

	g.Go(func() error {
		defer close(replDone)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "quit" {
				return nil
			}
			if err := a.dispatch(gCtx, line); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
		return scanner.Err()
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
		case <-replDone:
		}
		a.closeRoom()
		return nil
	})

	return g.Wait()
}

func (a *app) dispatch(ctx context.Context, line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "login":
		return a.login(ctx, rest)
	case "register":
		return a.register(ctx, rest)
	case "help":
		a.printHelp()
		return nil
	}

	if a.cred.UserID == 0 {
		return models.ErrNotAuthenticated
	}

	switch cmd {
	case "rooms":
		return a.listRooms(ctx)
	case "open":
		return a.openRoom(ctx, rest)
	case "send":
		return a.send(rest)
	case "refresh":
		return a.refresh()
	case "export":
		return a.exportHTML()
	case "back":
		a.closeRoom()
		return nil
	case "search":
		return a.searchUsers(ctx, rest)
	case "dm":
		return a.startDM(ctx, rest)
	case "group":
		return a.createGroup(ctx, rest)
	case "join":
		return a.joinRoom(ctx, rest)
	case "delete":
		return a.deleteRoom(ctx, rest)
	case "logout":
		a.closeRoom()
		if err := a.gate.Logout(ctx); err != nil {
			return err
		}
		a.cred = gate.Credential{}
		fmt.Fprintln(a.out, "Logged out")
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (a *app) printHelp() {
	fmt.Fprintln(a.out, `Commands:
  login <username> <password>
  register <username> <password>
  rooms | open <roomId> | back | refresh | send <text> | export
  search <query> | dm <userId> | group <name> <userId>... | join <roomId> | delete <roomId>
  logout | quit`)
}

func (a *app) login(ctx context.Context, rest string) error {
	username, password, ok := strings.Cut(rest, " ")
	if !ok {
		return fmt.Errorf("usage: login <username> <password>")
	}
	cred, err := a.gate.Login(ctx, username, strings.TrimSpace(password))
	if err != nil {
		return err
	}
	a.cred = cred
	fmt.Fprintf(a.out, "Logged in as %s\n", cred.Username)
	return nil
}

func (a *app) register(ctx context.Context, rest string) error {
	username, password, ok := strings.Cut(rest, " ")
	if !ok {
		return fmt.Errorf("usage: register <username> <password>")
	}
	if err := content.ValidateUsername(username); err != nil {
		return err
	}
	if err := a.gate.Register(ctx, username, strings.TrimSpace(password)); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Registered. Now log in.")
	return nil
}

func (a *app) listRooms(ctx context.Context) error {
	rooms, err := a.registry.Load(ctx, a.cred.UserID)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		fmt.Fprintln(a.out, "No chats yet")
		return nil
	}
	for _, room := range rooms {
		marker := ""
		if room.Degraded {
			marker = " (unavailable)"
		}
		fmt.Fprintf(a.out, "%6d  [%s] %s  %s (%d participants)%s\n",
			room.ID, room.Initial(), room.Type, room.DisplayName, room.ParticipantCount, marker)
	}
	return nil
}

func (a *app) openRoom(ctx context.Context, rest string) error {
	roomID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return fmt.Errorf("usage: open <roomId>")
	}

	a.closeRoom()

	var syncer session.Syncer
	switch a.cfg.SyncStrategy {
	case config.SyncPoll:
		syncer = session.Poll{Interval: a.cfg.PollInterval}
	case config.SyncPush:
		wsBase := strings.Replace(a.cfg.BaseURL, "http", "ws", 1)
		syncer = session.Push{
			URL:    fmt.Sprintf("%s/chatrooms/%d/events", wsBase, roomID),
			UserID: a.cred.UserID,
		}
	default:
		syncer = session.Manual{}
	}

	sess := session.New(a.client, a.cred.UserID, roomID, syncer)
	if err := sess.Open(ctx); err != nil {
		fmt.Fprintf(a.out, "warning: %v\n", err)
	}
	a.current = sess

	fmt.Fprintf(a.out, "Opened room %d (%d participants)\n", roomID, sess.ParticipantCount())
	a.printMessages()
	return nil
}

func (a *app) printMessages() {
	msgs := a.current.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(a.out, "No messages yet. Start the conversation!")
		return
	}
	for _, msg := range msgs {
		fmt.Fprintf(a.out, "[%s] %s: %s\n",
			msg.Timestamp.Format("15:04"), msg.SenderName(), content.Sanitize(msg.Content))
	}
}

func (a *app) send(text string) error {
	if a.current == nil {
		return fmt.Errorf("no room open")
	}
	if err := a.current.Send(text); err != nil {
		if draft := a.current.Draft(); draft != "" {
			fmt.Fprintln(a.out, "send failed, draft kept; retry with: send", draft)
		}
		return err
	}
	a.printMessages()
	return nil
}

func (a *app) refresh() error {
	if a.current == nil {
		return fmt.Errorf("no room open")
	}
	if err := a.current.Refresh(); err != nil {
		return err
	}
	a.printMessages()
	return nil
}

// exportHTML prints the open room's log as display-ready HTML.
func (a *app) exportHTML() error {
	if a.current == nil {
		return fmt.Errorf("no room open")
	}
	for _, msg := range a.current.Messages() {
		fmt.Fprintf(a.out, "<p><b>%s</b> %s</p>\n",
			content.Escape(msg.SenderName()), content.RenderMessageHTML(msg.Content))
	}
	return nil
}

func (a *app) closeRoom() {
	if a.current != nil {
		a.current.Close()
		a.current = nil
	}
}

func (a *app) searchUsers(ctx context.Context, query string) error {
	results, err := a.directory.Search(ctx, a.cred.UserID, query)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(a.out, "No users found")
		return nil
	}
	for _, u := range results {
		fmt.Fprintf(a.out, "%6d  %s\n", u.ID, u.Username)
	}
	return nil
}

func (a *app) startDM(ctx context.Context, rest string) error {
	otherID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return fmt.Errorf("usage: dm <userId>")
	}
	room, err := a.registry.Create(ctx, a.cred.UserID, "", models.ChatroomTypeDM, []int64{otherID})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Started DM, room %d\n", room.ID)
	return a.openRoom(ctx, strconv.FormatInt(room.ID, 10))
}

func (a *app) createGroup(ctx context.Context, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) < 1 {
		return fmt.Errorf("usage: group <name> <userId>...")
	}
	ids := make([]int64, 0, len(fields)-1)
	for _, f := range fields[1:] {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", f)
		}
		ids = append(ids, id)
	}
	room, err := a.registry.Create(ctx, a.cred.UserID, fields[0], models.ChatroomTypeGroup, ids)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created group %q, room %d\n", room.Name, room.ID)
	return nil
}

func (a *app) joinRoom(ctx context.Context, rest string) error {
	roomID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return fmt.Errorf("usage: join <roomId>")
	}
	if err := a.registry.Join(ctx, a.cred.UserID, roomID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Joined room %d\n", roomID)
	return nil
}

func (a *app) deleteRoom(ctx context.Context, rest string) error {
	roomID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return fmt.Errorf("usage: delete <roomId>")
	}
	if a.current != nil && a.current.ChatroomID() == roomID {
		a.closeRoom()
	}
	if err := a.registry.Delete(ctx, a.cred.UserID, roomID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted room %d\n", roomID)
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
