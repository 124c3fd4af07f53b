package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/arcticchat/internal/api"
	"github.com/dmitrijs2005/arcticchat/internal/client/client"
	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/filex"
	"github.com/dmitrijs2005/arcticchat/internal/netx"
)

var (
	errNoChat = errors.New("no chat open, use 'open <chat>' or 'dm <user>'")
	errUsage  = errors.New("usage")
)

const defaultHistory = 20

func usage(s string) error { return fmt.Errorf("%w: %s", errUsage, s) }

func (a *App) requireChat() (string, error) {
	id := a.currentChat()
	if id == "" {
		return "", errNoChat
	}
	return id, nil
}

func (a *App) printMessage(ctx context.Context, p *client.Plaintext) {
	m := p.Message
	line := fmt.Sprintf("[%d] %s %s:", m.Sequence, m.CreatedAt.Local().Format("15:04"), m.SenderID)
	if p.Body != nil {
		line += " " + string(p.Body)
	}
	if m.MediaURL != "" {
		line += " <" + m.MediaURL + ">"
	}
	if m.ExpiresAt != nil {
		line += fmt.Sprintf(" (expires %s)", m.ExpiresAt.Local().Format("15:04:05"))
	}
	a.printf("%s  id=%s\n", line, m.ID)
	a.remember(ctx, m.ChatID, m.Sequence)
}

func (a *App) Ping(ctx context.Context) error {
	if err := a.client.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return err
	}
	a.setMode(ModeOnline)
	a.printf("pong\n")
	return nil
}

func (a *App) Whoami(ctx context.Context) error {
	u, err := a.client.Me(ctx)
	if err != nil {
		return err
	}
	a.setUserName(ctx, u.DisplayName)
	a.printf("%s <%s> id=%s role=%s status=%s\n", u.DisplayName, u.Email, u.ID, u.Role, u.Status)
	return nil
}

func (a *App) Signup(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("signup <display name>")
	}
	u, err := a.client.Signup(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	a.setUserName(ctx, u.DisplayName)
	a.printf("Welcome, %s (id=%s, role=%s)\n", u.DisplayName, u.ID, u.Role)
	return nil
}

func (a *App) Chats(ctx context.Context) error {
	chats, err := a.client.ListChats(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		a.printf("No chats yet\n")
		return nil
	}
	for _, c := range chats {
		name := c.Name
		if name == "" {
			name = "-"
		}
		a.printf("%s\t%s\t%s\tmessages=%d epoch=%d\n", c.ID, c.Type, name, c.LastSequence, c.CurrentEpoch)
	}
	return nil
}

func (a *App) Group(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("group <name> [member...]")
	}
	c, err := a.client.CreateGroup(ctx, args[0], args[1:])
	if err != nil {
		return err
	}
	a.setChat(ctx, c.ID)
	a.printf("Created group %s (%s)\n", c.Name, c.ID)
	return nil
}

func (a *App) DM(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("dm <user>")
	}
	c, err := a.client.OpenDM(ctx, args[0])
	if err != nil {
		return err
	}
	a.setChat(ctx, c.ID)
	a.printf("Opened direct chat %s\n", c.ID)
	return nil
}

func (a *App) Open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("open <chat>")
	}
	a.stopListening()
	a.setChat(ctx, args[0])
	return a.History(ctx, nil)
}

func (a *App) Members(ctx context.Context) error {
	chatID, err := a.requireChat()
	if err != nil {
		return err
	}
	ps, err := a.client.Participants(ctx, chatID)
	if err != nil {
		return err
	}
	for _, p := range ps {
		a.printf("%s\t%s\n", p.UserID, p.GroupRole)
	}
	return nil
}

func (a *App) send(ctx context.Context, text string, ttl time.Duration) error {
	chatID, err := a.requireChat()
	if err != nil {
		return err
	}
	m, err := a.client.Send(ctx, chatID, []byte(text), "", ttl)
	if err != nil {
		return err
	}
	a.remember(ctx, chatID, m.Sequence)
	a.printf("sent [%d] id=%s\n", m.Sequence, m.ID)
	return nil
}

func (a *App) Send(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("send <text>")
	}
	return a.send(ctx, strings.Join(args, " "), 0)
}

func (a *App) Burn(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("burn <seconds> <text>")
	}
	secs, err := strconv.Atoi(args[0])
	if err != nil || secs <= 0 {
		return usage("burn <seconds> <text>")
	}
	return a.send(ctx, strings.Join(args[1:], " "), time.Duration(secs)*time.Second)
}

// History prints the last n messages of the current chat.
func (a *App) History(ctx context.Context, args []string) error {
	chatID, err := a.requireChat()
	if err != nil {
		return err
	}
	n := defaultHistory
	if len(args) > 0 {
		if n, err = strconv.Atoi(args[0]); err != nil || n <= 0 {
			return usage("history [n]")
		}
	}

	c, err := a.client.ListChats(ctx)
	if err != nil {
		return err
	}
	var after int64
	for _, ch := range c {
		if ch.ID == chatID && ch.LastSequence > int64(n) {
			after = ch.LastSequence - int64(n)
		}
	}

	msgs, more, err := a.client.History(ctx, chatID, after, n)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		a.printf("No messages\n")
	}
	for _, p := range msgs {
		a.printMessage(ctx, p)
	}
	if more {
		a.printf("(more messages available)\n")
	}
	return nil
}

func (a *App) Read(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("read <msg>")
	}
	return a.client.MarkRead(ctx, args[0])
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("delete <msg>")
	}
	if err := a.client.DeleteMessage(ctx, args[0]); err != nil {
		return err
	}
	a.printf("deleted %s\n", args[0])
	return nil
}

func (a *App) Rotate(ctx context.Context) error {
	chatID, err := a.requireChat()
	if err != nil {
		return err
	}
	epoch, err := a.client.RotateKey(ctx, chatID)
	if err != nil {
		return err
	}
	a.printf("chat %s now uses key epoch %d\n", chatID, epoch)
	return nil
}

func (a *App) stopListening() bool {
	a.mu.Lock()
	stop := a.stopFeed
	a.stopFeed = nil
	a.mu.Unlock()
	if stop != nil {
		stop()
		return true
	}
	return false
}

// Listen toggles a background subscription to the current chat.
func (a *App) Listen(ctx context.Context) error {
	if a.stopListening() {
		a.printf("stopped listening\n")
		return nil
	}
	chatID, err := a.requireChat()
	if err != nil {
		return err
	}

	feedCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.stopFeed = cancel
	after := a.lastSeq[chatID]
	a.mu.Unlock()

	a.printf("listening on %s\n", chatID)
	go func() {
		err := a.client.Subscribe(feedCtx, chatID, after, func(ev *api.Event) error {
			a.handleEvent(feedCtx, ev)
			return nil
		})
		if err != nil {
			a.printf("feed stopped: %v\n", err)
		}
	}()
	return nil
}

func (a *App) handleEvent(ctx context.Context, ev *api.Event) {
	switch ev.Kind {
	case api.EventMessage:
		if ev.Message == nil {
			return
		}
		p, err := a.client.Decrypt(ctx, ev.Message)
		if err != nil {
			a.printf("[%d] undecryptable: %v\n", ev.Sequence, err)
			return
		}
		a.printMessage(ctx, p)
	case api.EventReceipt:
		if ev.Receipt != nil {
			a.printf("receipt %s: %s %s\n", ev.Receipt.MessageID, ev.Receipt.UserID, ev.Receipt.State)
		}
	case api.EventPurge:
		a.printf("message %s is gone\n", ev.MessageID)
	}
}

// Upload sends a file to the blob store. With a chat open the file is also
// posted as a media message, otherwise it becomes the profile picture.
func (a *App) Upload(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("upload <path> [content-type]")
	}
	data, err := filex.ReadLimited(args[0], common.MaxMediaBytes)
	if err != nil {
		return err
	}
	contentType := http.DetectContentType(data)
	if len(args) == 2 {
		contentType = args[1]
	}

	chatID := a.currentChat()
	purpose := "profile"
	if chatID != "" {
		purpose = "chat"
	}
	url, err := a.client.UploadMedia(ctx, chatID, data, contentType, purpose)
	if err != nil {
		return err
	}
	a.printf("uploaded %s\n", url)

	if chatID == "" {
		return nil
	}
	m, err := a.client.Send(ctx, chatID, nil, url, 0)
	if err != nil {
		return err
	}
	a.remember(ctx, chatID, m.Sequence)
	return nil
}

func (a *App) Fetch(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("fetch <url> <path>")
	}
	data, contentType, err := netx.Download(ctx, args[0], common.MaxMediaBytes)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], data, 0o600); err != nil {
		return err
	}
	a.printf("saved %d bytes (%s) to %s\n", len(data), contentType, args[1])
	return nil
}

func (a *App) Tasks(ctx context.Context, args []string) error {
	if len(args) == 0 {
		tasks, err := a.client.ListTasks(ctx)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			a.printf("No tasks\n")
		}
		for _, t := range tasks {
			a.printf("%s\t%s\t%s\t(weight %d)\n", t.ID, t.Status, t.Title, t.TargetRoleWeight)
		}
		return nil
	}

	switch args[0] {
	case "new":
		if len(args) < 3 {
			return usage("tasks new <role> <title>")
		}
		t, err := a.client.CreateTask(ctx, strings.Join(args[2:], " "), "", args[1])
		if err != nil {
			return err
		}
		a.printf("created task %s\n", t.ID)
	case "set":
		if len(args) != 3 {
			return usage("tasks set <task> <status>")
		}
		t, err := a.client.UpdateTask(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		a.printf("task %s is %s\n", t.ID, t.Status)
	default:
		return usage("tasks [new <role> <title> | set <task> <status>]")
	}
	return nil
}

func (a *App) Whitelist(ctx context.Context, args []string) error {
	switch {
	case len(args) == 0:
		entries, err := a.client.WhitelistList(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			a.printf("%s\tadded by %s\n", e.Email, e.AddedBy)
		}
		return nil
	case len(args) == 2 && args[0] == "add":
		if err := a.client.WhitelistAdd(ctx, args[1]); err != nil {
			return err
		}
		a.printf("whitelisted %s\n", args[1])
		return nil
	default:
		return usage("whitelist [add <email>]")
	}
}
