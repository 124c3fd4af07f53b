package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. App satisfies it;
// tests provide a lightweight stub.
type execIface interface {
	Ping(ctx context.Context) error
	Whoami(ctx context.Context) error
	Signup(ctx context.Context, args []string) error
	Chats(ctx context.Context) error
	Group(ctx context.Context, args []string) error
	DM(ctx context.Context, args []string) error
	Open(ctx context.Context, args []string) error
	Members(ctx context.Context) error
	Send(ctx context.Context, args []string) error
	Burn(ctx context.Context, args []string) error
	History(ctx context.Context, args []string) error
	Read(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Listen(ctx context.Context) error
	Rotate(ctx context.Context) error
	Upload(ctx context.Context, args []string) error
	Fetch(ctx context.Context, args []string) error
	Tasks(ctx context.Context, args []string) error
	Whitelist(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  ping | whoami | signup <display name>
  chats | group <name> [member...] | dm <user> | open <chat> | members | rotate
  send <text> | burn <seconds> <text> | (h)istory [n] | read <msg> | delete <msg> | listen
  upload <path> [content-type] | fetch <url> <path>
  tasks [new <role> <title> | set <task> <status>]
  whitelist [add <email>]
  exit`

// runREPL reads commands from scanner until EOF or "exit"/"quit". Command
// errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("arctic %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "ping":
			err = a.Ping(ctx)
		case "whoami":
			err = a.Whoami(ctx)
		case "signup":
			err = a.Signup(ctx, args)
		case "chats":
			err = a.Chats(ctx)
		case "group":
			err = a.Group(ctx, args)
		case "dm":
			err = a.DM(ctx, args)
		case "open":
			err = a.Open(ctx, args)
		case "members":
			err = a.Members(ctx)
		case "send":
			err = a.Send(ctx, args)
		case "burn":
			err = a.Burn(ctx, args)
		case "h", "history":
			err = a.History(ctx, args)
		case "read":
			err = a.Read(ctx, args)
		case "delete":
			err = a.Delete(ctx, args)
		case "listen":
			err = a.Listen(ctx)
		case "rotate":
			err = a.Rotate(ctx)
		case "upload":
			err = a.Upload(ctx, args)
		case "fetch":
			err = a.Fetch(ctx, args)
		case "tasks":
			err = a.Tasks(ctx, args)
		case "whitelist":
			err = a.Whitelist(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
		if err != nil {
			printlnFn("error:", err)
		}
	}
}

func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to Arctic Chat (type 'help' for commands)")
	if err := a.Whoami(ctx); err != nil {
		printlnFn("Not signed up yet:", err)
	}
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(os.Stdin))
}
