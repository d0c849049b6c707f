package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn(ctx context.Context) bool
	Home(ctx context.Context) error
	Watch(ctx context.Context) error
	Show(ctx context.Context, id string) error
	Edit(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	SignIn(ctx context.Context) error
	SignUp(ctx context.Context) error
	SignOut(ctx context.Context) error
	Dashboard(ctx context.Context) error
}

// runREPL reads a line from reader, parses the first token as the command
// and dispatches to a. The loop exits on EOF or when the user types "exit"
// or "quit".
//
//	Everyone:
//	  - help             show available commands
//	  - home | l | list  published articles
//	  - watch            live published articles, Enter to leave
//	  - show <id>        article detail
//	  - edit <id>        edit an article
//	  - delete <id>      delete an article
//	  - exit | quit      leave the program
//
//	Not logged in:
//	  - signin | login
//	  - signup | register
//
//	Logged in:
//	  - dashboard        my articles, create form and profile editor
//	  - logout
//
// Ids may be given in full or as the short prefix shown in lists. Errors
// returned by handlers are printed; the loop keeps going.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("vulnblog %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn(ctx) {
				printlnFn("Commandes : home, watch, show <id>, edit <id>, delete <id>, dashboard, logout, exit")
			} else {
				printlnFn("Commandes : home, watch, show <id>, edit <id>, delete <id>, signin, signup, exit")
			}

		case "home", "l", "list":
			cmdErr = a.Home(ctx)

		case "watch":
			cmdErr = a.Watch(ctx)

		case "show", "edit", "delete":
			if len(args) == 0 {
				printlnFn(fmt.Sprintf("Usage: %s <id>", cmd))
				continue
			}
			switch cmd {
			case "show":
				cmdErr = a.Show(ctx, args[0])
			case "edit":
				cmdErr = a.Edit(ctx, args[0])
			case "delete":
				cmdErr = a.Delete(ctx, args[0])
			}

		case "signin", "login":
			cmdErr = a.SignIn(ctx)

		case "signup", "register":
			cmdErr = a.SignUp(ctx)

		case "logout", "signout":
			cmdErr = a.SignOut(ctx)

		case "dashboard":
			cmdErr = a.Dashboard(ctx)

		case "exit", "quit":
			printlnFn("Au revoir !")
			return

		default:
			printlnFn("Commande inconnue :", cmd)
		}

		if cmdErr != nil {
			printlnFn("Erreur :", cmdErr)
		}
		if err != nil {
			return
		}
	}
}
