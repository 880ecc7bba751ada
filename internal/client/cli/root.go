package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

func (a *App) getStatus() string {
	if a.isLoggedIn() {
		if a.sock != nil && a.sock.CanAcceptRequests() {
			return "(socket)"
		}
		return "(plain)"
	}
	return ""
}

func (a *App) Root(ctx context.Context) {

	fmt.Fprintln(a.out, "Welcome to attachup CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(a.reader)

	a.Login(ctx)

	for {
		fmt.Fprintf(a.out, "attachup %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(a.out, "Available commands: upload <file> [v2|v3], list, login, exit")
			} else {
				fmt.Fprintln(a.out, "Available commands: login, exit")
			}

		case "login":
			a.Login(ctx)

		case "upload":
			if len(args) == 0 {
				fmt.Fprintln(a.out, "Usage: upload <file> [v2|v3]")
				continue
			}
			protocol := "v3"
			if len(args) > 1 {
				protocol = args[1]
			}
			a.upload(ctx, args[0], protocol)

		case "list":
			a.list(ctx)

		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return

		default:
			fmt.Fprintln(a.out, "Unknown command:", cmd)
		}
	}

}
