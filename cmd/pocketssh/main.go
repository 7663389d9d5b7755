// cmd/pocketssh/main.go

package main

import (
	"fmt"
	"os"

	"pocketssh/internal/netlink"
	"pocketssh/internal/storage"
	"pocketssh/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

func main() {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "pocketssh needs an interactive terminal")
		os.Exit(1)
	}

	if os.Getenv("POCKETSSH_DEBUG") != "" {
		f, err := tea.LogToFile("pocketssh.log", "debug")
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open debug log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
	}

	store := storage.NewStore()
	controller, err := ui.New(store, netlink.NewSystemLink())
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	program := tea.NewProgram(controller, tea.WithAltScreen())
	controller.AttachProgram(program)

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error running program: %v\n", err)
		os.Exit(1)
	}
}
