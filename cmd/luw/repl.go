package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"

	"github.com/luwshell/luw/config"
)

// Tokens the completer offers beyond builtin names.
var replSpecials = []string{
	"!pwsh", "!cmd", "!multithread", "!mt",
	"!SuppressDebug", "!ResumeDebug",
	"exit", "quit", "if", "else", "end",
}

var (
	promptColor = color.New(color.FgCyan)
	errColor    = color.New(color.FgRed)
)

// runREPL drives the interactive session: liner line editing with
// history, completion over builtins, and the same line semantics a
// script gets.
func runREPL(cfg config.Config) error {
	color.NoColor = color.NoColor || !cfg.Color

	sess := newSession(cfg)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	candidates := append(sess.Dispatcher.BuiltinNames(), replSpecials...)
	line.SetCompleter(func(prefix string) []string {
		var out []string
		for _, c := range candidates {
			if strings.HasPrefix(c, prefix) {
				out = append(out, c)
			}
		}
		return out
	})

	if f, err := os.Open(cfg.HistoryFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(cfg.HistoryFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Printf("luw %s - type help for commands, exit to leave\n", clientVersion)
	prompt := promptColor.Sprint("luw> ")

	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			// Ctrl-C aborts the line, Ctrl-D/EOF ends the session.
			if err == liner.ErrPromptAborted {
				continue
			}
			fmt.Println()
			return nil
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		line.AppendHistory(input)

		if trimmed == "exit" || trimmed == "quit" {
			return nil
		}

		if err := sess.RunLine(context.Background(), trimmed); err != nil {
			errColor.Fprintln(os.Stderr, err)
		}
	}
}
