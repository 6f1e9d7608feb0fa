// session_cmd.go - Session management command handler.
//
// Subcommands:
//   session list                 List saved sessions
//   session show NAME            Print a session's messages
//   session export NAME [--format text|markdown|json] [-o FILE]
//   session clear NAME           Remove a session's messages
//   session delete NAME          Delete a session file
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/echomind/internal/config"
	"github.com/jeranaias/echomind/internal/export"
	"github.com/jeranaias/echomind/internal/storage"
	"github.com/jeranaias/echomind/internal/util"
)

// HandleSession dispatches the session subcommands.
func HandleSession(args Args) error {
	sub := ""
	if len(args.Rest) > 0 {
		sub = args.Rest[0]
	}

	switch sub {
	case "", "list", "ls":
		return sessionList()
	case "show":
		return sessionShow(args)
	case "export":
		return sessionExport(args)
	case "clear":
		return sessionClear(args)
	case "delete", "rm":
		return sessionDelete(args)
	default:
		return fmt.Errorf("unknown session subcommand %q (try list, show, export, clear, delete)", sub)
	}
}

// sessionArg returns the session name argument for subcommands that
// need one.
func sessionArg(args Args) (string, error) {
	if len(args.Rest) < 2 {
		return "", errors.New("session name required")
	}
	return args.Rest[1], nil
}

// sessionList needs no decryption key: it reads file metadata only.
func sessionList() error {
	dir, err := config.SessionsDir()
	if err != nil {
		return err
	}
	store, err := storage.NewStore(dir)
	if err != nil {
		return err
	}
	infos, err := store.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println(DimStyle.Render("No saved sessions."))
		return nil
	}

	fmt.Println(SectionStyle.Render("Sessions"))
	for _, info := range infos {
		fmt.Printf("  %s  %s\n",
			ValueStyle.Render(fmt.Sprintf("%-20s", info.ID)),
			DimStyle.Render(fmt.Sprintf("%6d bytes  %s",
				info.Size, info.UpdatedAt.Format("2006-01-02 15:04"))))
	}
	return nil
}

func sessionShow(args Args) error {
	name, err := sessionArg(args)
	if err != nil {
		return err
	}
	app, err := newApp(args)
	if err != nil {
		return err
	}
	store, err := app.openStore()
	if err != nil {
		return err
	}
	state, err := store.Load(name)
	if err != nil {
		return err
	}
	if len(state.Messages) == 0 {
		fmt.Println(DimStyle.Render("Session is empty."))
		return nil
	}

	fmt.Println(TitleStyle.Render("Session: " + name))
	for _, m := range state.Messages {
		fmt.Printf("%s %s\n", LabelStyle.Render(string(m.Role)+":"),
			util.TruncateRunes(m.Content, 200))
	}
	return nil
}

func sessionExport(args Args) error {
	name, err := sessionArg(args)
	if err != nil {
		return err
	}
	format := export.FormatText
	if args.Format != "" {
		if format, err = export.ParseFormat(args.Format); err != nil {
			return err
		}
	}

	app, err := newApp(args)
	if err != nil {
		return err
	}
	store, err := app.openStore()
	if err != nil {
		return err
	}
	state, err := store.Load(name)
	if err != nil {
		return err
	}

	data, err := export.Export(state, format)
	if err != nil {
		return err
	}

	if args.Output != "" {
		if err := os.WriteFile(args.Output, data, 0o644); err != nil {
			return fmt.Errorf("failed to write export file: %w", err)
		}
		fmt.Println(SuccessStyle.Render("Exported: ") + args.Output)
		return nil
	}
	os.Stdout.Write(data)
	return nil
}

func sessionClear(args Args) error {
	name, err := sessionArg(args)
	if err != nil {
		return err
	}
	app, err := newApp(args)
	if err != nil {
		return err
	}
	store, err := app.openStore()
	if err != nil {
		return err
	}
	if err := store.Clear(name); err != nil {
		return err
	}
	fmt.Println(SuccessStyle.Render("Cleared: ") + name)
	return nil
}

// sessionDelete removes the file outright, so no key is needed.
func sessionDelete(args Args) error {
	name, err := sessionArg(args)
	if err != nil {
		return err
	}
	dir, err := config.SessionsDir()
	if err != nil {
		return err
	}
	store, err := storage.NewStore(dir)
	if err != nil {
		return err
	}
	if err := store.Delete(name); err != nil {
		return err
	}
	fmt.Println(SuccessStyle.Render("Deleted: ") + name)
	return nil
}
