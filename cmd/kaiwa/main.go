// kaiwa - a terminal chat client for the kaiwa relay.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/kaiwa/internal/client"
	"github.com/jeranaias/kaiwa/internal/config"
	"github.com/jeranaias/kaiwa/internal/model"
	"github.com/jeranaias/kaiwa/internal/reveal"
	"github.com/jeranaias/kaiwa/internal/session"
	"github.com/jeranaias/kaiwa/internal/store"
	"github.com/jeranaias/kaiwa/internal/title"
	"github.com/jeranaias/kaiwa/internal/ui"
	"github.com/jeranaias/kaiwa/internal/util"
)

const historyFile = "history"

// app bundles the wired client pieces the REPL drives.
type app struct {
	controller *session.Controller
	surface    *ui.TerminalSurface
	styles     *ui.Styles
}

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (default ~/.kaiwa/config.toml)")
		relayURL   = flag.String("relay", "", "relay server URL (overrides config)")
		stateDir   = flag.String("state", "", "transcript directory (overrides config)")
		instant    = flag.Bool("instant", false, "print replies without the typewriter effect")
	)
	flag.Parse()

	// Streamed output and log lines share stderr poorly; keep logs quiet
	// unless asked for.
	if os.Getenv("KAIWA_DEBUG") == "" {
		log.SetOutput(io.Discard)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *relayURL != "" {
		cfg.Client.RelayURL = *relayURL
	}
	if *stateDir != "" {
		cfg.Storage.StateDir = *stateDir
	}
	if *instant {
		cfg.UI.RevealDelayMs = 0
	}

	a, err := build(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func build(cfg *config.Config) (*app, error) {
	dir, err := cfg.StateDir()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(dir)
	if err != nil {
		return nil, err
	}

	relayClient := client.New(&client.Config{
		BaseURL: cfg.Client.RelayURL,
		Timeout: cfg.ClientTimeout(),
	})

	var remote title.Summarizer
	if cfg.Title.Remote {
		remote = relayClient
	}
	titler := title.NewGenerator(remote, cfg.Title.MaxLength)

	surface := ui.NewTerminalSurface(os.Stdout, 0)
	sched := reveal.NewScheduler(surface, cfg.RevealDelay())

	return &app{
		controller: session.NewController(st, relayClient, titler, sched),
		surface:    surface,
		styles:     ui.NewStyles(),
	}, nil
}

// =============================================================================
// REPL
// =============================================================================

func run(a *app) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	loadHistory(line)
	defer saveHistory(line)

	a.printWelcome()
	a.printTranscript(a.controller.ActiveRoom())

	for {
		input, err := line.Prompt(a.styles.Prompt.Render("you> "))
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := a.command(input); quit {
				return nil
			}
			continue
		}

		a.send(input)
	}
}

// send runs one exchange, letting Ctrl-C interrupt the stream without
// leaving the client.
func (a *app) send(text string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a.surface.Reset()
	fmt.Print(a.styles.BotLabel.Render("bot> "))

	err := a.controller.Send(ctx, text)
	fmt.Println()

	switch {
	case err == nil:
	case errors.Is(err, session.ErrBusy):
		fmt.Println(a.styles.Error.Render("返信の受信中です。しばらくお待ちください。"))
	case errors.Is(err, session.ErrEmptyMessage):
	default:
		// The failure notice was already revealed; add a hint.
		fmt.Println(a.styles.Muted.Render("(relay: " + err.Error() + ")"))
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func (a *app) command(input string) (quit bool) {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/help", "/?":
		a.printHelp()
	case "/new":
		room, err := a.controller.CreateRoom()
		if err != nil {
			a.printError(err)
			return false
		}
		fmt.Println(a.styles.Success.Render("新しいチャットを開始しました。") + " " + a.styles.Muted.Render(room.ID))
	case "/rooms":
		a.printRooms()
	case "/switch":
		if len(args) != 1 {
			fmt.Println(a.styles.Error.Render("usage: /switch <number|room-id>"))
			return false
		}
		a.switchRoom(args[0])
	case "/delete":
		if len(args) != 1 {
			fmt.Println(a.styles.Error.Render("usage: /delete <number|room-id>"))
			return false
		}
		a.deleteRoom(args[0])
	case "/title":
		if len(args) == 0 {
			fmt.Println(a.styles.Error.Render("usage: /title <new title>"))
			return false
		}
		a.renameRoom(strings.Join(args, " "))
	default:
		fmt.Println(a.styles.Error.Render("unknown command: " + cmd + " (try /help)"))
	}
	return false
}

func (a *app) switchRoom(arg string) {
	room := a.resolveRoom(arg)
	if room == nil {
		fmt.Println(a.styles.Error.Render("no such room: " + arg))
		return
	}
	if err := a.controller.SelectRoom(room.ID); err != nil {
		a.printError(err)
		return
	}
	a.printTranscript(a.controller.ActiveRoom())
}

func (a *app) deleteRoom(arg string) {
	room := a.resolveRoom(arg)
	if room == nil {
		fmt.Println(a.styles.Error.Render("no such room: " + arg))
		return
	}
	wasActive := room.ID == a.controller.ActiveRoom().ID
	if err := a.controller.DeleteRoom(room.ID); err != nil {
		a.printError(err)
		return
	}
	fmt.Println(a.styles.Success.Render("チャットを削除しました。"))
	if wasActive {
		a.printTranscript(a.controller.ActiveRoom())
	}
}

func (a *app) renameRoom(newTitle string) {
	room := a.controller.ActiveRoom()
	if err := a.controller.RenameRoom(room.ID, newTitle); err != nil {
		a.printError(err)
		return
	}
	fmt.Println(a.styles.Success.Render("タイトルを変更しました: ") + a.styles.RoomTitle.Render(newTitle))
}

// resolveRoom accepts a 1-based index into the /rooms listing or a room
// id.
func (a *app) resolveRoom(arg string) *model.Room {
	rooms := a.controller.Rooms()
	if n, err := strconv.Atoi(arg); err == nil {
		if n >= 1 && n <= len(rooms) {
			return rooms[n-1]
		}
		return nil
	}
	for _, room := range rooms {
		if room.ID == arg {
			return room
		}
	}
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func (a *app) printWelcome() {
	fmt.Println(a.styles.BotLabel.Render("kaiwa") + " " + a.styles.Muted.Render("— /help でコマンド一覧"))
}

func (a *app) printHelp() {
	help := [][2]string{
		{"/new", "新しいチャットを開始"},
		{"/rooms", "チャット一覧を表示"},
		{"/switch <n>", "チャットを切り替え"},
		{"/delete <n>", "チャットを削除"},
		{"/title <text>", "タイトルを変更"},
		{"/quit", "終了"},
	}
	for _, h := range help {
		fmt.Printf("  %s %s\n", a.styles.Prompt.Render(fmt.Sprintf("%-14s", h[0])), a.styles.Muted.Render(h[1]))
	}
}

func (a *app) printRooms() {
	active := a.controller.ActiveRoom().ID
	for i, room := range a.controller.Rooms() {
		marker := "  "
		if room.ID == active {
			marker = a.styles.Success.Render("* ")
		}
		count := a.styles.Muted.Render(fmt.Sprintf("(%d件)", room.MessageCount()))
		fmt.Printf("%s%d. %s %s\n", marker, i+1, a.styles.RoomTitle.Render(room.Title), count)
	}
}

// printTranscript replays a room's messages.
func (a *app) printTranscript(room *model.Room) {
	fmt.Println(a.styles.Muted.Render("── ") + a.styles.RoomTitle.Render(room.Title) + " " + a.styles.Muted.Render("──"))
	for _, msg := range room.Messages {
		label := a.styles.UserLabel.Render("you> ")
		if msg.Sender == model.SenderBot {
			label = a.styles.BotLabel.Render("bot> ")
		}
		fmt.Println(label + msg.Text)
	}
}

func (a *app) printError(err error) {
	if errors.Is(err, session.ErrBusy) {
		fmt.Println(a.styles.Error.Render("返信の受信中は操作できません。"))
		return
	}
	fmt.Println(a.styles.Error.Render(err.Error()))
}

// =============================================================================
// HISTORY
// =============================================================================

func historyPath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, historyFile), nil
}

func loadHistory(line *liner.State) {
	path, err := historyPath()
	if err != nil {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	line.ReadHistory(f)
}

func saveHistory(line *liner.State) {
	path, err := historyPath()
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return
	}
	var buf strings.Builder
	if _, err := line.WriteHistory(&buf); err != nil {
		return
	}
	_ = util.AtomicWriteFile(path, []byte(buf.String()), 0600)
}
