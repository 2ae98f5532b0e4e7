// ABOUTME: Entry point for the audio relay client
// ABOUTME: Finds a server, connects and plays its stream on the local output
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/audiorelay/internal/app"
	"github.com/harperreed/audiorelay/internal/discovery"
	"github.com/harperreed/audiorelay/internal/history"
	"github.com/harperreed/audiorelay/internal/ui"
	"github.com/harperreed/audiorelay/internal/version"
	"github.com/harperreed/audiorelay/pkg/audio/output"
	"github.com/harperreed/audiorelay/pkg/relay"
)

var (
	serverAddr    = flag.String("server", "", "Server address, host or host:port (skip mDNS)")
	port          = flag.Int("port", relay.DefaultPort, "Server port when the address has none")
	backend       = flag.String("output", "malgo", "Audio output backend: malgo or oto")
	historyFile   = flag.String("history", "", "Recent servers file (default: user config dir)")
	browseTimeout = flag.Duration("browse-timeout", 10*time.Second, "How long to look for servers over mDNS")
	logFile       = flag.String("log-file", "audiorelay.log", "Log file path")
	noTUI         = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs    = flag.Bool("stream-logs", false, "Alias for -no-tui")
)

func main() {
	flag.Parse()

	useTUI := !(*noTUI || *streamLogs)

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		// Streaming logs mode: log to both stdout and file
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s client", version.String())

	hist := openHistory(*historyFile)

	out, err := output.New(*backend)
	if err != nil {
		log.Fatalf("Invalid output: %v", err)
	}

	ctrl, err := app.New(app.Config{
		Port:    *port,
		Output:  out,
		History: hist,
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	address := *serverAddr
	if address == "" {
		address = findServer(*browseTimeout, ctrl.LastEndpoint())
	}
	if address == "" {
		log.Fatalf("No server found after %v and no recent server to fall back to", *browseTimeout)
	}

	// TUI setup
	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg, err = ui.Run(ui.RoleClient, "", controls)
		if err != nil {
			log.Fatalf("Failed to start TUI: %v", err)
		}
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	}

	updateTUI := func(msg ui.StatusMsg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}
	updateTUI(ui.StatusMsg{Recent: ctrl.RecentEndpoints()})

	// Without a TUI there is nobody to press reconnect, so the session end is the exit
	finished := make(chan struct{}, 1)
	sessionOver := func() {
		if !useTUI {
			select {
			case finished <- struct{}{}:
			default:
			}
		}
	}

	connect := func() {
		log.Printf("Connecting to %s", address)
		updateTUI(ui.StatusMsg{State: ui.StateConnecting, Peer: ui.StringPtr(address), Err: ui.StringPtr("")})

		err := ctrl.ConnectClient(address, relay.Handlers{
			OnConnected: func() {
				log.Printf("Connected to server: %s", address)
				updateTUI(ui.StatusMsg{State: ui.StateStreaming, Recent: ctrl.RecentEndpoints()})
			},
			OnError: func(err error) {
				log.Printf("Connection failed: %v", err)
				updateTUI(ui.StatusMsg{State: ui.StateIdle, Err: ui.StringPtr(err.Error())})
				sessionOver()
			},
			OnDisconnected: func(err error) {
				msg := ui.StatusMsg{State: ui.StateIdle}
				if err != nil {
					log.Printf("Disconnected: %v", err)
					msg.Err = ui.StringPtr(err.Error())
				} else {
					log.Printf("Disconnected")
				}
				updateTUI(msg)
				sessionOver()
			},
		})
		if err != nil {
			log.Printf("Connect rejected: %v", err)
			updateTUI(ui.StatusMsg{Err: ui.StringPtr(err.Error())})
		}
	}

	connect()

	if tuiProg != nil {
		go statsUpdateLoop(ctrl.Client(), updateTUI)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var quit <-chan struct{}
	var actions <-chan ui.Action
	if controls != nil {
		quit = controls.Quit
		actions = controls.Actions
	}

loop:
	for {
		select {
		case a := <-actions:
			if a == ui.ActionReconnect && !ctrl.Client().Running() {
				connect()
			}
		case <-quit:
			log.Printf("Received quit signal from TUI")
			break loop
		case <-sigChan:
			log.Printf("Shutdown signal received")
			break loop
		case <-finished:
			break loop
		}
	}

	ctrl.Shutdown()
	if tuiProg != nil {
		tuiProg.Quit()
	}
	log.Printf("Client stopped")
}

// openHistory loads the recent servers file, falling back to memory
func openHistory(path string) *history.History {
	if path == "" {
		p, err := history.DefaultPath()
		if err != nil {
			log.Printf("Recent servers will not be saved: %v", err)
		}
		path = p
	}

	h, err := history.Open(path)
	if err != nil {
		log.Printf("Ignoring recent servers file: %v", err)
		h, _ = history.Open("")
	}
	return h
}

// findServer browses mDNS for a relay server, falling back to the last one used
func findServer(timeout time.Duration, fallback string) string {
	log.Printf("Starting server discovery...")
	disc := discovery.NewManager(discovery.Config{})
	defer disc.Stop()

	if err := disc.Browse(); err != nil {
		log.Printf("Discovery failed: %v", err)
		return fallback
	}

	select {
	case server := <-disc.Servers():
		log.Printf("Discovered server %s at %s", server.Name, server.Address())
		return server.Address()
	case <-time.After(timeout):
		if fallback != "" {
			log.Printf("No server discovered, using last server %s", fallback)
		}
		return fallback
	}
}

// statsUpdateLoop periodically updates the TUI with the received byte count
func statsUpdateLoop(client *relay.Client, updateTUI func(ui.StatusMsg)) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		stats := client.Stats()
		if !stats.Connected {
			continue
		}
		updateTUI(ui.StatusMsg{Bytes: stats.BytesReceived})
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\nPlays a LAN audio relay stream.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}
