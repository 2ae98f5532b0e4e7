// ABOUTME: Entry point for the audio relay server
// ABOUTME: Parses CLI flags, mutes local output and streams capture to one client
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/audiorelay/internal/app"
	"github.com/harperreed/audiorelay/internal/discovery"
	"github.com/harperreed/audiorelay/internal/ui"
	"github.com/harperreed/audiorelay/internal/version"
	"github.com/harperreed/audiorelay/pkg/audio/capture"
	"github.com/harperreed/audiorelay/pkg/audio/mixer"
	"github.com/harperreed/audiorelay/pkg/relay"
)

var (
	listen    = flag.String("listen", fmt.Sprintf(":%d", relay.DefaultPort), "TCP address to listen on")
	name      = flag.String("name", "", "Server friendly name (default: hostname-audiorelay)")
	source    = flag.String("source", "mic", "Capture source: mic, loopback, tone or file")
	audioFile = flag.String("audio", "", "MP3 or FLAC file at 44100Hz (implies -source file)")
	toneFreq  = flag.Float64("tone-freq", 440, "Test tone frequency in Hz")
	noMute    = flag.Bool("no-mute", false, "Leave local output unmuted while streaming")
	noMDNS    = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	logFile   = flag.String("log-file", "audiorelay-server.log", "Log file path")
	debug     = flag.Bool("debug", false, "Enable debug logging")
	noTUI     = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

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
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-audiorelay", hostname)
	}

	kind := *source
	if *audioFile != "" {
		kind = "file"
	}
	src, err := newSource(kind, *audioFile, *toneFreq)
	if err != nil {
		log.Fatalf("Invalid capture source: %v", err)
	}

	var m mixer.Mixer = mixer.NewMemory(false)
	if !*noMute {
		m = mixer.NewSystem()
	}

	log.Printf("Starting %s server: %s (source: %s)", version.String(), serverName, kind)
	if *debug {
		log.Printf("Debug logging enabled")
	}

	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg, err = ui.Run(ui.RoleServer, serverName, controls)
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

	died := make(chan error, 1)
	ctrl, err := app.New(app.Config{
		ListenAddr: *listen,
		Capture:    src,
		Mixer:      m,
		Debug:      *debug,
		OnServerError: func(err error) {
			select {
			case died <- err:
			default:
			}
		},
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	lc := &lifecycle{
		startRelay: func() (net.Addr, error) {
			if err := ctrl.StartServer(); err != nil {
				return nil, err
			}
			return ctrl.Server().Addr(), nil
		},
		stopRelay: ctrl.StopServer,
		update:    updateTUI,
	}
	if !*noMDNS {
		lc.announce = func(addr net.Addr) announcement {
			return advertise(serverName, addr)
		}
	}

	if err := lc.start(); err != nil {
		if tuiProg != nil {
			tuiProg.Quit()
		}
		log.Fatalf("Failed to start server: %v", err)
	}

	if tuiProg != nil {
		go statsUpdateLoop(ctrl.Server(), updateTUI)
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
			if a != ui.ActionToggle {
				continue
			}
			if ctrl.Server().Running() {
				log.Printf("Stopping server from TUI")
				lc.stop()
			} else if err := lc.start(); err != nil {
				log.Printf("Failed to start server: %v", err)
				updateTUI(ui.StatusMsg{Err: ui.StringPtr(err.Error())})
			}
		case <-quit:
			log.Printf("Received quit signal from TUI")
			break loop
		case sig := <-sigChan:
			log.Printf("Received %v signal, shutting down gracefully...", sig)
			break loop
		case err := <-died:
			lc.died(err)
			if !useTUI {
				log.Printf("Exiting after server error")
				break loop
			}
		}
	}

	lc.stop()
	if tuiProg != nil {
		tuiProg.Quit()
	}
	log.Printf("Server stopped")
}

// newSource builds the capture backend named by kind
func newSource(kind, path string, freq float64) (capture.Source, error) {
	switch kind {
	case "mic":
		return capture.NewMalgo(false), nil
	case "loopback":
		return capture.NewMalgo(true), nil
	case "tone":
		return capture.NewTone(freq), nil
	case "file":
		if path == "" {
			return nil, fmt.Errorf("-source file needs -audio")
		}
		return capture.NewFile(path), nil
	default:
		return nil, fmt.Errorf("unknown source %q (supported: mic, loopback, tone, file)", kind)
	}
}

// advertise announces the server over mDNS; failures are logged only
func advertise(serverName string, addr net.Addr) announcement {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil
	}

	disc := discovery.NewManager(discovery.Config{
		ServiceName: serverName,
		Port:        tcp.Port,
	})
	if err := disc.Advertise(); err != nil {
		log.Printf("mDNS advertisement failed: %v", err)
		disc.Stop()
		return nil
	}
	return disc
}

// statsUpdateLoop periodically updates the TUI with relay counters
func statsUpdateLoop(srv *relay.Server, updateTUI func(ui.StatusMsg)) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		stats := srv.Stats()
		if !stats.Running {
			continue
		}

		state := ui.StateListening
		if stats.ActiveClient != "" {
			state = ui.StateStreaming
		}
		peer := stats.ActiveClient

		updateTUI(ui.StatusMsg{
			State:   state,
			Peer:    &peer,
			Bytes:   stats.BytesSent,
			Frames:  stats.FramesSent,
			Clients: stats.ClientsServed,
		})
	}
}
