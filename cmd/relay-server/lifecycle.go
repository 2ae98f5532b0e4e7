// ABOUTME: Ties the relay session to its mDNS announcement and TUI status
// ABOUTME: Withdraws the announcement whenever the session stops or dies
package main

import (
	"log"
	"net"
	"strings"

	"github.com/harperreed/audiorelay/internal/discovery"
	"github.com/harperreed/audiorelay/internal/ui"
)

type announcement interface {
	Stop()
}

// lifecycle is owned by the main loop; none of its methods are concurrent
type lifecycle struct {
	startRelay func() (net.Addr, error)
	stopRelay  func()
	announce   func(net.Addr) announcement
	update     func(ui.StatusMsg)

	ann announcement
}

func (l *lifecycle) start() error {
	addr, err := l.startRelay()
	if err != nil {
		return err
	}

	reachable := strings.Join(discovery.ReachableAddrs(addr), ", ")
	log.Printf("Listening on %s", reachable)
	l.update(ui.StatusMsg{State: ui.StateListening, Addr: reachable, Err: ui.StringPtr("")})

	l.withdraw()
	if l.announce != nil {
		l.ann = l.announce(addr)
	}
	return nil
}

func (l *lifecycle) stop() {
	l.withdraw()
	l.stopRelay()
	l.update(ui.StatusMsg{State: ui.StateIdle, Peer: ui.StringPtr("")})
}

// died handles a session that ended on its own
func (l *lifecycle) died(err error) {
	log.Printf("Server stopped: %v", err)
	l.withdraw()
	l.update(ui.StatusMsg{State: ui.StateIdle, Peer: ui.StringPtr(""), Err: ui.StringPtr(err.Error())})
}

func (l *lifecycle) withdraw() {
	if l.ann != nil {
		l.ann.Stop()
		l.ann = nil
	}
}
