// ABOUTME: Real-time pacing for synthetic capture sources
// ABOUTME: Releases frames at the rate a hardware device would produce them
package capture

import (
	"time"

	"github.com/harperreed/audiorelay/pkg/audio"
)

// pacer blocks until produced audio is due, so generated sources behave like
// a capture device instead of flooding the socket
type pacer struct {
	format   audio.Format
	start    time.Time
	produced int64
}

func newPacer(format audio.Format) *pacer {
	return &pacer{format: format, start: time.Now()}
}

// wait blocks until the first n bytes after everything already produced are due.
// It returns false if done is closed first.
func (p *pacer) wait(n int, done <-chan struct{}) bool {
	due := p.start.Add(p.format.Duration(p.produced))
	p.produced += int64(n)

	delay := time.Until(due)
	if delay <= 0 {
		select {
		case <-done:
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-done:
		return false
	}
}
