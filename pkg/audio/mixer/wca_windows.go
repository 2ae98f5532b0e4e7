// ABOUTME: Windows mixer using the default render endpoint volume
// ABOUTME: Talks to IAudioEndpointVolume through go-wca
package mixer

import (
	"fmt"
	"log"
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"
)

// Endpoint controls the mute state of the default render device
type Endpoint struct{}

// NewEndpoint creates a mixer bound to the default console render endpoint
func NewEndpoint() *Endpoint {
	return &Endpoint{}
}

func (e *Endpoint) IsMuted() (muted bool, err error) {
	err = withEndpointVolume(func(aev *wca.IAudioEndpointVolume) error {
		return aev.GetMute(&muted)
	})
	return
}

func (e *Endpoint) SetMuted(muted bool) error {
	return withEndpointVolume(func(aev *wca.IAudioEndpointVolume) error {
		return aev.SetMute(muted, nil)
	})
}

// withEndpointVolume runs fn on a COM-initialized thread with the default
// render endpoint's volume interface
func withEndpointVolume(fn func(*wca.IAudioEndpointVolume) error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		return fmt.Errorf("failed to initialize ole: %w", err)
	}
	defer ole.CoUninitialize()

	var de *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &de); err != nil {
		return fmt.Errorf("cannot create IMMDeviceEnumerator instance: %w", err)
	}
	defer de.Release()

	var device *wca.IMMDevice
	if err := de.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &device); err != nil {
		return fmt.Errorf("cannot get default render endpoint: %w", err)
	}
	defer device.Release()

	var aev *wca.IAudioEndpointVolume
	if err := device.Activate(wca.IID_IAudioEndpointVolume, wca.CLSCTX_ALL, nil, &aev); err != nil {
		return fmt.Errorf("cannot activate IAudioEndpointVolume: %w", err)
	}
	defer aev.Release()

	return fn(aev)
}

// NewSystem returns the best available mixer for this host
func NewSystem() Mixer {
	e := NewEndpoint()
	if _, err := e.IsMuted(); err != nil {
		log.Printf("[mixer] %v, mute state will not be changed", err)
		return NewMemory(false)
	}
	return e
}
