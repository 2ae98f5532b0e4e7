// ABOUTME: Relay session layer for LAN PCM streaming
// ABOUTME: Provides the single-client Server and the Client that plays its stream
// Package relay streams raw PCM audio from one device to another over TCP.
//
// The wire carries 16-bit little-endian mono samples at 44100 Hz with no
// header or framing. Each side computes the frame size from audio.RelayFormat.
//
//   - Server: accepts one client at a time and pumps captured frames to it
//   - Client: connects, then writes whatever arrives to an output sink
//
// Example Server:
//
//	server, err := relay.NewServer(relay.ServerConfig{
//	    ListenAddr: ":8080",
//	    Capture:    capture.NewTone(440),
//	    Mixer:      mixer.NewSystem(),
//	})
//	err = server.Start()
//	defer server.Stop()
//
// Example Client:
//
//	client, err := relay.NewClient(relay.ClientConfig{Output: output.NewMalgo()})
//	err = client.Connect("192.168.1.20", relay.Handlers{
//	    OnConnected:    func() { log.Printf("playing") },
//	    OnError:        func(err error) { log.Printf("connect failed: %v", err) },
//	    OnDisconnected: func(err error) { log.Printf("stopped: %v", err) },
//	})
package relay
