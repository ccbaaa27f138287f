// Package sim feeds canned or synthetic instrument sentences to a listener
// so the client can be exercised without a real daemon.
package sim

// LineSink is a simulator output endpoint.
type LineSink interface {
	// Write sends one framed sentence to whoever is listening.
	Write(line string) error
	// Read services the sink's inbound side: connection requests and any
	// control strings the peer sends. It never blocks for long.
	Read() error
	// Drain waits for written data to leave, e.g. before closing.
	Drain() error
	Close() error
	// Name is a URL-like label such as "udp://127.0.0.1:7000".
	Name() string
}
