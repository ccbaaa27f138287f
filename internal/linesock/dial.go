package linesock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultHost and DefaultPort match a stock gpsd install.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = "2947"
)

var (
	// ErrConnection is returned when no resolved address accepted a connection.
	ErrConnection = errors.New("linesock: connection failed")
	// ErrInvalidPort is returned when a host:port suffix is not numeric.
	ErrInvalidPort = errors.New("linesock: nonnumeric port")
)

type lookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// splitHostPort applies the "host:port" suffix convention. The suffix is only
// honoured when port is empty and host contains exactly one colon, so bare
// IPv6 literals are left alone.
func splitHostPort(host, port string) (string, string, error) {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	if host == "" {
		host = DefaultHost
	}
	if port == "" && strings.Count(host, ":") == 1 {
		i := strings.LastIndexByte(host, ':')
		host, port = host[:i], host[i+1:]
		if _, err := strconv.Atoi(port); err != nil {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPort, port)
		}
		if host == "" {
			host = DefaultHost
		}
	}
	if port == "" {
		port = DefaultPort
	}
	return host, port, nil
}

// connect resolves host and tries every candidate address in order,
// returning the first connection that succeeds.
func connect(ctx context.Context, host, port string, lookup lookupFunc, dial dialFunc) (net.Conn, error) {
	host, port, err := splitHostPort(host, port)
	if err != nil {
		return nil, err
	}

	var addrs []string
	if ip := net.ParseIP(host); ip != nil {
		addrs = []string{ip.String()}
	} else {
		ips, err := lookup(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve %s: %v", ErrConnection, host, err)
		}
		for _, ip := range ips {
			addrs = append(addrs, ip.String())
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: getaddrinfo returns an empty list", ErrConnection)
	}

	var lastErr error
	for _, a := range addrs {
		conn, err := dial(ctx, "tcp", net.JoinHostPort(a, port))
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return conn, nil
	}
	return nil, fmt.Errorf("%w: %s:%s: %v", ErrConnection, host, port, lastErr)
}

func defaultDial(timeout time.Duration) dialFunc {
	d := &net.Dialer{Timeout: timeout}
	return d.DialContext
}
