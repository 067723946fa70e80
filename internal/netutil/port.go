package netutil

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ParseCandidates splits a comma-separated list of fallback addresses. Bare
// ports such as "8081" are bound on host.
func ParseCandidates(list, host string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !strings.Contains(item, ":") {
			item = net.JoinHostPort(host, item)
		}
		out = append(out, item)
	}
	return out
}

// Listen binds preferred, or the first free candidate when autoFallback is
// set. Returning the listener avoids racing another process between a check
// and the real bind.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address in use: %s: %w", preferred, err)
		}
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		if ln, err := net.Listen("tcp", addr); err == nil {
			return ln, nil
		}
	}
	return nil, errors.New("no available gateway bind addresses")
}
