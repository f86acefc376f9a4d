// Package netstate reports whether the host is on a network suitable for
// fetching remote media.
package netstate

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"media-metadata-go/pkg/config"
	"media-metadata-go/pkg/interfaces"
	"media-metadata-go/pkg/logging"
)

// arphrdEther is the Linux link type shared by Ethernet and Wi-Fi devices.
const arphrdEther = "1"

var cellularPrefixes = []string{"wwan", "rmnet", "ppp"}

// Link describes one network interface as seen by the monitor.
type Link struct {
	Name     string
	Flags    net.Flags
	HasAddrs bool
}

// Monitor applies the configured network policy. Under the auto policy it
// inspects the host's links; anything it cannot determine is unreliable.
type Monitor struct {
	mu       sync.RWMutex
	policy   string
	log      *logging.Logger
	links    func() ([]Link, error)
	readFile func(name string) ([]byte, error)
	sysfs    string
}

var _ interfaces.NetworkMonitor = (*Monitor)(nil)

// Option customizes a Monitor.
type Option func(*Monitor)

// WithLinks replaces the interface lister.
func WithLinks(fn func() ([]Link, error)) Option {
	return func(m *Monitor) { m.links = fn }
}

// WithSysfs replaces the sysfs root and file reader used to read link types.
func WithSysfs(root string, readFile func(name string) ([]byte, error)) Option {
	return func(m *Monitor) {
		m.sysfs = root
		m.readFile = readFile
	}
}

// New creates a monitor for the given policy.
func New(policy string, log *logging.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		policy:   policy,
		log:      log.WithComponent("netstate"),
		links:    systemLinks,
		readFile: os.ReadFile,
		sysfs:    "/sys/class/net",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetPolicy replaces the policy, typically after a config reload.
func (m *Monitor) SetPolicy(policy string) {
	m.mu.Lock()
	m.policy = policy
	m.mu.Unlock()
}

// Policy returns the current policy.
func (m *Monitor) Policy() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

// Reliable reports whether remote media may be fetched.
func (m *Monitor) Reliable(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	switch m.Policy() {
	case config.NetworkPolicyAlways:
		return true
	case config.NetworkPolicyAuto:
		ok, err := m.detect()
		if err != nil {
			m.log.Warn("network state unknown", "error", err)
			return false
		}
		return ok
	default:
		return false
	}
}

func (m *Monitor) detect() (bool, error) {
	links, err := m.links()
	if err != nil {
		return false, fmt.Errorf("failed to list interfaces: %w", err)
	}

	for _, link := range links {
		if link.Flags&net.FlagUp == 0 || link.Flags&net.FlagLoopback != 0 || !link.HasAddrs {
			continue
		}
		if isCellular(link.Name) {
			m.log.Debug("skipping cellular link", "interface", link.Name)
			continue
		}

		data, err := m.readFile(filepath.Join(m.sysfs, link.Name, "type"))
		if err != nil {
			m.log.Debug("link type unavailable", "interface", link.Name, "error", err)
			continue
		}
		if strings.TrimSpace(string(data)) == arphrdEther {
			return true, nil
		}
	}
	return false, nil
}

func isCellular(name string) bool {
	for _, prefix := range cellularPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func systemLinks() ([]Link, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	links := make([]Link, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		links = append(links, Link{
			Name:     iface.Name,
			Flags:    iface.Flags,
			HasAddrs: err == nil && len(addrs) > 0,
		})
	}
	return links, nil
}
