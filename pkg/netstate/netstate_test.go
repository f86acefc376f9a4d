package netstate

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"media-metadata-go/pkg/config"
	"media-metadata-go/pkg/logging"
)

func fakeSysfs(types map[string]string) func(string) ([]byte, error) {
	return func(name string) ([]byte, error) {
		iface := filepath.Base(filepath.Dir(name))
		if v, ok := types[iface]; ok {
			return []byte(v + "\n"), nil
		}
		return nil, fs.ErrNotExist
	}
}

func TestMonitor_Reliable(t *testing.T) {
	up := net.FlagUp | net.FlagRunning

	tests := []struct {
		name     string
		policy   string
		links    []Link
		linksErr error
		types    map[string]string
		want     bool
	}{
		{
			name:   "always",
			policy: config.NetworkPolicyAlways,
			want:   true,
		},
		{
			name:   "never",
			policy: config.NetworkPolicyNever,
			links:  []Link{{Name: "eth0", Flags: up, HasAddrs: true}},
			types:  map[string]string{"eth0": "1"},
			want:   false,
		},
		{
			name:   "auto with ethernet",
			policy: config.NetworkPolicyAuto,
			links:  []Link{{Name: "lo", Flags: up | net.FlagLoopback, HasAddrs: true}, {Name: "eth0", Flags: up, HasAddrs: true}},
			types:  map[string]string{"lo": "772", "eth0": "1"},
			want:   true,
		},
		{
			name:   "auto with only cellular",
			policy: config.NetworkPolicyAuto,
			links:  []Link{{Name: "wwan0", Flags: up, HasAddrs: true}, {Name: "rmnet_data0", Flags: up, HasAddrs: true}},
			types:  map[string]string{"wwan0": "1", "rmnet_data0": "519"},
			want:   false,
		},
		{
			name:   "auto with link down",
			policy: config.NetworkPolicyAuto,
			links:  []Link{{Name: "eth0", Flags: 0, HasAddrs: true}},
			types:  map[string]string{"eth0": "1"},
			want:   false,
		},
		{
			name:   "auto without addresses",
			policy: config.NetworkPolicyAuto,
			links:  []Link{{Name: "wlan0", Flags: up}},
			types:  map[string]string{"wlan0": "1"},
			want:   false,
		},
		{
			name:   "auto with unknown link type",
			policy: config.NetworkPolicyAuto,
			links:  []Link{{Name: "eth0", Flags: up, HasAddrs: true}},
			want:   false,
		},
		{
			name:   "auto with tunnel only",
			policy: config.NetworkPolicyAuto,
			links:  []Link{{Name: "tun0", Flags: up, HasAddrs: true}},
			types:  map[string]string{"tun0": "65534"},
			want:   false,
		},
		{
			name:     "auto when interfaces cannot be listed",
			policy:   config.NetworkPolicyAuto,
			linksErr: errors.New("netlink unavailable"),
			want:     false,
		},
		{
			name:   "unrecognised policy",
			policy: "sometimes",
			links:  []Link{{Name: "eth0", Flags: up, HasAddrs: true}},
			types:  map[string]string{"eth0": "1"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.policy, logging.Nop(),
				WithLinks(func() ([]Link, error) { return tt.links, tt.linksErr }),
				WithSysfs("/sys/class/net", fakeSysfs(tt.types)),
			)
			if got := m.Reliable(context.Background()); got != tt.want {
				t.Errorf("Reliable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonitor_SetPolicy(t *testing.T) {
	m := New(config.NetworkPolicyNever, logging.Nop())
	assert.False(t, m.Reliable(context.Background()))

	m.SetPolicy(config.NetworkPolicyAlways)
	assert.Equal(t, config.NetworkPolicyAlways, m.Policy())
	assert.True(t, m.Reliable(context.Background()))
}

func TestMonitor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := New(config.NetworkPolicyAlways, logging.Nop())
	assert.False(t, m.Reliable(ctx))
}
