// ABOUTME: Tests for mDNS discovery
// ABOUTME: Uses a fake query function in place of the network
package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBrowser(query func(*mdns.QueryParam) error) *Browser {
	b := NewBrowser(Config{
		Round:  10 * time.Millisecond,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	b.query = query
	return b
}

func answer(entries ...*mdns.ServiceEntry) func(*mdns.QueryParam) error {
	return func(p *mdns.QueryParam) error {
		for _, e := range entries {
			p.Entries <- e
		}
		time.Sleep(p.Timeout)
		return nil
	}
}

func TestNewBrowserDefaults(t *testing.T) {
	b := NewBrowser(Config{})
	assert.Equal(t, ServiceType, b.config.Service)
	assert.Equal(t, "local", b.config.Domain)
	assert.Equal(t, 3*time.Second, b.config.Round)
}

func TestDiscoverReturnsFirstServer(t *testing.T) {
	var got atomic.Pointer[mdns.QueryParam]
	b := newTestBrowser(func(p *mdns.QueryParam) error {
		got.Store(p)
		p.Entries <- &mdns.ServiceEntry{
			Name:       "Living Room._resonate-server._tcp.local.",
			AddrV4:     net.ParseIP("192.168.1.47"),
			Port:       8927,
			InfoFields: []string{"server_id=abc", "path=/resonate"},
		}
		time.Sleep(p.Timeout)
		return nil
	})

	server, err := b.Discover(context.Background(), time.Second)
	require.NoError(t, err)

	assert.Equal(t, ServerInfo{Name: "Living Room", ID: "abc", Host: "192.168.1.47", Port: 8927}, server)
	assert.Equal(t, "ws://192.168.1.47:8927", server.Addr())
	assert.Equal(t, ServiceType, got.Load().Service)
	assert.Equal(t, "local", got.Load().Domain)
}

func TestDiscoverTimesOut(t *testing.T) {
	b := newTestBrowser(answer())

	_, err := b.Discover(context.Background(), 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBrowseDeduplicatesAcrossRounds(t *testing.T) {
	b := newTestBrowser(answer(
		&mdns.ServiceEntry{Name: "a", AddrV4: net.ParseIP("10.0.0.1"), Port: 1, InfoFields: []string{"id=one"}},
		&mdns.ServiceEntry{Name: "a-again", AddrV4: net.ParseIP("10.0.0.2"), Port: 1, InfoFields: []string{"id=one"}},
		&mdns.ServiceEntry{Name: "b", AddrV4: net.ParseIP("10.0.0.3"), Port: 2},
	))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	var names []string
	for server := range b.Browse(ctx) {
		names = append(names, server.Name)
	}
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestBrowseSkipsEntriesWithoutAddress(t *testing.T) {
	b := newTestBrowser(answer(
		&mdns.ServiceEntry{Name: "ghost", Port: 1},
		&mdns.ServiceEntry{Name: "v6", AddrV6: net.ParseIP("fe80::1"), Port: 8927, InfoFields: []string{"https=true"}},
	))

	server, err := b.Discover(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "v6", server.Name)
	assert.Equal(t, "wss://[fe80::1]:8927", server.Addr())
}

func TestBrowseSurvivesQueryErrors(t *testing.T) {
	calls := 0
	b := newTestBrowser(func(p *mdns.QueryParam) error {
		calls++
		if calls == 1 {
			return errors.New("no multicast interface")
		}
		p.Entries <- &mdns.ServiceEntry{Name: "late", AddrV4: net.ParseIP("10.0.0.9"), Port: 8927}
		time.Sleep(p.Timeout)
		return nil
	})

	server, err := b.Discover(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", server.Name)
}
