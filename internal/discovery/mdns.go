// ABOUTME: mDNS discovery of Resonate servers
// ABOUTME: Browses the local network and reports each server once
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the service Resonate servers advertise
const ServiceType = "_resonate-server._tcp"

// ErrNotFound is returned when no server answered before the deadline
var ErrNotFound = errors.New("no resonate server found")

// Config holds discovery configuration
type Config struct {
	Service string        // default ServiceType
	Domain  string        // default "local"
	Round   time.Duration // length of one query round, default 3s
	Logger  *slog.Logger
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name  string
	ID    string // from the id or server_id TXT record
	Host  string
	Port  int
	HTTPS bool
}

// Addr returns the server address in a form resonate.ServerURL accepts
func (s ServerInfo) Addr() string {
	scheme := "ws"
	if s.HTTPS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
}

func (s ServerInfo) key() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Name
}

// Browser repeatedly queries for servers
type Browser struct {
	config Config
	logger *slog.Logger
	query  func(*mdns.QueryParam) error
}

// NewBrowser creates a browser
func NewBrowser(config Config) *Browser {
	if config.Service == "" {
		config.Service = ServiceType
	}
	if config.Domain == "" {
		config.Domain = "local"
	}
	if config.Round <= 0 {
		config.Round = 3 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Browser{
		config: config,
		logger: config.Logger.With("component", "discovery"),
		query:  mdns.Query,
	}
}

// Browse reports each discovered server once until ctx is done. The
// returned channel is closed when browsing stops.
func (b *Browser) Browse(ctx context.Context) <-chan ServerInfo {
	out := make(chan ServerInfo, 10)

	go func() {
		defer close(out)
		seen := make(map[string]bool)

		for ctx.Err() == nil {
			entries := make(chan *mdns.ServiceEntry, 10)
			var wg sync.WaitGroup
			wg.Add(1)

			go func() {
				defer wg.Done()
				for entry := range entries {
					server, ok := b.fromEntry(entry)
					if !ok || seen[server.key()] {
						continue
					}
					seen[server.key()] = true
					b.logger.Info("discovered server", "name", server.Name, "addr", server.Addr())

					select {
					case out <- server:
					case <-ctx.Done():
					}
				}
			}()

			params := &mdns.QueryParam{
				Service:     b.config.Service,
				Domain:      b.config.Domain,
				Timeout:     b.config.Round,
				Entries:     entries,
				DisableIPv6: true,
			}
			if err := b.query(params); err != nil {
				b.logger.Warn("mdns query failed", "error", err)
				select {
				case <-time.After(b.config.Round):
				case <-ctx.Done():
				}
			}
			close(entries)
			wg.Wait()
		}
	}()

	return out
}

// Discover returns the first server that answers within timeout
func (b *Browser) Discover(ctx context.Context, timeout time.Duration) (ServerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case server, ok := <-b.Browse(ctx):
		if ok {
			return server, nil
		}
	case <-ctx.Done():
	}
	return ServerInfo{}, fmt.Errorf("%w within %s", ErrNotFound, timeout)
}

// fromEntry converts an mDNS answer, preferring IPv4
func (b *Browser) fromEntry(entry *mdns.ServiceEntry) (ServerInfo, bool) {
	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return ServerInfo{}, false
	}

	name := strings.TrimSuffix(entry.Name, ".")
	name = strings.TrimSuffix(name, "."+b.config.Domain)
	name = strings.TrimSuffix(name, "."+b.config.Service)

	server := ServerInfo{
		Name: name,
		Host: host,
		Port: entry.Port,
	}
	for _, field := range entry.InfoFields {
		k, v, _ := strings.Cut(field, "=")
		switch k {
		case "id", "server_id":
			if server.ID == "" {
				server.ID = v
			}
		case "https":
			server.HTTPS = v == "true" || v == "1"
		}
	}
	return server, true
}
