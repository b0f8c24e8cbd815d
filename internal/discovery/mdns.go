// ABOUTME: mDNS discovery for vsync feed daemons on the local network
// ABOUTME: Daemons advertise _vsyncfeed._tcp and monitors browse for it
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the mDNS service type for vsync feed daemons.
const ServiceType = "_vsyncfeed._tcp"

// Config holds discovery configuration.
type Config struct {
	// InstanceName names this daemon in mDNS records.
	InstanceName string

	// Port is the websocket feed port to advertise.
	Port int

	// Log receives discovery events. Nil disables logging.
	Log *zap.Logger
}

// Manager advertises a feed daemon or browses for one.
type Manager struct {
	config Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	feeds  chan *FeedInfo
}

// FeedInfo describes a discovered feed daemon.
type FeedInfo struct {
	Name string
	Host string
	Port int
}

// Addr returns the feed's host:port dial address.
func (f *FeedInfo) Addr() string {
	return net.JoinHostPort(f.Host, strconv.Itoa(f.Port))
}

// NewManager creates a discovery manager.
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	log := config.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Manager{
		config: config,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		feeds:  make(chan *FeedInfo, 10),
	}
}

// Advertise announces this daemon's feed until Stop is called.
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.InstanceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=/vsync"},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info("advertising feed",
		zap.String("instance", m.config.InstanceName),
		zap.Int("port", m.config.Port),
		zap.String("type", ServiceType))

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for feed daemons on the local network.
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop repeats queries until the manager is stopped.
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				addr := entry.AddrV4
				if addr == nil {
					addr = entry.AddrV6
				}
				if addr == nil {
					continue
				}

				feed := &FeedInfo{
					Name: entry.Name,
					Host: addr.String(),
					Port: entry.Port,
				}

				m.log.Info("discovered feed",
					zap.String("name", feed.Name),
					zap.String("addr", feed.Addr()))

				select {
				case m.feeds <- feed:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: ServiceType,
			Domain:  "local",
			Timeout: 3 * time.Second,
			Entries: entries,
		}

		mdns.Query(params)
		close(entries)
	}
}

// Feeds returns the channel of discovered feed daemons.
func (m *Manager) Feeds() <-chan *FeedInfo {
	return m.feeds
}

// Stop stops advertisement and browsing.
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns the non-loopback IPv4 addresses of up interfaces.
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
