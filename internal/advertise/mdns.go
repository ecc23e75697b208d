// Package advertise announces TrackerLink on the local network over mDNS.
//
// Producers (phone companion apps, exporters) browse for _trackerlink._tcp
// and read the TXT records to find the REST API and the MQTT discovery
// prefix. The pending count is refreshed whenever the registry changes.
package advertise

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/enbility/zeroconf/v3"

	"github.com/nerrad567/trackerlink-core/internal/infrastructure/config"
	"github.com/nerrad567/trackerlink-core/internal/notify"
)

const (
	// ServiceType is the DNS-SD service type of the API.
	ServiceType = "_trackerlink._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// maxInstanceNameLen is the DNS label limit.
	maxInstanceNameLen = 63
)

// Info describes what the advertisement publishes.
type Info struct {
	Port            int
	Version         string
	Domain          string
	MQTTBroker      string // host:port, empty when MQTT is disabled
	DiscoveryPrefix string
}

// TXT encodes info and the pending tracker count as sorted key=value strings.
func TXT(info Info, pending int) []string {
	records := map[string]string{
		"version": info.Version,
		"domain":  info.Domain,
		"api":     "/api/v1",
		"pending": fmt.Sprintf("%d", pending),
	}
	if info.MQTTBroker != "" {
		records["mqtt"] = info.MQTTBroker
		records["prefix"] = info.DiscoveryPrefix
	}

	out := make([]string, 0, len(records))
	for k, v := range records {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// server is the part of *zeroconf.Server the advertiser drives.
type server interface {
	SetText(text []string)
	Shutdown()
}

type registerFunc func(instance string, port int, text []string, ifaces []net.Interface, ttl time.Duration) (server, error)

func registerZeroconf(instance string, port int, text []string, ifaces []net.Interface, ttl time.Duration) (server, error) {
	var opts []zeroconf.ServerOption
	if ttl > 0 {
		opts = append(opts, zeroconf.TTL(uint32(ttl.Seconds())))
	}
	return zeroconf.Register(instance, ServiceType, Domain, port, text, ifaces, opts...)
}

// Advertiser publishes one mDNS service. It implements notify.Notifier so
// it can sit beside the other notifiers and keep the pending count fresh.
type Advertiser struct {
	cfg     config.AdvertiseConfig
	info    Info
	pending func() int

	mu       sync.Mutex
	srv      server
	register registerFunc
}

var _ notify.Notifier = (*Advertiser)(nil)

// New creates an advertiser. pending reports the current registry size and
// may be nil.
func New(cfg config.AdvertiseConfig, info Info, pending func() int) *Advertiser {
	if pending == nil {
		pending = func() int { return 0 }
	}
	return &Advertiser{
		cfg:      cfg,
		info:     info,
		pending:  pending,
		register: registerZeroconf,
	}
}

// Start registers the service. Calling Start again replaces the running
// registration.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.srv != nil {
		a.srv.Shutdown()
		a.srv = nil
	}

	ifaces, err := a.interfaces()
	if err != nil {
		return err
	}

	srv, err := a.register(a.instance(), a.info.Port, TXT(a.info, a.pending()), ifaces,
		time.Duration(a.cfg.TTL)*time.Second)
	if err != nil {
		return fmt.Errorf("registering mDNS service: %w", err)
	}
	a.srv = srv
	return nil
}

// Refresh republishes the TXT records. It is a no-op before Start.
func (a *Advertiser) Refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.srv != nil {
		a.srv.SetText(TXT(a.info, a.pending()))
	}
}

// Close withdraws the service.
func (a *Advertiser) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.srv != nil {
		a.srv.Shutdown()
		a.srv = nil
	}
}

// TrackerDiscovered implements notify.Notifier.
func (a *Advertiser) TrackerDiscovered(notify.Signal) { a.Refresh() }

// TrackerRemoved implements notify.Notifier.
func (a *Advertiser) TrackerRemoved(notify.Removal) { a.Refresh() }

// instance returns the configured name cut to the DNS label limit on a
// rune boundary.
func (a *Advertiser) instance() string {
	name := a.cfg.Instance
	if len(name) <= maxInstanceNameLen {
		return name
	}
	cut := maxInstanceNameLen
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// interfaces returns nil (every interface) unless one is configured.
func (a *Advertiser) interfaces() ([]net.Interface, error) {
	if a.cfg.Interface == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(a.cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %q: %w", a.cfg.Interface, err)
	}
	return []net.Interface{*iface}, nil
}
