package discovery

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultServiceType is browsed when Scanner.Service is empty. nvued sits
	// behind nginx on the switch, which is advertised as an HTTPS service.
	DefaultServiceType = "_https._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultScanTimeout bounds one browse
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is used when an entry advertises no port
	DefaultPort = 8765
)

// Browser abstracts zeroconf so tests can feed entries directly
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// Scanner discovers switches with mDNS
type Scanner struct {
	// Timeout is the maximum time to browse
	Timeout time.Duration

	// Service is the DNS-SD service type, e.g. "_https._tcp"
	Service string

	// HostFilter keeps only entries whose hostname or instance matches
	HostFilter *regexp.Regexp

	browser Browser
}

// NewScanner creates a scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		Service: DefaultServiceType,
	}
}

// SetFilter compiles pattern into HostFilter; an empty pattern clears it
func (s *Scanner) SetFilter(pattern string) error {
	if pattern == "" {
		s.HostFilter = nil
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid host filter %q: %w", pattern, err)
	}
	s.HostFilter = re
	return nil
}

// Scan browses until the timeout expires or ctx is done and returns the
// devices found, sorted by name and deduplicated by hostname.
func (s *Scanner) Scan(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	browser := s.browser
	if browser == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
		}
		browser = resolver
	}

	service := s.Service
	if service == "" {
		service = DefaultServiceType
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu      sync.Mutex
		found   = map[string]*Device{}
		drained = make(chan struct{})
	)

	go func() {
		defer close(drained)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if device := s.parseServiceEntry(entry); device != nil {
					mu.Lock()
					found[device.Hostname] = device
					mu.Unlock()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := browser.Browse(ctx, service, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-drained

	mu.Lock()
	defer mu.Unlock()
	devices := make([]*Device, 0, len(found))
	for _, d := range found {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name() < devices[j].Name() })
	return devices, nil
}

// parseServiceEntry converts a zeroconf entry into a Device.
// Returns nil for entries without an address or rejected by the filter.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil || entry.HostName == "" {
		return nil
	}

	if s.HostFilter != nil && !s.HostFilter.MatchString(entry.HostName) && !s.HostFilter.MatchString(entry.Instance) {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Device{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
