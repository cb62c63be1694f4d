// Package discovery advertises gpionode on the local network over mDNS/DNS-SD
// and finds other instances.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// mDNS service identity and browse defaults.
const (
	ServiceType = "_gpionode._tcp"
	Domain      = "local."

	DefaultScanTimeout = 3 * time.Second
)

// Node is a gpionode instance found on the network.
type Node struct {
	Instance string            `json:"instance"`
	Host     string            `json:"host"`
	Address  string            `json:"address"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Advertiser announces this instance until its context ends.
type Advertiser struct {
	logger *slog.Logger
}

// NewAdvertiser creates an advertiser.
func NewAdvertiser(logger *slog.Logger) *Advertiser {
	return &Advertiser{logger: logger}
}

// Advertise registers instance on port with metadata as TXT records and
// blocks until ctx is cancelled.
func (a *Advertiser) Advertise(ctx context.Context, instance string, port int, metadata map[string]string) error {
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, TXTRecords(metadata), nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	a.logger.Info("Advertising on mDNS", "instance", instance, "service", ServiceType, "port", port)

	<-ctx.Done()
	server.Shutdown()
	a.logger.Debug("mDNS advertisement withdrawn", "instance", instance)
	return nil
}

// Scan browses for gpionode instances until timeout and returns them
// sorted by instance name.
func Scan(ctx context.Context, timeout time.Duration) ([]Node, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu    sync.Mutex
		nodes = map[string]Node{}
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			node := entryToNode(entry)
			mu.Lock()
			nodes[node.Instance] = node
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(scanCtx, ServiceType, Domain, entries); err != nil {
		cancel()
		wg.Wait()
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	<-scanCtx.Done()
	wg.Wait()

	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

func entryToNode(entry *zeroconf.ServiceEntry) Node {
	var address string
	switch {
	case len(entry.AddrIPv4) > 0:
		address = fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port)
	case len(entry.AddrIPv6) > 0:
		address = fmt.Sprintf("[%s]:%d", entry.AddrIPv6[0], entry.Port)
	}
	return Node{
		Instance: entry.Instance,
		Host:     strings.TrimSuffix(entry.HostName, "."),
		Address:  address,
		Metadata: ParseTXTRecords(entry.Text),
	}
}

// TXTRecords encodes metadata as key=value records in key order.
func TXTRecords(metadata map[string]string) []string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	txt := make([]string, 0, len(keys))
	for _, k := range keys {
		txt = append(txt, k+"="+metadata[k])
	}
	return txt
}

// ParseTXTRecords decodes key=value records. Records without '=' are skipped.
func ParseTXTRecords(txt []string) map[string]string {
	m := make(map[string]string, len(txt))
	for _, t := range txt {
		if k, v, ok := strings.Cut(t, "="); ok {
			m[k] = v
		}
	}
	return m
}
