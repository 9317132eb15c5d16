package transport

import (
	"fmt"
	"net"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"
	"github.com/huin/goupnp/dcps/internetgateway1"
)

// NAT abstracts port-mapping over NAT-PMP and UPnP IGD, the two
// mechanisms a node behind a home router is likely to expose, using
// jackpal/go-nat-pmp and huin/goupnp respectively.
type NAT interface {
	ExternalIP() (net.IP, error)
	AddMapping(protocol string, extPort, intPort int, desc string, lifetime time.Duration) error
}

// DiscoverNATPMP probes gatewayIP for a NAT-PMP responder.
func DiscoverNATPMP(gatewayIP net.IP) (NAT, error) {
	client := natpmp.NewClient(gatewayIP)
	if _, err := client.GetExternalAddress(); err != nil {
		return nil, fmt.Errorf("nat-pmp: %w", err)
	}
	return &pmpNAT{client: client}, nil
}

type pmpNAT struct {
	client *natpmp.Client
}

func (n *pmpNAT) ExternalIP() (net.IP, error) {
	resp, err := n.client.GetExternalAddress()
	if err != nil {
		return nil, err
	}
	ip := resp.ExternalIPAddress
	return net.IPv4(ip[0], ip[1], ip[2], ip[3]), nil
}

func (n *pmpNAT) AddMapping(protocol string, extPort, intPort int, desc string, lifetime time.Duration) error {
	secs := int(lifetime.Seconds())
	if secs <= 0 {
		secs = 3600
	}
	_, err := n.client.AddPortMapping(protocol, intPort, extPort, secs)
	return err
}

// DiscoverUPnP probes the LAN for an IGD1-compatible UPnP gateway, an
// alternative to NAT-PMP (most consumer routers only speak one of the
// two). cmd/dtnexd does not fall back to it when NAT-PMP is unavailable.
func DiscoverUPnP() (NAT, error) {
	clients, _, err := internetgateway1.NewWANIPConnection1Clients()
	if err != nil {
		return nil, fmt.Errorf("upnp discovery: %w", err)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("upnp: no WANIPConnection1 gateway found")
	}
	return &upnpNAT{client: clients[0]}, nil
}

type upnpNAT struct {
	client *internetgateway1.WANIPConnection1
}

func (n *upnpNAT) ExternalIP() (net.IP, error) {
	s, err := n.client.GetExternalIPAddress()
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("upnp: invalid external ip %q", s)
	}
	return ip, nil
}

func (n *upnpNAT) AddMapping(protocol string, extPort, intPort int, desc string, lifetime time.Duration) error {
	secs := uint32(lifetime.Seconds())
	localIP, err := localIPv4()
	if err != nil {
		return err
	}
	return n.client.AddPortMapping("", uint16(extPort), protocol, uint16(intPort), localIP.String(), true, desc, secs)
}

func localIPv4() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}
