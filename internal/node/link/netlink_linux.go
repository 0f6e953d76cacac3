//go:build linux

package link

import (
	"context"
	"errors"
	"time"

	"github.com/vishvananda/netlink"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/autopeer-io/sensornode/pkg/log"
)

const defaultPollInterval = 500 * time.Millisecond

// Netlink watches the operational state of one interface.
type Netlink struct {
	iface string
	poll  time.Duration

	linkByName func(name string) (netlink.Link, error)
	addrList   func(link netlink.Link, family int) ([]netlink.Addr, error)
}

var _ Link = (*Netlink)(nil)

// New returns a Link for the named interface.
func New(iface string) Link {
	return &Netlink{
		iface:      iface,
		poll:       defaultPollInterval,
		linkByName: netlink.LinkByName,
		addrList:   netlink.AddrList,
	}
}

// EnsureAssociated waits up to timeout for the interface to be up with an
// IPv4 address. Association itself is left to the system's supplicant.
func (n *Netlink) EnsureAssociated(ctx context.Context, timeout time.Duration) bool {
	if n.ready() {
		return true
	}
	log.Info("Waiting for network link", "interface", n.iface, "timeout", timeout)

	err := wait.PollUntilContextTimeout(ctx, n.poll, timeout, false, func(context.Context) (bool, error) {
		return n.ready(), nil
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn("Network link not ready", "interface", n.iface, "error", err)
		}
		return false
	}
	log.Info("Network link ready", "interface", n.iface)
	return true
}

func (n *Netlink) ready() bool {
	l, err := n.linkByName(n.iface)
	if err != nil {
		log.Debug("Link lookup failed", "interface", n.iface, "error", err)
		return false
	}
	attrs := l.Attrs()
	if attrs.OperState != netlink.OperUp && attrs.OperState != netlink.OperUnknown {
		return false
	}
	addrs, err := n.addrList(l, netlink.FAMILY_V4)
	if err != nil {
		log.Debug("Address lookup failed", "interface", n.iface, "error", err)
		return false
	}
	return len(addrs) > 0
}
