//go:build linux

package link

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vishvananda/netlink"
)

type fakeNetlink struct {
	state netlink.LinkOperState
	addrs []netlink.Addr
	err   error
	calls atomic.Int32
}

func (f *fakeNetlink) install(n *Netlink) {
	n.linkByName = func(name string) (netlink.Link, error) {
		f.calls.Add(1)
		if f.err != nil {
			return nil, f.err
		}
		return &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: name, OperState: f.state}}, nil
	}
	n.addrList = func(netlink.Link, int) ([]netlink.Addr, error) {
		return f.addrs, nil
	}
}

func testAddr() netlink.Addr {
	return netlink.Addr{IPNet: &net.IPNet{IP: net.IPv4(192, 168, 4, 20), Mask: net.CIDRMask(24, 32)}}
}

func newTestLink(f *fakeNetlink) *Netlink {
	n := New("wlan0").(*Netlink)
	n.poll = time.Millisecond
	f.install(n)
	return n
}

func TestNetlinkReady(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeNetlink
		want bool
	}{
		{"up with address", &fakeNetlink{state: netlink.OperUp, addrs: []netlink.Addr{testAddr()}}, true},
		{"unknown state with address", &fakeNetlink{state: netlink.OperUnknown, addrs: []netlink.Addr{testAddr()}}, true},
		{"up without address", &fakeNetlink{state: netlink.OperUp}, false},
		{"down", &fakeNetlink{state: netlink.OperDown, addrs: []netlink.Addr{testAddr()}}, false},
		{"missing interface", &fakeNetlink{err: errors.New("Link not found")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestLink(tt.fake)
			assert.Equal(t, tt.want, n.EnsureAssociated(context.Background(), 20*time.Millisecond))
		})
	}
}

func TestNetlinkPollsUntilUp(t *testing.T) {
	f := &fakeNetlink{state: netlink.OperDown, addrs: []netlink.Addr{testAddr()}}
	n := newTestLink(f)
	n.linkByName = func(name string) (netlink.Link, error) {
		var state netlink.LinkOperState = netlink.OperDown
		if f.calls.Add(1) >= 3 {
			state = netlink.OperUp
		}
		return &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: name, OperState: state}}, nil
	}

	assert.True(t, n.EnsureAssociated(context.Background(), time.Second))
	assert.GreaterOrEqual(t, f.calls.Load(), int32(3))
}

func TestNetlinkCancelled(t *testing.T) {
	n := newTestLink(&fakeNetlink{state: netlink.OperDown})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, n.EnsureAssociated(ctx, time.Second))
}
