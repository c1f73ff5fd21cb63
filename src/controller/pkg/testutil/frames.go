// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package testutil provides utilities for testing the OpenFlow controller.
// It includes an in-memory recording session, Ethernet frame builders for
// the usual test hosts, and a fake switch that speaks OpenFlow 1.3 over TCP
// for end-to-end testing.
package testutil

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Host is an end host attached to a test switch
type Host struct {
	Name string
	MAC  net.HardwareAddr
	IP   net.IP
}

// Default hosts, addressed the way a Mininet single-switch topology
// numbers them
var (
	H1 = NewHost("h1", "00:00:00:00:00:01", "10.0.0.1")
	H2 = NewHost("h2", "00:00:00:00:00:02", "10.0.0.2")
	H3 = NewHost("h3", "00:00:00:00:00:03", "10.0.0.3")
	H4 = NewHost("h4", "00:00:00:00:00:04", "10.0.0.4")
)

// BroadcastMAC is ff:ff:ff:ff:ff:ff
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// NewHost creates a host, panicking on malformed addresses
func NewHost(name, mac, ip string) Host {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		panic(fmt.Sprintf("bad MAC %q: %v", mac, err))
	}
	addr := net.ParseIP(ip).To4()
	if addr == nil {
		panic(fmt.Sprintf("bad IPv4 %q", ip))
	}
	return Host{Name: name, MAC: hw, IP: addr}
}

var serializeOpts = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

// PingFrame builds an ICMP echo request from src to dst
func PingFrame(src, dst Host) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       src.MAC,
		DstMAC:       dst.MAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    src.IP,
		DstIP:    dst.IP,
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       1,
		Seq:      1,
	}
	return mustSerialize(eth, ip, icmp, gopacket.Payload([]byte("ping")))
}

// ARPRequestFrame builds a broadcast who-has for target from src
func ARPRequestFrame(src Host, target net.IP) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       src.MAC,
		DstMAC:       BroadcastMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   src.MAC,
		SourceProtAddress: src.IP.To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    target.To4(),
	}
	return mustSerialize(eth, arp)
}

// ARPReplyFrame builds the is-at answer from src to dst
func ARPReplyFrame(src, dst Host) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       src.MAC,
		DstMAC:       dst.MAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   src.MAC,
		SourceProtAddress: src.IP.To4(),
		DstHwAddress:      dst.MAC,
		DstProtAddress:    dst.IP.To4(),
	}
	return mustSerialize(eth, arp)
}

// LLDPFrame builds a minimal LLDP frame (chassis, port, TTL, end TLVs)
func LLDPFrame(src net.HardwareAddr) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       net.HardwareAddr{0x01, 0x80, 0xc2, 0x00, 0x00, 0x0e},
		EthernetType: layers.EthernetTypeLinkLayerDiscovery,
	}
	tlvs := []byte{
		0x02, 0x07, 0x04, src[0], src[1], src[2], src[3], src[4], src[5], // chassis id, MAC subtype
		0x04, 0x02, 0x07, 0x31, // port id, local subtype "1"
		0x06, 0x02, 0x00, 0x78, // ttl 120
		0x00, 0x00, // end
	}
	return mustSerialize(eth, gopacket.Payload(tlvs))
}

func mustSerialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, ls...); err != nil {
		panic(fmt.Sprintf("serialize test frame: %v", err))
	}
	return buf.Bytes()
}
