// Command netstack-demo wires drivers/w5500 and the DHCP/DNS/NTP protocol
// clients together against a software-simulated chip, in the manner of the
// teacher repo's cmd/boardtest: a small standalone binary that exercises a
// whole subsystem end to end rather than one package in isolation. There is
// no real network behind the simulated chip, so DISCOVER/query/request
// packets go nowhere; the point is to demonstrate correct wiring and the
// tick-driven control flow, not to actually acquire a lease.
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"time"

	"github.com/rschlaikjer/w5500-go/drivers/w5500"
	"github.com/rschlaikjer/w5500-go/protocols/dhcp"
	"github.com/rschlaikjer/w5500-go/protocols/dns"
	"github.com/rschlaikjer/w5500-go/protocols/ntp"
	"github.com/rschlaikjer/w5500-go/x/conv"
	"github.com/rschlaikjer/w5500-go/x/timex"
)

const (
	dnsLocalPort = 50000
	ntpLocalPort = 50001
)

func main() {
	macFlag := flag.String("mac", "02:00:00:00:00:01", "device MAC address")
	hostname := flag.String("hostname", "netstack-demo", "DHCP client hostname")
	useDHCP := flag.Bool("dhcp", true, "acquire an address via DHCP instead of static config")
	staticIP := flag.String("ip", "192.168.1.50", "static IP (used when -dhcp=false)")
	staticGW := flag.String("gateway", "192.168.1.1", "static gateway (used when -dhcp=false)")
	staticMask := flag.String("mask", "255.255.255.0", "static subnet mask (used when -dhcp=false)")
	dnsServer := flag.String("dns-server", "8.8.8.8", "DNS server IP")
	ntpServer := flag.String("ntp-server", "129.6.15.28", "NTP server IP")
	lookupHost := flag.String("lookup", "example.com", "hostname to resolve once a lease/address is ready")
	tick := flag.Duration("tick", 50*time.Millisecond, "tick interval")
	duration := flag.Duration("duration", 5*time.Second, "how long to run before exiting")
	flag.Parse()

	mac, err := parseMAC(*macFlag)
	if err != nil {
		log.Fatalf("netstack-demo: %v", err)
	}
	dnsIP, err := parseIPv4(*dnsServer)
	if err != nil {
		log.Fatalf("netstack-demo: %v", err)
	}
	ntpIP, err := parseIPv4(*ntpServer)
	if err != nil {
		log.Fatalf("netstack-demo: %v", err)
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	nowFn := func() uint64 { return uint64(timex.NowMs()) }
	chip := newSimChip(nowFn, logger.Printf)

	drv := w5500.New(chip)
	if err := drv.Init(); err != nil {
		log.Fatalf("netstack-demo: chip init: %v", err)
	}
	if err := drv.SetMAC(mac); err != nil {
		log.Fatalf("netstack-demo: set mac: %v", err)
	}

	var dhcpClient *dhcp.Client
	if *useDHCP {
		dhcpSock, err := drv.OpenUDP(dhcp.ClientPort)
		if err != nil {
			log.Fatalf("netstack-demo: open dhcp socket: %v", err)
		}
		dhcpClient = dhcp.New(chip, dhcpSock, drv, mac, *hostname)
	} else {
		ip, err := parseIPv4(*staticIP)
		if err != nil {
			log.Fatalf("netstack-demo: %v", err)
		}
		gw, err := parseIPv4(*staticGW)
		if err != nil {
			log.Fatalf("netstack-demo: %v", err)
		}
		mask, err := parseIPv4(*staticMask)
		if err != nil {
			log.Fatalf("netstack-demo: %v", err)
		}
		if err := drv.SetIP(ip); err != nil {
			log.Fatalf("netstack-demo: set ip: %v", err)
		}
		if err := drv.SetGateway(gw); err != nil {
			log.Fatalf("netstack-demo: set gateway: %v", err)
		}
		if err := drv.SetSubnetMask(mask); err != nil {
			log.Fatalf("netstack-demo: set mask: %v", err)
		}
	}

	dnsSock, err := drv.OpenUDP(dnsLocalPort)
	if err != nil {
		log.Fatalf("netstack-demo: open dns socket: %v", err)
	}
	dnsClient := dns.New(dnsSock, dnsIP)

	ntpSock, err := drv.OpenUDP(ntpLocalPort)
	if err != nil {
		log.Fatalf("netstack-demo: open ntp socket: %v", err)
	}
	ntpClient := ntp.New(ntpSock, ntpIP)

	logger.Printf("netstack-demo: mac=%s dns=%s ntp=%s dhcp=%v", *macFlag, *dnsServer, *ntpServer, *useDHCP)

	deadline := time.Now().Add(*duration)
	ticks := uint32(0)
	queried := false
	for time.Now().Before(deadline) {
		now := nowFn()

		if dhcpClient != nil {
			if err := dhcpClient.Tick(now); err != nil {
				logger.Printf("netstack-demo: dhcp tick: %v", err)
			}
		}

		ready := dhcpClient == nil || dhcpClient.State() == dhcp.StateLeased || dhcpClient.State() == dhcp.StateRenew
		if ready && !queried {
			if err := dnsClient.Query(*lookupHost, now); err != nil {
				logger.Printf("netstack-demo: dns query: %v", err)
			}
			queried = true
		}
		if err := dnsClient.Update(now); err != nil {
			logger.Printf("netstack-demo: dns update: %v", err)
		}
		if addr, ok := dnsClient.Get(*lookupHost, now); ok {
			logger.Printf("netstack-demo: %s -> %d.%d.%d.%d", *lookupHost, addr[0], addr[1], addr[2], addr[3])
		}

		if err := ntpClient.Update(now); err != nil {
			logger.Printf("netstack-demo: ntp update: %v", err)
		}
		if unixMs, ok := ntpClient.Now(); ok {
			logger.Printf("netstack-demo: ntp time = %d ms since epoch", unixMs)
		}

		ticks++
		time.Sleep(*tick)
	}

	var hexBuf [8]byte
	logger.Printf("netstack-demo: ran %s ticks (0x%s)", itoaTicks(ticks), string(conv.U32Hex(hexBuf[:], ticks)))
}

func itoaTicks(n uint32) string {
	var buf [20]byte
	return string(conv.Utoa(buf[:], uint64(n)))
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != 6 {
		return mac, &parseError{what: "mac", value: s}
	}
	copy(mac[:], hw)
	return mac, nil
}

func parseIPv4(s string) ([4]byte, error) {
	var ip [4]byte
	parsed := net.ParseIP(s)
	v4 := parsed.To4()
	if v4 == nil {
		return ip, &parseError{what: "ipv4", value: s}
	}
	copy(ip[:], v4)
	return ip, nil
}

type parseError struct {
	what  string
	value string
}

func (e *parseError) Error() string { return "invalid " + e.what + ": " + e.value }
