package beacon

import (
	"net"
	"testing"
)

func TestFirstIPv4(t *testing.T) {
	cidr := func(s string) net.Addr {
		ip, n, err := net.ParseCIDR(s)
		if err != nil {
			t.Fatal(err)
		}
		n.IP = ip
		return n
	}

	tests := []struct {
		name  string
		addrs []net.Addr
		want  string
	}{
		{"ipv4 after ipv6", []net.Addr{cidr("fe80::1/64"), cidr("10.0.0.7/24")}, "10.0.0.7"},
		{"skips link-local", []net.Addr{cidr("169.254.3.4/16"), cidr("192.168.1.20/24")}, "192.168.1.20"},
		{"ip addr", []net.Addr{&net.IPAddr{IP: net.ParseIP("172.16.0.9")}}, "172.16.0.9"},
		{"ipv6 only", []net.Addr{cidr("2001:db8::5/64")}, ""},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := firstIPv4(tt.addrs)
			if tt.want == "" {
				if got != nil {
					t.Errorf("firstIPv4() = %v, want nil", got)
				}
				return
			}
			if got.String() != tt.want {
				t.Errorf("firstIPv4() = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestSourceIPIsNeverWildcard(t *testing.T) {
	group := &net.UDPAddr{IP: net.IPv4(239, 255, 42, 99), Port: 5007}
	if ip := sourceIP(nil, group); ip != nil && ip.IsUnspecified() {
		t.Errorf("sourceIP() = %v", ip)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		t.Skip(err)
	}
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagLoopback == 0 {
			continue
		}
		ip := sourceIP(&ifaces[i], group)
		if ip == nil {
			continue
		}
		if !ip.IsLoopback() {
			t.Errorf("sourceIP(%s) = %v, want a loopback address", ifaces[i].Name, ip)
		}
		return
	}
	t.Skip("no IPv4 loopback interface")
}
