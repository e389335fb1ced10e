package netpolicy

import "net"

// isNonPublicIP reports whether ip falls in a range that must never be
// reachable through the forward proxy absent an explicit allow entry:
// loopback, RFC1918 private space, link-local, CGNAT, the TEST-NET and
// benchmarking ranges, multicast, unique-local IPv6, and IPv4-mapped IPv6
// addresses covering any of the above.
func isNonPublicIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		return isNonPublicIPv4(v4)
	}
	return isNonPublicIPv6(ip)
}

func isNonPublicIPv4(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast() ||
		isBroadcast(ip) ||
		inCIDR(ip, "0.0.0.0/8") || // current network, RFC1122
		inCIDR(ip, "100.64.0.0/10") || // CGNAT, RFC6598
		inCIDR(ip, "192.0.0.0/24") || // IETF protocol assignments, RFC6890
		inCIDR(ip, "192.0.2.0/24") || // TEST-NET-1, RFC5737
		inCIDR(ip, "198.18.0.0/15") || // benchmarking, RFC2544
		inCIDR(ip, "198.51.100.0/24") || // TEST-NET-2, RFC5737
		inCIDR(ip, "203.0.113.0/24") || // TEST-NET-3, RFC5737
		inCIDR(ip, "240.0.0.0/4") // reserved, RFC6890
}

func isNonPublicIPv6(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		return isNonPublicIPv4(v4) || ip.IsLoopback()
	}
	return ip.IsLoopback() ||
		ip.IsUnspecified() ||
		ip.IsMulticast() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		isUniqueLocalIPv6(ip)
}

func isBroadcast(ip net.IP) bool {
	_, cidr, _ := net.ParseCIDR("255.255.255.255/32")
	return cidr.Contains(ip)
}

// isUniqueLocalIPv6 reports membership in fc00::/7 (RFC4193).
func isUniqueLocalIPv6(ip net.IP) bool {
	return inCIDR(ip, "fc00::/7")
}

func inCIDR(ip net.IP, cidr string) bool {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	return network.Contains(ip)
}

// parseIP parses an unbracketed host literal as an IP address, returning
// nil if host is not an IP literal (e.g. it is a DNS name).
func parseIP(host string) net.IP {
	return net.ParseIP(host)
}
