package web

import (
	"fmt"
	"net"
	"strconv"

	qrcode "github.com/skip2/go-qrcode"
)

// ConnectionQR renders url as a QR code made of Unicode half blocks, for
// printing to a terminal so a phone can open the UI.
func ConnectionQR(url string) (string, error) {
	q, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encoding QR code: %w", err)
	}
	return q.ToSmallString(false), nil
}

// LocalIPs returns the non-loopback IPv4 addresses of this machine.
func LocalIPs() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []string
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			ips = append(ips, v4.String())
		}
	}
	return ips
}

// LANURLs returns one UI address per local IPv4 address. It is empty when
// the server is bound to loopback only.
func (s *Server) LANURLs() []string {
	switch s.prefs.BindAddress {
	case "", "0.0.0.0", "::":
	default:
		return nil
	}
	port := strconv.Itoa(s.Port())
	var urls []string
	for _, ip := range LocalIPs() {
		urls = append(urls, "http://"+net.JoinHostPort(ip, port))
	}
	return urls
}
