package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// dangerousPorts are service ports a transcription endpoint has no business
// listening on. Accepting them would turn the worker into an SSRF vector.
var dangerousPorts = map[int]bool{
	22:    true, // ssh
	23:    true, // telnet
	25:    true, // smtp
	3306:  true, // mysql
	5432:  true, // postgres
	6379:  true, // redis
	9200:  true, // elasticsearch
	11211: true, // memcached
	27017: true, // mongodb
	50070: true, // hdfs
}

var localhostNames = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
	"0.0.0.0":   true,
}

// ValidateProviderURL enforces the safety rules for operator-configured
// provider endpoints: http(s) only, public non-localhost host, and no
// dangerous ports. Visitors running their own local recognizer never pass
// through this path; only the site-wide endpoint is validated.
func ValidateProviderURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https (got: %q)", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("url has no host")
	}

	port := 80
	if u.Scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid port %q", p)
		}
	}
	if dangerousPorts[port] {
		return fmt.Errorf("port %d is not allowed", port)
	}

	if localhostNames[strings.ToLower(host)] {
		return fmt.Errorf("localhost endpoints are not allowed")
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
			addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
			return fmt.Errorf("private or loopback addresses are not allowed")
		}
	}
	return nil
}
