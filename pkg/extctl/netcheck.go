// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package extctl

import (
	"fmt"
	"net"
)

// InterfaceAddrs lists the IPv4 addresses of one local network interface
type InterfaceAddrs struct {
	Name  string
	Addrs []string
}

// IPCheckResult is the outcome of LocalIPCheck
type IPCheckResult struct {
	Desired    string
	Found      bool
	Interfaces []InterfaceAddrs
}

// LocalIPCheck reports whether one of the local interfaces carries desired,
// the client IP configured in the controller project. The controller answers
// INCORRECT_CLIENT_IP (or nothing at all) when commands come from elsewhere.
// It only reports; the caller decides what to do.
func LocalIPCheck(desired string) (*IPCheckResult, error) {
	if net.ParseIP(desired) == nil {
		return nil, fmt.Errorf("invalid IP address %q", desired)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list network interfaces: %w", err)
	}

	result := &IPCheckResult{Desired: desired}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		entry := InterfaceAddrs{Name: iface.Name}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			ip := ipNet.IP.String()
			entry.Addrs = append(entry.Addrs, ip)
			if ip == desired {
				result.Found = true
			}
		}
		result.Interfaces = append(result.Interfaces, entry)
	}

	return result, nil
}
