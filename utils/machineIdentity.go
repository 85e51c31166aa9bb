package utils

import (
	"encoding/hex"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

var (
	machineSuffix     string
	machineSuffixOnce sync.Once
)

// MachineSuffix is a stable 4 character upper-case hex tag for this host, used
// when an order is created without an operator.
func MachineSuffix() string {
	machineSuffixOnce.Do(func() {
		machineSuffix = HashSuffix(machineFingerprint())
	})
	return machineSuffix
}

// HashSuffix hashes seed and keeps the first 4 hex characters, upper-cased.
func HashSuffix(seed string) string {
	sum := blake2b.Sum256([]byte(seed))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:4])
}

func machineFingerprint() string {
	if v := strings.TrimSpace(os.Getenv("MACHINE_ID")); v != "" {
		return v
	}
	parts := []string{runtime.GOOS}
	if host, err := os.Hostname(); err == nil {
		parts = append(parts, host)
	}
	if b, err := os.ReadFile("/etc/machine-id"); err == nil {
		parts = append(parts, strings.TrimSpace(string(b)))
	}
	if ifaces, err := net.Interfaces(); err == nil {
		for _, iface := range ifaces {
			if len(iface.HardwareAddr) > 0 && iface.Flags&net.FlagLoopback == 0 {
				parts = append(parts, iface.HardwareAddr.String())
				break
			}
		}
	}
	return strings.Join(parts, "|")
}
