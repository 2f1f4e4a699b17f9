// pkg/netutil/netutil.go
// Package netutil handles target validation, subnet splitting and the small
// filesystem helpers shared by the scan pipeline.
package netutil

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net/netip"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var targetPattern = regexp.MustCompile(`^([0-9]{1,3}\.){3}[0-9]{1,3}(/([0-9]|[1-2][0-9]|3[0-2]))?$`)

// IsValidTarget reports whether target is an IPv4 address or CIDR subnet.
// Octets must be in range with no leading zeros ("010.0.0.1" is rejected).
func IsValidTarget(target string) bool {
	if !targetPattern.MatchString(target) {
		return false
	}
	ipPart, _, _ := strings.Cut(target, "/")
	for _, octet := range strings.Split(ipPart, ".") {
		if len(octet) > 1 && octet[0] == '0' {
			return false
		}
		// Pattern guarantees 1-3 digits; only the 255 bound is left to check.
		if v, err := strconv.Atoi(octet); err != nil || v > 255 {
			return false
		}
	}
	return true
}

// SanitizeTargetName turns a target into a safe directory name: '.' becomes
// '_', '/' becomes '-', anything else outside [a-zA-Z0-9_-] becomes '_'.
func SanitizeTargetName(target string) string {
	var b strings.Builder
	for _, c := range target {
		switch {
		case c == '.':
			b.WriteByte('_')
		case c == '/':
			b.WriteByte('-')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SplitInto24s splits a network larger than /24 into its /24 subnets; a /24
// or smaller target (including a bare address) is returned unchanged as a
// single-element slice. Unparsable targets yield nil.
func SplitInto24s(target string) []string {
	if !strings.Contains(target, "/") {
		if _, err := netip.ParseAddr(target); err != nil {
			return nil
		}
		return []string{target}
	}

	prefix, err := netip.ParsePrefix(target)
	if err != nil {
		return nil
	}
	prefix = prefix.Masked()

	if prefix.Bits() >= 24 {
		return []string{prefix.String()}
	}

	count := 1 << (24 - prefix.Bits())
	base := binary.BigEndian.Uint32(prefix.Addr().AsSlice())
	subnets := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var addr [4]byte
		binary.BigEndian.PutUint32(addr[:], base+uint32(i)<<8)
		subnets = append(subnets, netip.PrefixFrom(netip.AddrFrom4(addr), 24).String())
	}
	return subnets
}

// LoadTargets reads one target per line from path, skipping blank lines and
// '#' comments.
func LoadTargets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return targets, nil
}

// ExpandTargets validates every raw target and, unless split is disabled,
// breaks networks larger than /24 into /24 chunks. Invalid targets are
// dropped and reported in the returned skipped list.
func ExpandTargets(raw []string, split bool) (targets, skipped []string) {
	for _, t := range raw {
		if !IsValidTarget(t) {
			skipped = append(skipped, t)
			continue
		}
		if !split {
			targets = append(targets, t)
			continue
		}
		subnets := SplitInto24s(t)
		if len(subnets) == 0 {
			skipped = append(skipped, t)
			continue
		}
		targets = append(targets, subnets...)
	}
	return targets, skipped
}

// SaveLines writes items to path, one per line.
func SaveLines(items []string, path string) error {
	content := strings.Join(items, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
