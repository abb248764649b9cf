package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/dittosync/cvsync/pkg/acl"
	"github.com/dittosync/cvsync/pkg/refuse"
)

// LoadRefusePatterns reads cfg.RefuseSource, one pattern per line, blank
// lines and lines starting with '#' ignored, and compiles it into a
// refuse.List. An empty RefuseSource yields a List that refuses nothing.
func LoadRefusePatterns(cfg *Config) (*refuse.List, error) {
	if cfg.RefuseSource == "" {
		return refuse.New(nil)
	}

	lines, err := readLines(cfg.RefuseSource)
	if err != nil {
		return nil, fmt.Errorf("cvsync: reading refuse source %q: %w", cfg.RefuseSource, err)
	}
	return refuse.New(lines)
}

// LoadACLRules reads cfg.ACLSource, one rule per line in the form
// "status target[,max]" (status is allow/deny/always; target is an
// address[/prefix_len] or a hostname glob), and builds the []acl.Rule
// list consumed by acl.NewEvaluator. An empty ACLSource yields an empty
// rule list; per acl.Evaluator's default-deny posture, an operator who
// wants to accept all connections must configure an explicit "always"
// rule (e.g. "always 0.0.0.0/0").
func LoadACLRules(cfg *Config) ([]acl.Rule, error) {
	if cfg.ACLSource == "" {
		return nil, nil
	}

	lines, err := readLines(cfg.ACLSource)
	if err != nil {
		return nil, fmt.Errorf("cvsync: reading ACL source %q: %w", cfg.ACLSource, err)
	}

	rules := make([]acl.Rule, 0, len(lines))
	for _, line := range lines {
		rule, err := parseACLLine(line)
		if err != nil {
			return nil, fmt.Errorf("cvsync: ACL source %q: %w", cfg.ACLSource, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseACLLine(line string) (acl.Rule, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return acl.Rule{}, fmt.Errorf("malformed rule %q: want \"status target[,max]\"", line)
	}

	var status acl.Status
	switch strings.ToLower(fields[0]) {
	case "allow":
		status = acl.Allow
	case "deny":
		status = acl.Deny
	case "always":
		status = acl.Always
	default:
		return acl.Rule{}, fmt.Errorf("unknown status %q", fields[0])
	}

	target, maxStr, hasMax := strings.Cut(fields[1], ",")
	rule := acl.Rule{Status: status}

	if hasMax {
		max, err := strconv.Atoi(maxStr)
		if err != nil {
			return acl.Rule{}, fmt.Errorf("invalid max %q: %w", maxStr, err)
		}
		rule.Max = max
	}

	if _, ipnet, err := net.ParseCIDR(target); err == nil {
		rule.Network = ipnet
	} else if ip := net.ParseIP(target); ip != nil {
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		rule.Network = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
	} else {
		rule.HostnamePattern = target
	}

	return rule, nil
}

// readLines reads path and returns its non-blank, non-comment lines.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
