// Package models defines the normalized records shared by the SIEM engine
// and the threat-intelligence orchestrator.
package models

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Severity of a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category of a security event.
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryAuthentication Category = "authentication"
	CategoryMalware        Category = "malware"
	CategoryIntrusion      Category = "intrusion"
	CategoryReconnaissance Category = "reconnaissance"
	CategoryDenialOfSvc    Category = "denial_of_service"
	CategoryAttack         Category = "attack"
	CategoryBlock          Category = "block"
	CategoryReputation     Category = "reputation"
	CategoryGeographic     Category = "geographic"
	CategoryASN            Category = "asn"
	CategoryOrganization   Category = "organization"
	CategoryPort           Category = "port"
	CategoryProtocol       Category = "protocol"
	CategoryOther          Category = "other"
)

// SecurityEvent is a normalized record parsed from one SIEM document.
// Instances are immutable after parse.
type SecurityEvent struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	SourceIP        string         `json:"source_ip,omitempty"`
	DestinationIP   string         `json:"destination_ip,omitempty"`
	SourcePort      *int           `json:"source_port,omitempty"`
	DestinationPort *int           `json:"destination_port,omitempty"`
	Protocol        string         `json:"protocol,omitempty"`
	EventType       string         `json:"event_type"`
	Severity        Severity       `json:"severity"`
	Category        Category       `json:"category"`
	Description     string         `json:"description,omitempty"`
	Country         string         `json:"country,omitempty"`
	ASN             string         `json:"asn,omitempty"`
	Organization    string         `json:"organization,omitempty"`
	ReputationScore *float64       `json:"reputation_score,omitempty"`
	AttackCount     int            `json:"attack_count,omitempty"`
	FirstSeen       *time.Time     `json:"first_seen,omitempty"`
	LastSeen        *time.Time     `json:"last_seen,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	AttackTypes     []string       `json:"attack_types,omitempty"`
	RawDocument     map[string]any `json:"raw_document,omitempty"`
	Indices         []string       `json:"indices,omitempty"`
}

// Validate enforces the model invariants: IPs parse, ports lie in
// [1, 65535], reputation lies in [0, 100].
func (e *SecurityEvent) Validate() error {
	if e.SourceIP != "" {
		if _, err := netip.ParseAddr(e.SourceIP); err != nil {
			return fmt.Errorf("invalid source IP %q: %w", e.SourceIP, err)
		}
	}
	if e.DestinationIP != "" {
		if _, err := netip.ParseAddr(e.DestinationIP); err != nil {
			return fmt.Errorf("invalid destination IP %q: %w", e.DestinationIP, err)
		}
	}
	if err := validatePort("source_port", e.SourcePort); err != nil {
		return err
	}
	if err := validatePort("destination_port", e.DestinationPort); err != nil {
		return err
	}
	if e.ReputationScore != nil && (*e.ReputationScore < 0 || *e.ReputationScore > 100) {
		return fmt.Errorf("reputation score %v out of range [0,100]", *e.ReputationScore)
	}
	return nil
}

func validatePort(field string, port *int) error {
	if port == nil {
		return nil
	}
	if *port < 1 || *port > 65535 {
		return fmt.Errorf("%s %d out of range [1,65535]", field, *port)
	}
	return nil
}

// ValidIP reports whether s parses as an IPv4 or IPv6 address.
func ValidIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// ValidDomain applies the orchestrator's minimal domain check: non-empty,
// contains a dot, no spaces.
func ValidDomain(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && strings.Contains(s, ".") && !strings.ContainsAny(s, " \t")
}
