// Package domain holds the relational entities the controller owns:
// subscriber firewall profiles, live RADIUS sessions, and the policy audit
// trail the reconciler appends to.
package domain

import "time"

// FirewallProfile is a subscriber's administratively configured firewall
// profile (the FW_Profiles table). login is the RADIUS User-Name and is
// unique; hash is recomputed on every write and is the dedup key that lets
// two profiles share one FortiGate service/policy pair.
type FirewallProfile struct {
	ID               int64
	Login            string
	Name             string
	TCPRules         string
	UDPRules         string
	FirewallProfile  string
	IPPool           string
	IPv6Pool         string
	RegionID         string
	PolicyID         *int64
	Hash             string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FirewallProfileFilter selects a page of FirewallProfile rows.
type FirewallProfileFilter struct {
	Login  string
	Limit  int
	Offset int
}

// FirewallProfilePage is one page of a FirewallProfile listing.
type FirewallProfilePage struct {
	Profiles []FirewallProfile
	Total    int64
	Limit    int
	Offset   int
	HasMore  bool
}

// RadiusSession is a live accounting session (the RADIUS_Sessions table).
// At most one row exists per UserName at any time.
type RadiusSession struct {
	UserName             string
	Timestamp            time.Time
	AcctStatusType       string
	FramedIPAddress      string
	DelegatedIPv6Prefix  string
	NASIPAddress         string
}

// PolicyLog is one audit row the reconciler appends per handled signal: the
// outcome on the device that succeeded, or on the last device tried.
type PolicyLog struct {
	ID         string
	User       string
	Timestamp  time.Time
	PolicyID   *int64
	Result     string
	HTTPStatus int
	FGAddress  string
}
