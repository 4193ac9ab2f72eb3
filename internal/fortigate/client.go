// Package fortigate implements the typed request builders and HTTP client
// for the seven FortiGate object/policy operations the reconciler drives.
// The gateway carries no state of its own: every call is parameterised by
// the target device address, and a failed call returns a nil result rather
// than an error, leaving it to the reconciler to decide what that means.
package fortigate

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client talks to one or more FortiGate devices over HTTPS. TLS verification
// is disabled; peer trust is topological, not certificate-based, in this
// deployment.
type Client struct {
	httpClient *http.Client
	apiToken   string
	logger     zerolog.Logger
}

// DefaultTemplate carries the deny-policy fields that are fixed across every
// subscriber: interfaces, destination address set, schedule and group.
// Passed to CreatePolicy as a value (rather than inlined in it), so a caller
// can supply a different template; cmd/controller always passes
// DefaultDenyTemplate, and no configuration setting changes it.
type DefaultTemplate struct {
	SrcIntf       string
	DstIntf       string
	DstAddrV4     []string
	DstAddrV6     []string
	Schedule      string
	Group         string
	SSLSSHProfile string
}

// DefaultDenyTemplate is the deny-template used when none is supplied.
var DefaultDenyTemplate = DefaultTemplate{
	SrcIntf:   "PPPoE_vlan",
	DstIntf:   "Core_vlan",
	DstAddrV4: []string{"ns4.belpak.by_ipv4", "ns3.belpak.by_ipv4"},
	DstAddrV6: []string{"ns3.belpak.by_ipv6", "ns4.belpak.by_ipv6"},
	Schedule:  "always",
	Group:     "class2",
}

// New creates a FortiGate client with the given bearer token and per-call
// timeout (3s default per the gateway's transport contract).
func New(apiToken string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		apiToken: apiToken,
		logger:   logger,
	}
}

func (c *Client) headers(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")
}

// request marshals payload (if any), issues method against url, and decodes
// a JSON object response. On any transport error or non-2xx status it logs
// and returns (nil, false); the caller never sees an error value, matching
// the gateway's "return null, never raise" contract.
func (c *Client) request(ctx context.Context, method, url string, payload interface{}) (map[string]interface{}, bool) {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			c.logger.Error().Err(err).Str("url", url).Msg("fortigate: marshal request failed")
			return nil, false
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		c.logger.Error().Err(err).Str("url", url).Msg("fortigate: build request failed")
		return nil, false
	}
	c.headers(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", url).Str("method", method).Msg("fortigate: request failed")
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error().Int("status", resp.StatusCode).Str("url", url).Str("method", method).Msg("fortigate: non-2xx response")
		return nil, false
	}

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// Some operations (move) return a non-object or empty body on
		// success; treat decode failure as success-with-no-data.
		return map[string]interface{}{}, true
	}
	return out, true
}

func mkey(resp map[string]interface{}) *int64 {
	if resp == nil {
		return nil
	}
	v, ok := resp["mkey"]
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		i := int64(n)
		return &i
	case string:
		var i int64
		if _, err := fmt.Sscanf(n, "%d", &i); err == nil {
			return &i
		}
	}
	return nil
}

// CreateIP creates a firewall address object named login, its subnet a
// single /32 host route.
func (c *Client) CreateIP(ctx context.Context, fgAddr, login, ipv4 string) bool {
	if ipv4 == "" {
		return true
	}
	url := fmt.Sprintf("https://%s/api/v2/cmdb/firewall/address", fgAddr)
	payload := map[string]string{"name": login, "subnet": ipv4 + " 255.255.255.255"}
	_, ok := c.request(ctx, http.MethodPost, url, payload)
	return ok
}

// CreateIPv6 creates a firewall address6 object named login+"v6".
func (c *Client) CreateIPv6(ctx context.Context, fgAddr, login, ipv6 string) bool {
	if ipv6 == "" {
		return true
	}
	url := fmt.Sprintf("https://%s/api/v2/cmdb/firewall/address6", fgAddr)
	payload := map[string]string{"name": login + "v6", "ip6": ipv6}
	_, ok := c.request(ctx, http.MethodPost, url, payload)
	return ok
}

// CreateService creates a firewall.service/custom object named name, whose
// port ranges are the INVERTED tcp/udp pair computed by the port matrix.
func (c *Client) CreateService(ctx context.Context, fgAddr, name, tcpPortRange, udpPortRange string) bool {
	url := fmt.Sprintf("https://%s/api/v2/cmdb/firewall.service/custom", fgAddr)
	payload := map[string]string{
		"name":          name,
		"tcp-portrange": tcpPortRange,
		"udp-portrange": udpPortRange,
	}
	_, ok := c.request(ctx, http.MethodPost, url, payload)
	return ok
}

// CreatePolicyResult is the outcome of CreatePolicy.
type CreatePolicyResult struct {
	MKey int64
	OK   bool
}

// CreatePolicy creates a firewall/policy object with the fixed deny-template
// and returns the assigned mkey.
func (c *Client) CreatePolicy(ctx context.Context, fgAddr, name, username string, tmpl DefaultTemplate) CreatePolicyResult {
	url := fmt.Sprintf("https://%s/api/v2/cmdb/firewall/policy?datasource=true&with_meta=true&vdom=transparent", fgAddr)

	named := func(names []string) []map[string]string {
		out := make([]map[string]string, len(names))
		for i, n := range names {
			out[i] = map[string]string{"name": n}
		}
		return out
	}

	payload := map[string]interface{}{
		"name":             name,
		"srcintf":          named([]string{tmpl.SrcIntf}),
		"dstintf":          named([]string{tmpl.DstIntf}),
		"srcaddr":          named([]string{username}),
		"dstaddr":          named(tmpl.DstAddrV4),
		"srcaddr6":         named([]string{username + "v6"}),
		"dstaddr6":         named(tmpl.DstAddrV6),
		"schedule":         tmpl.Schedule,
		"service":          named([]string{name}),
		"ssl-ssh-profile":  tmpl.SSLSSHProfile,
		"logtraffic":       "disable",
		"groups":           named([]string{tmpl.Group}),
		"dstaddr-negate":   "enable",
		"dstaddr6-negate":  "enable",
	}

	resp, ok := c.request(ctx, http.MethodPost, url, payload)
	if !ok {
		return CreatePolicyResult{OK: false}
	}
	m := mkey(resp)
	if m == nil {
		return CreatePolicyResult{OK: false}
	}
	return CreatePolicyResult{MKey: *m, OK: true}
}

// MovePolicyToTop moves a policy object to the top of the rule list.
func (c *Client) MovePolicyToTop(ctx context.Context, fgAddr string, policyID int64) bool {
	url := fmt.Sprintf("https://%s/api/v2/cmdb/firewall/policy/%d?action=move&before=1", fgAddr, policyID)
	_, ok := c.request(ctx, http.MethodPut, url, nil)
	return ok
}

// GetPolicy fetches the full policy object. Returns (nil, false) if the
// policy does not exist or the call failed.
func (c *Client) GetPolicy(ctx context.Context, fgAddr string, policyID int64) (map[string]interface{}, bool) {
	url := fmt.Sprintf("https://%s/api/v2/cmdb/firewall/policy/%d", fgAddr, policyID)
	return c.request(ctx, http.MethodGet, url, nil)
}

// EditAction enumerates edit_policy's three modes.
type EditAction string

const (
	EditAdd    EditAction = "add"
	EditRename EditAction = "rename"
	EditRemove EditAction = "remove"
)

// EditPolicy performs a read-modify-write on a policy object: GET the
// current object, mutate its srcaddr/srcaddr6 member list (add/remove) or
// its name (rename), then re-POST (add/rename) or PUT (remove). member is
// the subscriber login being added or removed; newName is used only for
// rename. ok is false if the policy could not be fetched or the write
// failed; mkey is only ever non-nil on a successful add/rename.
func (c *Client) EditPolicy(ctx context.Context, fgAddr string, policyID int64, action EditAction, member, newName string) (m *int64, ok bool) {
	policy, found := c.GetPolicy(ctx, fgAddr, policyID)
	if !found || policy == nil {
		c.logger.Error().Int64("policy_id", policyID).Str("fg", fgAddr).Msg("fortigate: edit_policy target not found")
		return nil, false
	}

	switch action {
	case EditAdd:
		mutateMemberList(policy, "srcaddr", member, true)
		mutateMemberList(policy, "srcaddr6", member+"v6", true)
	case EditRemove:
		mutateMemberList(policy, "srcaddr", member, false)
		mutateMemberList(policy, "srcaddr6", member+"v6", false)
	case EditRename:
		policy["name"] = newName
	}

	if action == EditRemove {
		url := fmt.Sprintf("https://%s/api/v2/cmdb/firewall/policy/%d", fgAddr, policyID)
		_, writeOK := c.request(ctx, http.MethodPut, url, policy)
		return nil, writeOK
	}

	url := fmt.Sprintf("https://%s/api/v2/cmdb/firewall/policy", fgAddr)
	resp, writeOK := c.request(ctx, http.MethodPost, url, policy)
	if !writeOK {
		return nil, false
	}
	return mkey(resp), true
}

// mutateMemberList adds or removes name from the named member-object list
// field of a decoded policy object ({"name": [...]} shaped entries).
func mutateMemberList(policy map[string]interface{}, field, name string, add bool) {
	raw, _ := policy[field].([]interface{})
	var out []interface{}
	found := false
	for _, item := range raw {
		entry, _ := item.(map[string]interface{})
		if entry != nil && entry["name"] == name {
			found = true
			if !add {
				continue // drop this member
			}
		}
		out = append(out, item)
	}
	if add && !found {
		out = append(out, map[string]interface{}{"name": name})
	}
	policy[field] = out
}

// DeleteIP deletes the address object named login.
func (c *Client) DeleteIP(ctx context.Context, fgAddr, login string) bool {
	url := fmt.Sprintf("https://%s/api/v2/cmdb/firewall/address/%s", fgAddr, login)
	_, ok := c.request(ctx, http.MethodDelete, url, nil)
	return ok
}

// DeleteIPv6 deletes the address6 object named login+"v6".
func (c *Client) DeleteIPv6(ctx context.Context, fgAddr, login string) bool {
	url := fmt.Sprintf("https://%s/api/v2/cmdb/firewall/address6/%sv6", fgAddr, login)
	_, ok := c.request(ctx, http.MethodDelete, url, nil)
	return ok
}

// DeleteService deletes the service.custom object named name.
func (c *Client) DeleteService(ctx context.Context, fgAddr, name string) bool {
	url := fmt.Sprintf("https://%s/api/v2/cmdb/firewall.service/custom/%s", fgAddr, name)
	_, ok := c.request(ctx, http.MethodDelete, url, nil)
	return ok
}

// DeletePolicy deletes the policy object identified by policyID.
func (c *Client) DeletePolicy(ctx context.Context, fgAddr string, policyID int64) bool {
	url := fmt.Sprintf("https://%s/api/v2/cmdb/firewall/policy/%d", fgAddr, policyID)
	_, ok := c.request(ctx, http.MethodDelete, url, nil)
	return ok
}
