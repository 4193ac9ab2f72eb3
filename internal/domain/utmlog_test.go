package domain

import "testing"

func TestNormalizeUTMLogPrefersPrimaryFieldOverFallback(t *testing.T) {
	raw := map[string]interface{}{
		"hostname": "primary.example.com",
		"qname":    "fallback.example.com",
		"subtype":  "virus",
		"utmtype":  "webfilter",
	}
	got := NormalizeUTMLog(raw)
	if got.Hostname != "primary.example.com" {
		t.Errorf("Hostname = %q, want primary field value", got.Hostname)
	}
	if got.UTMType != "virus" {
		t.Errorf("UTMType = %q, want primary field value", got.UTMType)
	}
}

func TestNormalizeUTMLogFallsBackWhenPrimaryAbsent(t *testing.T) {
	raw := map[string]interface{}{
		"qname":   "fallback.example.com",
		"utmtype": "webfilter",
		"attack":  "portscan",
	}
	got := NormalizeUTMLog(raw)
	if got.Hostname != "fallback.example.com" {
		t.Errorf("Hostname = %q, want fallback field value", got.Hostname)
	}
	if got.UTMType != "webfilter" {
		t.Errorf("UTMType = %q, want fallback field value", got.UTMType)
	}
	if got.Threat != "portscan" {
		t.Errorf("Threat = %q, want attack field value", got.Threat)
	}
}

func TestNormalizeUTMLogMissingFieldsAreEmpty(t *testing.T) {
	got := NormalizeUTMLog(map[string]interface{}{})
	for i, v := range got.Values() {
		if v != "" {
			t.Fatalf("field %d (%s) = %q, want empty string for missing input", i, UTMLogColumns[i], v)
		}
	}
}

func TestNormalizeUTMLogIgnoresNonStringValues(t *testing.T) {
	raw := map[string]interface{}{"dstport": 443, "action": "blocked"}
	got := NormalizeUTMLog(raw)
	if got.DstPort != "" {
		t.Errorf("DstPort = %q, want empty string for non-string raw value", got.DstPort)
	}
	if got.Action != "blocked" {
		t.Errorf("Action = %q, want blocked", got.Action)
	}
}

func TestIsUTMType(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]interface{}
		want bool
	}{
		{"exact lowercase match", map[string]interface{}{"type": "utm"}, true},
		{"case-insensitive match", map[string]interface{}{"type": "UTM"}, true},
		{"mixed case match", map[string]interface{}{"type": "Utm"}, true},
		{"different type", map[string]interface{}{"type": "traffic"}, false},
		{"missing field", map[string]interface{}{}, false},
		{"nil value", map[string]interface{}{"type": nil}, false},
		{"non-string value", map[string]interface{}{"type": 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUTMType(tc.raw); got != tc.want {
				t.Errorf("IsUTMType(%v) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestValuesMatchesColumnOrder(t *testing.T) {
	r := UTMLogRecord{
		Action: "a", Date: "b", DstCountry: "c", DstIP: "d", DstPort: "e",
		EventType: "f", IPAddr: "g", Msg: "h", SrcCountry: "i", SrcIP: "j",
		UTMType: "k", Time: "l", User: "m", Category: "n", Hostname: "o",
		Service: "p", URL: "q", HTTPAgent: "r", Level: "s", Threat: "t",
	}
	want := [20]string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n", "o", "p", "q", "r", "s", "t"}
	if got := r.Values(); got != want {
		t.Fatalf("Values() = %v, want %v", got, want)
	}
}
