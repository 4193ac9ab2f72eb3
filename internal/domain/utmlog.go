package domain

// UTMLogColumns is the fixed twenty-column schema UTM log records are
// projected onto before being written to the analytical store.
var UTMLogColumns = [20]string{
	"action", "date", "dstcountry", "dstip", "dstport",
	"eventtype", "ipaddr", "msg", "srccountry", "srcip",
	"utmtype", "time", "user", "category", "hostname",
	"service", "url", "httpagent", "level", "threat",
}

// UTMLogRecord is one normalised UTM syslog record, column order matching
// UTMLogColumns.
type UTMLogRecord struct {
	Action     string
	Date       string
	DstCountry string
	DstIP      string
	DstPort    string
	EventType  string
	IPAddr     string
	Msg        string
	SrcCountry string
	SrcIP      string
	UTMType    string
	Time       string
	User       string
	Category   string
	Hostname   string
	Service    string
	URL        string
	HTTPAgent  string
	Level      string
	Threat     string
}

// Values returns the record's fields in UTMLogColumns order.
func (r UTMLogRecord) Values() [20]string {
	return [20]string{
		r.Action, r.Date, r.DstCountry, r.DstIP, r.DstPort,
		r.EventType, r.IPAddr, r.Msg, r.SrcCountry, r.SrcIP,
		r.UTMType, r.Time, r.User, r.Category, r.Hostname,
		r.Service, r.URL, r.HTTPAgent, r.Level, r.Threat,
	}
}

// NormalizeUTMLog applies the field-merge and rename rules to a raw
// decoded syslog object and projects it onto the fixed 20-column schema.
// raw values are read as strings; a field absent from raw yields "".
func NormalizeUTMLog(raw map[string]interface{}) UTMLogRecord {
	get := func(key string) string {
		v, ok := raw[key]
		if !ok || v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return ""
	}

	hostname := get("hostname")
	if hostname == "" {
		hostname = get("qname")
	}

	threat := get("virus")
	if threat == "" {
		threat = get("attack")
	}
	if threat == "" {
		threat = get("threat")
	}

	utmtype := get("subtype")
	if utmtype == "" {
		utmtype = get("utmtype")
	}
	category := get("catdesc")
	if category == "" {
		category = get("category")
	}
	httpagent := get("agent")
	if httpagent == "" {
		httpagent = get("httpagent")
	}
	level := get("crlevel")
	if level == "" {
		level = get("level")
	}

	return UTMLogRecord{
		Action:     get("action"),
		Date:       get("date"),
		DstCountry: get("dstcountry"),
		DstIP:      get("dstip"),
		DstPort:    get("dstport"),
		EventType:  get("eventtype"),
		IPAddr:     get("ipaddr"),
		Msg:        get("msg"),
		SrcCountry: get("srccountry"),
		SrcIP:      get("srcip"),
		UTMType:    utmtype,
		Time:       get("time"),
		User:       get("user"),
		Category:   category,
		Hostname:   hostname,
		Service:    get("service"),
		URL:        get("url"),
		HTTPAgent:  httpagent,
		Level:      level,
		Threat:     threat,
	}
}

// IsUTMType reports whether the decoded syslog object's "type" field
// case-insensitively equals "utm".
func IsUTMType(raw map[string]interface{}) bool {
	v, ok := raw["type"]
	if !ok || v == nil {
		return false
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	return equalFoldASCII(s, "utm")
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
