// Package radius implements the RFC 2866 accounting wire format the
// observer (C6) needs: enough of a packet codec to parse an
// Accounting-Request, synthesise its Accounting-Response, and pull the six
// attributes the admission router cares about. It is not a general RADIUS
// library, only the subset the controller's contract requires.
package radius

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
)

// Accounting packet codes (RFC 2866).
const (
	CodeAccountingRequest  byte = 4
	CodeAccountingResponse byte = 5
)

// Attribute codes the observer extracts. Acct-Status-Type (40) is extracted
// alongside User-Name, Class, Framed-IP-Address, Delegated-IPv6-Prefix and
// NAS-IP-Address so the admission router can branch on start/stop.
const (
	AttrUserName            byte = 1
	AttrNASIPAddress        byte = 4
	AttrFramedIPAddress     byte = 8
	AttrClass                byte = 25
	AttrAcctStatusType      byte = 40
	AttrDelegatedIPv6Prefix byte = 123
)

// Acct-Status-Type values (RFC 2866) the admission router cares about.
const (
	AcctStatusTypeStart uint32 = 1
	AcctStatusTypeStop  uint32 = 2
)

const headerLen = 20 // code(1) + id(1) + length(2) + authenticator(16)

// ErrMalformedPacket is returned when a datagram is too short or carries an
// inconsistent length field to be a RADIUS packet.
var ErrMalformedPacket = errors.New("radius: malformed packet")

// Packet is a parsed RADIUS packet: header fields plus the raw attribute
// TLV region, kept both as a byte slice (for response-building, which must
// echo it verbatim) and decoded into a code→value map.
type Packet struct {
	Code          byte
	ID            byte
	Length        uint16
	Authenticator [16]byte
	AttrBytes     []byte
	Raw           []byte
	Attrs         map[byte][]byte
}

// Parse decodes a raw UDP datagram into a Packet. It does not validate the
// Request-Authenticator; the shared secret is assumed correct.
func Parse(data []byte) (*Packet, error) {
	if len(data) < headerLen {
		return nil, ErrMalformedPacket
	}
	length := binary.BigEndian.Uint16(data[2:4])
	if int(length) > len(data) || length < headerLen {
		return nil, ErrMalformedPacket
	}

	p := &Packet{
		Code:   data[0],
		ID:     data[1],
		Length: length,
		Raw:    data[:length],
		Attrs:  make(map[byte][]byte),
	}
	copy(p.Authenticator[:], data[4:20])
	p.AttrBytes = data[headerLen:length]

	attrs := p.AttrBytes
	for len(attrs) >= 2 {
		attrType := attrs[0]
		attrLen := int(attrs[1])
		if attrLen < 2 || attrLen > len(attrs) {
			return nil, ErrMalformedPacket
		}
		p.Attrs[attrType] = attrs[2:attrLen]
		attrs = attrs[attrLen:]
	}
	return p, nil
}

// Attributes is the subset of fields the admission layer consumes,
// extracted by numeric code.
type Attributes struct {
	UserName            string
	Class               string
	AcctStatusType      uint32
	FramedIPAddress     string
	DelegatedIPv6Prefix string
	NASIPAddress        string
}

// ExtractAttributes pulls User-Name, Class, Acct-Status-Type,
// Framed-IP-Address, Delegated-IPv6-Prefix and NAS-IP-Address off a parsed
// Accounting-Request.
func ExtractAttributes(p *Packet) Attributes {
	return Attributes{
		UserName:            string(p.Attrs[AttrUserName]),
		Class:               string(p.Attrs[AttrClass]),
		AcctStatusType:      formatUint32(p.Attrs[AttrAcctStatusType]),
		FramedIPAddress:     formatIPv4(p.Attrs[AttrFramedIPAddress]),
		DelegatedIPv6Prefix: formatIPv6Prefix(p.Attrs[AttrDelegatedIPv6Prefix]),
		NASIPAddress:        formatIPv4(p.Attrs[AttrNASIPAddress]),
	}
}

func formatUint32(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func formatIPv4(b []byte) string {
	if len(b) != 4 {
		return ""
	}
	return itoa(int(b[0])) + "." + itoa(int(b[1])) + "." + itoa(int(b[2])) + "." + itoa(int(b[3]))
}

// formatIPv6Prefix renders a Delegated-IPv6-Prefix value (RFC 3162: 1 byte
// reserved, 1 byte prefix length, up to 16 bytes of prefix) as a CIDR
// string. Trailing zero bytes are omitted by the NAS per the RFC's
// variable-length encoding, so the prefix portion is padded out to 16 bytes
// before formatting.
func formatIPv6Prefix(b []byte) string {
	if len(b) < 2 {
		return ""
	}
	prefixLen := int(b[1])
	addr := make([]byte, 16)
	copy(addr, b[2:])

	parts := make([]string, 8)
	for i := 0; i < 8; i++ {
		parts[i] = hex4(addr[i*2], addr[i*2+1])
	}
	out := parts[0]
	for i := 1; i < 8; i++ {
		out += ":" + parts[i]
	}
	return out + "/" + itoa(prefixLen)
}

func hex4(hi, lo byte) string {
	const digits = "0123456789abcdef"
	b := [4]byte{
		digits[hi>>4], digits[hi&0xf],
		digits[lo>>4], digits[lo&0xf],
	}
	return string(b[:])
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [3]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// BuildResponse synthesises an Accounting-Response that echoes the
// request's id, length and attributes, then sets the authenticator to
// MD5(code || id || length || request-authenticator || attributes ||
// shared-secret).
func BuildResponse(req *Packet, sharedSecret []byte) []byte {
	resp := make([]byte, len(req.Raw))
	copy(resp, req.Raw)
	resp[0] = CodeAccountingResponse
	// id and length are already correct via the copy; authenticator bytes
	// are overwritten below, first with the request's own authenticator
	// (the digest input), then with the computed response authenticator.
	copy(resp[4:20], req.Authenticator[:])

	h := md5.New()
	h.Write(resp)
	h.Write(sharedSecret)
	sum := h.Sum(nil)
	copy(resp[4:20], sum)
	return resp
}
