package radius

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// attr encodes one RADIUS attribute TLV: type, length (including the two
// header bytes), value.
func attr(typ byte, value []byte) []byte {
	return append([]byte{typ, byte(len(value) + 2)}, value...)
}

func buildPacket(code byte, id byte, attrs ...[]byte) []byte {
	var body []byte
	for _, a := range attrs {
		body = append(body, a...)
	}
	length := headerLen + len(body)

	pkt := make([]byte, length)
	pkt[0] = code
	pkt[1] = id
	binary.BigEndian.PutUint16(pkt[2:4], uint16(length))
	// authenticator left zeroed
	copy(pkt[headerLen:], body)
	return pkt
}

func TestParseTooShortIsMalformed(t *testing.T) {
	if _, err := Parse([]byte{1, 2, 3}); err != ErrMalformedPacket {
		t.Fatalf("Parse() on short input = %v, want ErrMalformedPacket", err)
	}
}

func TestParseInconsistentLengthIsMalformed(t *testing.T) {
	data := make([]byte, headerLen)
	binary.BigEndian.PutUint16(data[2:4], 9999)
	if _, err := Parse(data); err != ErrMalformedPacket {
		t.Fatalf("Parse() with oversized length field = %v, want ErrMalformedPacket", err)
	}
}

func TestParseExtractsAttributes(t *testing.T) {
	data := buildPacket(CodeAccountingRequest, 42,
		attr(AttrUserName, []byte("jdoe")),
		attr(AttrClass, []byte("2")),
		attr(AttrAcctStatusType, []byte{0, 0, 0, 1}),
		attr(AttrFramedIPAddress, []byte{10, 0, 0, 1}),
		attr(AttrNASIPAddress, []byte{192, 168, 1, 1}),
	)

	p, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Code != CodeAccountingRequest || p.ID != 42 {
		t.Fatalf("Code/ID = %d/%d, want %d/%d", p.Code, p.ID, CodeAccountingRequest, 42)
	}

	attrs := ExtractAttributes(p)
	if attrs.UserName != "jdoe" {
		t.Errorf("UserName = %q, want jdoe", attrs.UserName)
	}
	if attrs.Class != "2" {
		t.Errorf("Class = %q, want 2", attrs.Class)
	}
	if attrs.AcctStatusType != AcctStatusTypeStart {
		t.Errorf("AcctStatusType = %d, want %d", attrs.AcctStatusType, AcctStatusTypeStart)
	}
	if attrs.FramedIPAddress != "10.0.0.1" {
		t.Errorf("FramedIPAddress = %q, want 10.0.0.1", attrs.FramedIPAddress)
	}
	if attrs.NASIPAddress != "192.168.1.1" {
		t.Errorf("NASIPAddress = %q, want 192.168.1.1", attrs.NASIPAddress)
	}
}

func TestExtractAttributesMissingFieldsAreZeroValue(t *testing.T) {
	data := buildPacket(CodeAccountingRequest, 1, attr(AttrUserName, []byte("jdoe")))
	p, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	attrs := ExtractAttributes(p)
	if attrs.Class != "" || attrs.FramedIPAddress != "" || attrs.NASIPAddress != "" {
		t.Fatalf("expected zero values for absent attributes, got %+v", attrs)
	}
	if attrs.AcctStatusType != 0 {
		t.Fatalf("AcctStatusType = %d, want 0 for absent attribute", attrs.AcctStatusType)
	}
}

func TestBuildResponseEchoesIDAndLength(t *testing.T) {
	req := buildPacket(CodeAccountingRequest, 7, attr(AttrUserName, []byte("jdoe")))
	p, err := Parse(req)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	resp := BuildResponse(p, []byte("shared-secret"))
	if resp[0] != CodeAccountingResponse {
		t.Fatalf("response code = %d, want %d", resp[0], CodeAccountingResponse)
	}
	if resp[1] != p.ID {
		t.Fatalf("response id = %d, want %d", resp[1], p.ID)
	}
	if !bytes.Equal(resp[2:4], req[2:4]) {
		t.Fatal("response length field should echo the request's")
	}
	if bytes.Equal(resp[4:20], make([]byte, 16)) {
		t.Fatal("response authenticator should not be all-zero")
	}
}

func TestExtractAttributesFormatsDelegatedIPv6Prefix(t *testing.T) {
	prefixValue := make([]byte, 2+16)
	prefixValue[0] = 0 // reserved
	prefixValue[1] = 64
	prefixValue[2] = 0x20
	prefixValue[3] = 0x01

	data := buildPacket(CodeAccountingRequest, 1, attr(AttrDelegatedIPv6Prefix, prefixValue))
	p, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	attrs := ExtractAttributes(p)
	want := "2001:0000:0000:0000:0000:0000:0000:0000/64"
	if attrs.DelegatedIPv6Prefix != want {
		t.Fatalf("DelegatedIPv6Prefix = %q, want %q", attrs.DelegatedIPv6Prefix, want)
	}
}

func TestBuildResponseDeterministicForSameInput(t *testing.T) {
	req := buildPacket(CodeAccountingRequest, 3, attr(AttrUserName, []byte("jdoe")))
	p, err := Parse(req)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a := BuildResponse(p, []byte("secret"))
	b := BuildResponse(p, []byte("secret"))
	if !bytes.Equal(a, b) {
		t.Fatal("BuildResponse should be deterministic for identical inputs")
	}
}
