package radius

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// EventHandler is invoked, in packet-arrival order, for every parsed
// Accounting-Request. It is the admission router's entry point (C7).
type EventHandler func(ctx context.Context, attrs Attributes)

// Observer is the UDP accounting sniffer (C6). It binds one socket, and for
// every Accounting-Request it receives: builds and sends back an
// Accounting-Response, forwards the raw request to the NAS-IP's FortiGate
// failover list (stopping at the first successful send), and queues the
// extracted attributes for the admission handler, processed by a single
// worker goroutine so handler invocations preserve receive order without
// blocking the socket read loop on downstream DB/HTTP latency.
type Observer struct {
	conn         *net.UDPConn
	sharedSecret []byte
	fgMap        map[string][]string
	defaultPort  int
	handler      EventHandler
	logger       zerolog.Logger

	events chan eventItem
}

type eventItem struct {
	ctx   context.Context
	attrs Attributes
}

// New binds listenAddr (":1813" by default) and constructs an Observer.
func New(listenAddr string, sharedSecret []byte, fgMap map[string][]string, defaultForwardPort int, handler EventHandler, logger zerolog.Logger) (*Observer, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Observer{
		conn:         conn,
		sharedSecret: sharedSecret,
		fgMap:        fgMap,
		defaultPort:  defaultForwardPort,
		handler:      handler,
		logger:       logger,
		events:       make(chan eventItem, 256),
	}, nil
}

// Run reads datagrams until ctx is cancelled or the socket is closed. It
// blocks; callers run it in its own goroutine.
func (o *Observer) Run(ctx context.Context) error {
	go o.drainEvents()

	go func() {
		<-ctx.Done()
		o.conn.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, src, err := o.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				close(o.events)
				return nil
			default:
				o.logger.Error().Err(err).Msg("radius: read error")
				continue
			}
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		o.handleDatagram(ctx, datagram, src)
	}
}

func (o *Observer) handleDatagram(ctx context.Context, data []byte, src *net.UDPAddr) {
	pkt, err := Parse(data)
	if err != nil {
		o.logger.Warn().Err(err).Str("src", src.String()).Msg("radius: dropping malformed packet")
		return
	}

	switch pkt.Code {
	case CodeAccountingRequest:
		resp := BuildResponse(pkt, o.sharedSecret)
		if _, err := o.conn.WriteToUDP(resp, src); err != nil {
			o.logger.Error().Err(err).Str("src", src.String()).Msg("radius: failed to send accounting-response")
		}

		attrs := ExtractAttributes(pkt)
		if ok := o.forwardToFortiGates(attrs.NASIPAddress, pkt.Raw); !ok {
			o.logger.Warn().Str("nas", attrs.NASIPAddress).Msg("radius: no fortigate accepted the forwarded request")
		}

		o.events <- eventItem{ctx: ctx, attrs: attrs}

	case CodeAccountingResponse:
		o.logger.Debug().Str("src", src.String()).Msg("radius: observed accounting-response on the wire")

	default:
		o.logger.Debug().Uint8("code", pkt.Code).Str("src", src.String()).Msg("radius: dropping unrecognised packet code")
	}
}

func (o *Observer) drainEvents() {
	for item := range o.events {
		o.handler(item.ctx, item.attrs)
	}
}

// forwardToFortiGates sends raw to every FortiGate configured for nas, in
// failover order, stopping after the first send that does not error.
func (o *Observer) forwardToFortiGates(nas string, raw []byte) bool {
	for _, fg := range o.fgMap[nas] {
		addr := withDefaultPort(fg, o.defaultPort)
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			o.logger.Warn().Err(err).Str("fg", fg).Msg("radius: failed to resolve fortigate forward address")
			continue
		}
		conn, err := net.DialUDP("udp", nil, udpAddr)
		if err != nil {
			o.logger.Warn().Err(err).Str("fg", fg).Msg("radius: failed to dial fortigate")
			continue
		}
		_, err = conn.Write(raw)
		conn.Close()
		if err != nil {
			o.logger.Warn().Err(err).Str("fg", fg).Msg("radius: failed to forward accounting request")
			continue
		}
		return true
	}
	return false
}

func withDefaultPort(addr string, defaultPort int) string {
	if strings.Contains(addr, ":") {
		return addr
	}
	return addr + ":" + strconv.Itoa(defaultPort)
}

// Close closes the listening socket.
func (o *Observer) Close() error {
	return o.conn.Close()
}
