// Package utm implements the UTM log ingester (C9): a UDP JSON syslog
// listener that normalises FortiGate UTM records and bulk-loads them into
// the analytical store.
package utm

import (
	"context"
	"encoding/json"
	"net"
	"strings"

	"github.com/solidex/shpak/internal/analytical"
	"github.com/solidex/shpak/internal/domain"
	"github.com/rs/zerolog"
)

// Ingester binds one UDP socket and normalises every well-formed UTM
// syslog datagram it receives before handing it to the analytical store's
// Stream-Load write path.
type Ingester struct {
	conn   *net.UDPConn
	store  *analytical.Client
	logger zerolog.Logger
}

// New binds listenAddr (":514" by default).
func New(listenAddr string, store *analytical.Client, logger zerolog.Logger) (*Ingester, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Ingester{conn: conn, store: store, logger: logger}, nil
}

// Run reads datagrams until ctx is cancelled or the socket is closed.
func (i *Ingester) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		i.conn.Close()
	}()

	buf := make([]byte, 8192)
	for {
		n, _, err := i.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				i.logger.Error().Err(err).Msg("utm: read error")
				continue
			}
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		i.handleDatagram(ctx, datagram)
	}
}

func (i *Ingester) handleDatagram(ctx context.Context, data []byte) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		i.logger.Warn().Err(err).Msg("utm: dropping non-JSON syslog payload")
		return
	}

	if !domain.IsUTMType(raw) {
		return
	}

	rec := domain.NormalizeUTMLog(raw)
	i.store.StreamLoad(ctx, rec)
	i.logger.Info().
		Str("user", rec.User).
		Str("action", rec.Action).
		Str("srcip", rec.SrcIP).
		Str("dstip", rec.DstIP).
		Msg("utm: log normalised and stream-loaded")
}

// Close closes the listening socket.
func (i *Ingester) Close() error {
	return i.conn.Close()
}
