// Package analytical implements the two contracts the analytical store is
// specified by: the Stream-Load HTTP write path the UTM ingester uses to
// bulk load UTM log records, and the ClickHouse-protocol read path the
// report scheduler uses for per-subscriber daily digest queries. The store
// itself is an external collaborator; only these two shapes are owned
// here.
package analytical

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/solidex/shpak/internal/config"
	"github.com/solidex/shpak/internal/domain"
	"github.com/rs/zerolog"
)

// Client talks to the analytical store over both its write path (HTTP
// Stream-Load) and its read path (ClickHouse wire protocol).
type Client struct {
	cfg        config.AnalyticalConfig
	httpClient *http.Client
	conn       clickhouse.Conn
	logger     zerolog.Logger
}

// New dials the ClickHouse-protocol connection used for reads and builds
// the Stream-Load HTTP client used for writes.
func New(cfg config.AnalyticalConfig, logger zerolog.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.NativePort)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		conn:       conn,
		logger:     logger,
	}, nil
}

// Health pings the ClickHouse-protocol connection.
func (c *Client) Health() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.conn.Ping(ctx) == nil
}

// Ready is an alias of Health for the HealthChecker interface.
func (c *Client) Ready() bool {
	return c.Health()
}

// Close releases the ClickHouse connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// StreamLoad writes one normalised UTM log record via the Stream-Load HTTP
// contract: PUT with a unique label, CSV body, comma column separator.
// Failure is logged and swallowed; the UTM pipeline is observational and
// loss is tolerable.
func (c *Client) StreamLoad(ctx context.Context, rec domain.UTMLogRecord) {
	label := fmt.Sprintf("utm_%d_%s", time.Now().UnixNano(), uuid.NewString()[:8])
	line := csvLine(rec.Values())

	path := fmt.Sprintf(c.cfg.StreamLoadPath, c.cfg.Database, c.cfg.Table)
	url := fmt.Sprintf("http://%s:%d%s", c.cfg.Host, c.cfg.HTTPPort, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader([]byte(line)))
	if err != nil {
		c.logger.Warn().Err(err).Msg("analytical: failed to build stream-load request")
		return
	}
	req.Header.Set("label", label)
	req.Header.Set("column_separator", ",")
	req.Header.Set("format", "csv")
	req.Header.Set("Expect", "100-continue")
	if c.cfg.User != "" {
		req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("label", label).Msg("analytical: stream-load request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn().Int("status", resp.StatusCode).Str("label", label).Msg("analytical: stream-load returned non-2xx")
		return
	}
	c.logger.Debug().Str("label", label).Str("user", rec.User).Msg("analytical: utm log stream-loaded")
}

// csvLine renders one record as a CSV row, each field double-quoted.
func csvLine(fields [20]string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",") + "\n"
}

// QueryUser returns the rows in UTMLogs for login on reportingDate
// (YYYY-MM-DD), the 08:00-to-08:00 reporting window, ordered by time.
func (c *Client) QueryUser(ctx context.Context, login, reportingDate string) ([]domain.UTMLogRecord, error) {
	day, err := time.Parse("2006-01-02", reportingDate)
	if err != nil {
		return nil, fmt.Errorf("parse reporting date: %w", err)
	}
	nextDate := day.AddDate(0, 0, 1).Format("2006-01-02")

	query := fmt.Sprintf(`
		SELECT action, date, dstcountry, dstip, dstport, eventtype, ipaddr, msg,
		       srccountry, srcip, utmtype, time, user, category, hostname,
		       service, url, httpagent, level, threat
		FROM %s
		WHERE user = ? AND ((date = ? AND time >= '08:00:00') OR (date = ? AND time < '08:00:00'))
		ORDER BY date ASC, time ASC`, c.cfg.Table)

	rows, err := c.conn.Query(ctx, query, login, reportingDate, nextDate)
	if err != nil {
		return nil, fmt.Errorf("query utm logs: %w", err)
	}
	defer rows.Close()

	var out []domain.UTMLogRecord
	for rows.Next() {
		var r domain.UTMLogRecord
		if err := rows.Scan(
			&r.Action, &r.Date, &r.DstCountry, &r.DstIP, &r.DstPort,
			&r.EventType, &r.IPAddr, &r.Msg, &r.SrcCountry, &r.SrcIP,
			&r.UTMType, &r.Time, &r.User, &r.Category, &r.Hostname,
			&r.Service, &r.URL, &r.HTTPAgent, &r.Level, &r.Threat,
		); err != nil {
			return nil, fmt.Errorf("scan utm log row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
