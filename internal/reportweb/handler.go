// Package reportweb implements the token-protected report endpoints:
// /report renders an HTML table, /download/csv the same rows as CSV, and
// /download/excel the "HTML disguised as .xls" document Excel happily
// opens, matching the original's render_html_page/gen_excel, which never
// used a real spreadsheet writer either.
package reportweb

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"net/http"

	"github.com/solidex/shpak/internal/analytical"
	"github.com/solidex/shpak/internal/config"
	"github.com/solidex/shpak/internal/domain"
	"github.com/solidex/shpak/internal/handler"
	"github.com/solidex/shpak/internal/signing"
	"github.com/rs/zerolog"
)

// Handler serves the signed-link report surfaces.
type Handler struct {
	store      *analytical.Client
	emailToken []byte
	logger     zerolog.Logger
}

// New builds a Handler.
func New(cfg config.ReportConfig, store *analytical.Client, logger zerolog.Logger) *Handler {
	return &Handler{store: store, emailToken: cfg.EmailToken, logger: logger}
}

// verify validates the token query parameter and returns the decoded
// payload, writing a 400 response and returning ok=false on any failure.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) (signing.ReportPayload, bool) {
	token := r.URL.Query().Get("token")
	payload, err := signing.Unsign(h.emailToken, token)
	if err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_token", "token is missing, malformed, or tampered with")
		return signing.ReportPayload{}, false
	}
	return payload, true
}

var reportTableTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Firewall events for {{.Login}}, {{.Date}}</title></head>
<body>
<h1>Firewall events for {{.Login}}, {{.Date}}</h1>
<table border="1" cellspacing="0" cellpadding="4">
<thead><tr>
{{range $col := .Columns}}<th>{{$col}}</th>{{end}}
</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{else}}<tr><td colspan="{{len .Columns}}">No events recorded for this day.</td></tr>
{{end}}
</tbody>
</table>
</body></html>`))

type reportView struct {
	Login   string
	Date    string
	Columns []string
	Rows    [][]string
}

func buildView(login, date string, rows []domain.UTMLogRecord) reportView {
	v := reportView{Login: login, Date: date, Columns: domain.UTMLogColumns[:]}
	for _, r := range rows {
		values := r.Values()
		row := make([]string, len(values))
		copy(row, values[:])
		v.Rows = append(v.Rows, row)
	}
	return v
}

// Report handles GET /report?token=: re-runs the query and renders an HTML
// table of the subscriber's events for the signed reporting date.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.verify(w, r)
	if !ok {
		return
	}

	rows, err := h.store.QueryUser(r.Context(), payload.Login, payload.Date)
	if err != nil {
		h.logger.Error().Err(err).Str("login", payload.Login).Msg("reportweb: query failed")
		handler.WriteError(w, http.StatusInternalServerError, "query_failed", "could not load report data")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := reportTableTemplate.Execute(w, buildView(payload.Login, payload.Date, rows)); err != nil {
		h.logger.Error().Err(err).Msg("reportweb: template render failed")
	}
}

// DownloadCSV handles GET /download/csv?token=: the same rows, rendered as
// a CSV attachment.
func (h *Handler) DownloadCSV(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.verify(w, r)
	if !ok {
		return
	}

	rows, err := h.store.QueryUser(r.Context(), payload.Login, payload.Date)
	if err != nil {
		h.logger.Error().Err(err).Str("login", payload.Login).Msg("reportweb: query failed")
		handler.WriteError(w, http.StatusInternalServerError, "query_failed", "could not load report data")
		return
	}

	filename := fmt.Sprintf("%s_%s.csv", payload.Login, payload.Date)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	cw := csv.NewWriter(w)
	cw.Write(domain.UTMLogColumns[:])
	for _, rec := range rows {
		values := rec.Values()
		row := make([]string, len(values))
		copy(row, values[:])
		cw.Write(row)
	}
	cw.Flush()
}

// DownloadExcel handles GET /download/excel?token=: an HTML table saved
// with an .xls extension, which Excel opens as a worksheet without a real
// OOXML writer in the pack.
func (h *Handler) DownloadExcel(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.verify(w, r)
	if !ok {
		return
	}

	rows, err := h.store.QueryUser(r.Context(), payload.Login, payload.Date)
	if err != nil {
		h.logger.Error().Err(err).Str("login", payload.Login).Msg("reportweb: query failed")
		handler.WriteError(w, http.StatusInternalServerError, "query_failed", "could not load report data")
		return
	}

	filename := fmt.Sprintf("%s_%s.xls", payload.Login, payload.Date)
	w.Header().Set("Content-Type", "application/vnd.ms-excel")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if err := reportTableTemplate.Execute(w, buildView(payload.Login, payload.Date, rows)); err != nil {
		h.logger.Error().Err(err).Msg("reportweb: template render failed")
	}
}
