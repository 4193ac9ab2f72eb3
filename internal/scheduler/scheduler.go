// Package scheduler implements the daily report scheduler (C10): a
// long-lived task that wakes at a fixed local wall-clock time, fans the
// subscriber roster out across a bounded worker pool, and emails each
// subscriber either a "no events" notice or a signed link to their daily
// UTM digest.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/solidex/shpak/internal/analytical"
	"github.com/solidex/shpak/internal/config"
	"github.com/solidex/shpak/internal/ldap"
	"github.com/solidex/shpak/internal/mailer"
	"github.com/solidex/shpak/internal/signing"
	"github.com/rs/zerolog"
)

// Scheduler drives the daily digest tick: fan out per-subscriber queries
// and signed-link emails at a fixed local wall-clock time.
type Scheduler struct {
	cfg     config.ReportConfig
	ldap    *ldap.Client
	store   *analytical.Client
	mailer  *mailer.Mailer
	logger  zerolog.Logger
}

// New builds a Scheduler.
func New(cfg config.ReportConfig, ldapClient *ldap.Client, store *analytical.Client, m *mailer.Mailer, logger zerolog.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, ldap: ldapClient, store: store, mailer: m, logger: logger}
}

// Run fires one tick immediately, then one at every local REPORT_SEND_TIME
// boundary, until ctx is cancelled. A panic or error inside one tick's
// processing never escapes Run: the loop logs and, on an exception in the
// loop itself, backs off 60s and continues.
func (s *Scheduler) Run(ctx context.Context) {
	s.runTickSafely(ctx)

	for {
		wait := s.durationToNextTick(time.Now())
		s.logger.Info().Dur("wait", wait).Msg("scheduler: sleeping until next report tick")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runTickSafely(ctx)
		}
	}
}

// runTickSafely recovers from any panic inside tick so the scheduler's
// outer loop survives it, matching the "never exit the process" recovery
// for a scheduler loop exception.
func (s *Scheduler) runTickSafely(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Interface("panic", rec).Msg("scheduler: recovered from panic in tick, backing off")
			time.Sleep(60 * time.Second)
		}
	}()
	s.tick(ctx)
}

// durationToNextTick computes the wait until the next local occurrence of
// cfg.SendTime, recomputed from the current wall clock every iteration so
// the scheduler tolerates clock jumps rather than drifting off a fixed
// timer.
func (s *Scheduler) durationToNextTick(now time.Time) time.Duration {
	hour, minute := 8, 0
	if s.cfg.SendTime != "" {
		var h, m int
		if _, err := fmt.Sscanf(s.cfg.SendTime, "%d:%d", &h, &m); err == nil {
			hour, minute = h, m
		}
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// tick runs one full daily fan-out: list subscribers, then process each in
// parallel across a bounded worker pool.
func (s *Scheduler) tick(ctx context.Context) {
	users, err := s.ldap.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduler: failed to list subscribers")
		return
	}
	if len(users) == 0 {
		s.logger.Info().Msg("scheduler: processed: 0")
		return
	}

	reportingDate := time.Now().AddDate(0, 0, -1).Format("2006-01-02")

	workers := s.cfg.WorkerCount
	if workers <= 0 {
		workers = 32
	}

	jobs := make(chan ldap.User)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				s.processUser(ctx, u, reportingDate)
			}
		}()
	}

	for _, u := range users {
		select {
		case jobs <- u:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	s.logger.Info().Int("processed", len(users)).Msg("scheduler: daily tick complete")
}

func (s *Scheduler) processUser(ctx context.Context, u ldap.User, reportingDate string) {
	if len(u.Emails) == 0 {
		s.logger.Warn().Str("login", u.Login).Msg("scheduler: subscriber has no email addresses, skipping")
		return
	}

	rows, err := s.store.QueryUser(ctx, u.Login, reportingDate)
	if err != nil {
		s.logger.Error().Err(err).Str("login", u.Login).Msg("scheduler: query failed")
		return
	}

	for _, to := range u.Emails {
		if len(rows) == 0 {
			s.sendNoEvents(to, u.Login, reportingDate)
			continue
		}
		s.sendDigestLink(to, u.Login, reportingDate)
	}
}

func (s *Scheduler) sendNoEvents(to, login, reportingDate string) {
	subject := fmt.Sprintf("Daily firewall digest for %s - %s", login, reportingDate)
	body := fmt.Sprintf("<p>No UTM events were recorded for <strong>%s</strong> on %s.</p>", login, reportingDate)
	if err := s.mailer.SendHTML(to, subject, body); err != nil {
		s.logger.Warn().Err(err).Str("to", to).Str("login", login).Msg("scheduler: failed to send no-events email")
	}
}

func (s *Scheduler) sendDigestLink(to, login, reportingDate string) {
	token, err := signing.Sign(s.cfg.EmailToken, signing.ReportPayload{Login: login, Date: reportingDate})
	if err != nil {
		s.logger.Error().Err(err).Str("login", login).Msg("scheduler: failed to sign report token")
		return
	}

	link := fmt.Sprintf("http://%s:%d/report?token=%s", s.cfg.PublicHost, s.cfg.PublicPort, token)
	subject := fmt.Sprintf("Daily firewall digest for %s - %s", login, reportingDate)
	body := fmt.Sprintf(`<p>Your firewall event digest for %s is ready.</p><p><a href="%s">View your events</a></p>`, reportingDate, link)

	if err := s.mailer.SendHTML(to, subject, body); err != nil {
		s.logger.Warn().Err(err).Str("to", to).Str("login", login).Msg("scheduler: failed to send digest link email")
	}
}
