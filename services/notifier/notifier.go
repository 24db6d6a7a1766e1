// Package notifier emails release digests to subscribers. Each
// subscription names one genre; a digest run groups the window's
// releases by genre and sends one email per matching subscription.
package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"gamefeed-backend/lib/configutil"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("gamefeed.services.notifier")

type SmtpConfig struct {
	Server       string
	Port         int
	EmailAddress string
	Password     string
}

// SmtpConfigFromEnv builds the SES endpoint from the AWS region. The
// username/password pair is an SES SMTP credential, not an IAM key.
func SmtpConfigFromEnv() (SmtpConfig, error) {
	env, err := configutil.RequireEnv(
		"AWS_REGION",
		"AWS_SMTP_USERNAME",
		"AWS_SMTP_PASSWORD",
		"SENDER_EMAIL",
	)
	if err != nil {
		return SmtpConfig{}, err
	}
	return SmtpConfig{
		Server:       fmt.Sprintf("email-smtp.%s.amazonaws.com", env["AWS_REGION"]),
		Port:         587,
		EmailAddress: env["SENDER_EMAIL"],
		Password:     env["AWS_SMTP_PASSWORD"],
	}, nil
}

type Service struct {
	conn   *gorm.DB
	config SmtpConfig
}

func NewService(conn *gorm.DB, config SmtpConfig) Service {
	return Service{conn: conn, config: config}
}

func normalizeEmail(address string) string {
	return strings.Trim(strings.ToLower(address), " \t\n")
}

// Subscribe registers an address for one genre's digests. Repeating an
// existing subscription is a no-op.
func (s Service) Subscribe(ctx context.Context, address, genre string) error {
	ctx, span := tracer.Start(ctx, "Subscribe")
	defer span.End()

	sub := Subscription{Email: normalizeEmail(address), Genre: genre}
	err := s.conn.WithContext(ctx).
		Where(Subscription{Email: sub.Email, Genre: sub.Genre}).
		FirstOrCreate(&sub).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upsert subscription")
		return err
	}
	return nil
}

func (s Service) Unsubscribe(ctx context.Context, address, genre string) error {
	ctx, span := tracer.Start(ctx, "Unsubscribe")
	defer span.End()

	err := s.conn.WithContext(ctx).
		Where("email = ? AND genre = ?", normalizeEmail(address), genre).
		Delete(&Subscription{}).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete subscription")
		return err
	}
	return nil
}

type releaseRow struct {
	GameName            string
	PlatformName        string
	GenreName           string
	PlatformPrice       int16
	PlatformDiscount    int16
	PlatformURL         string
	PlatformReleaseDate time.Time
}

// PriceLabel renders minor units as a decimal for the template.
func (r releaseRow) PriceLabel() string {
	if r.PlatformPrice == 0 {
		return "Free"
	}
	return strconv.FormatFloat(float64(r.PlatformPrice)/100, 'f', 2, 64)
}

const releaseDigestTemplate = `<h2>New {{.Genre}} releases</h2>
<ul>
{{- range .Releases}}
<li>
	<a href="{{.PlatformURL}}">{{.GameName}}</a>
	on {{.PlatformName}} for {{.PriceLabel}}
	{{- if gt .PlatformDiscount 0}} ({{.PlatformDiscount}}% off){{end}}
</li>
{{- end}}
</ul>`

var releaseDigest = template.Must(template.New("releaseDigest").Parse(releaseDigestTemplate))

// SendNewReleaseDigests mails every subscriber whose genre saw releases
// on or after since. A failing address is logged and skipped so one
// bounce cannot starve the rest of the list.
func (s Service) SendNewReleaseDigests(ctx context.Context, since time.Time) (sent int, err error) {
	ctx, span := tracer.Start(ctx, "SendNewReleaseDigests")
	defer span.End()

	var rows []releaseRow
	err = s.conn.WithContext(ctx).Raw(`
		SELECT
			g.game_name,
			p.platform_name,
			ge.genre_name,
			gpa.platform_price,
			gpa.platform_discount,
			gpa.platform_url,
			gpa.platform_release_date
		FROM game_platform_assignment gpa
		JOIN game g ON g.game_id = gpa.game_id
		JOIN platform p ON p.platform_id = gpa.platform_id
		JOIN genre_game_platform_assignment gga
			ON gga.game_platform_assignment_id = gpa.game_platform_assignment_id
		JOIN genre ge ON ge.genre_id = gga.genre_id
		WHERE gpa.platform_release_date >= ?`, since).
		Scan(&rows).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query releases")
		return 0, err
	}

	byGenre := map[string][]releaseRow{}
	for _, row := range rows {
		byGenre[row.GenreName] = append(byGenre[row.GenreName], row)
	}

	var subs []Subscription
	err = s.conn.WithContext(ctx).Find(&subs).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query subscriptions")
		return 0, err
	}

	for _, sub := range subs {
		releases, ok := byGenre[sub.Genre]
		if !ok {
			continue
		}
		var body bytes.Buffer
		err := releaseDigest.Execute(&body, map[string]any{
			"Genre":    sub.Genre,
			"Releases": releases,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to render digest")
			return sent, err
		}
		subject := fmt.Sprintf("New %s releases", sub.Genre)
		if err := s.send(ctx, sub.Email, subject, body.Bytes()); err != nil {
			slog.WarnContext(ctx, "failed to send digest", "email", sub.Email, "err", err)
			continue
		}
		sent++
	}

	span.SetAttributes(attribute.Int("sent", sent))
	return sent, nil
}

type trendRow struct {
	WeekStart    string
	GenreName    string
	ReleaseCount int
}

const trendDigestTemplate = `<h2>Weekly genre trend</h2>
<table>
<tr><th>Week</th><th>Genre</th><th>Releases</th></tr>
{{- range .}}
<tr><td>{{.WeekStart}}</td><td>{{.GenreName}}</td><td>{{.ReleaseCount}}</td></tr>
{{- end}}
</table>`

var trendDigest = template.Must(template.New("trendDigest").Parse(trendDigestTemplate))

// SendWeeklyTrendDigest mails the genre trend leaderboard to every
// subscriber, regardless of genre.
func (s Service) SendWeeklyTrendDigest(ctx context.Context) (sent int, err error) {
	ctx, span := tracer.Start(ctx, "SendWeeklyTrendDigest")
	defer span.End()

	var rows []trendRow
	err = s.conn.WithContext(ctx).Raw(`
		SELECT week_start, genre_name, release_count
		FROM weekly_genre_trend
		ORDER BY week_start DESC, release_count DESC
		LIMIT 20`).
		Scan(&rows).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query trend view")
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var body bytes.Buffer
	if err := trendDigest.Execute(&body, rows); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to render digest")
		return 0, err
	}

	var addresses []string
	err = s.conn.WithContext(ctx).Model(&Subscription{}).
		Distinct("email").Pluck("email", &addresses).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query subscriptions")
		return 0, err
	}

	for _, address := range addresses {
		if err := s.send(ctx, address, "Weekly genre trend", body.Bytes()); err != nil {
			slog.WarnContext(ctx, "failed to send digest", "email", address, "err", err)
			continue
		}
		sent++
	}

	span.SetAttributes(attribute.Int("sent", sent))
	return sent, nil
}

func (s Service) send(ctx context.Context, to, subject string, body []byte) error {
	_, span := tracer.Start(ctx, "send")
	defer span.End()
	span.SetAttributes(attribute.String("to", to))

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("GameFeed <%s>", s.config.EmailAddress)
	mail.To = []string{to}
	mail.Subject = subject
	mail.HTML = body

	addr := fmt.Sprintf("%s:%d", s.config.Server, s.config.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", s.config.EmailAddress, s.config.Password, s.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
