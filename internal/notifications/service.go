package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/config"
	"github.com/trailpost/affiliate-engine/internal/models"
	"gopkg.in/gomail.v2"
)

// mailSender is satisfied by *gomail.Dialer
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service handles sending notifications via various channels
type Service struct {
	config *config.Config
	client *resty.Client
	mailer mailSender
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
		mailer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}
}

// SendReport sends a revenue report via configured notification channels
func (s *Service) SendReport(report *models.RevenueReport) error {
	subject := fmt.Sprintf("Affiliate Revenue Report - last %s (%s commission)", report.Timeframe, money(report.TotalCommission))

	htmlBody, err := buildReportHTML(report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	return s.fanOut("report",
		func() error { return s.postToTeams(buildReportTeamsMessage(report)) },
		func() error { return s.sendEmail(subject, buildReportText(report), htmlBody) },
	)
}

// SendAlert sends an urgent alert notification
func (s *Service) SendAlert(alert *models.Alert) error {
	subject := fmt.Sprintf("[Affiliate Alert] %s", alert.Title)

	return s.fanOut("alert",
		func() error { return s.postToTeams(buildAlertTeamsMessage(alert)) },
		func() error { return s.sendEmail(subject, buildAlertText(alert), "") },
	)
}

// fanOut delivers to every configured channel and joins the failures
func (s *Service) fanOut(kind string, teams, email func() error) error {
	var errors []string

	// Send to Teams if configured
	if s.config.TeamsWebhookURL != "" {
		if err := teams(); err != nil {
			logrus.Errorf("Failed to send Teams %s: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Successfully sent %s to Teams", kind)
		}
	}

	// Send via email if configured
	if s.config.NotificationEmail != "" {
		if err := email(); err != nil {
			logrus.Errorf("Failed to send email %s: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Successfully sent %s via email", kind)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) postToTeams(message *TeamsMessage) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) sendEmail(subject, textBody, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	if htmlBody != "" {
		m.AddAlternative("text/html", htmlBody)
	}

	if err := s.mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func buildReportTeamsMessage(report *models.RevenueReport) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("Affiliate Revenue - last %s", report.Timeframe),
		Text: fmt.Sprintf("%d approved conversions earned %s in commission",
			report.ConversionCount, money(report.TotalCommission)),
	}

	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts: []TeamsFact{
			{Name: "Revenue", Value: money(report.TotalRevenue)},
			{Name: "Commission", Value: money(report.TotalCommission)},
			{Name: "Conversions", Value: fmt.Sprintf("%d", report.ConversionCount)},
			{Name: "Avg Order", Value: money(report.AvgOrderValue)},
			{Name: "Projected Monthly", Value: money(report.ProjectedMonthlyCommission)},
			{Name: "Generated", Value: report.GeneratedAt.Format("2006-01-02 15:04:05 UTC")},
		},
		Markdown: true,
	})

	if len(report.ByVendor) > 0 {
		var facts []TeamsFact
		for _, v := range report.ByVendor {
			facts = append(facts, TeamsFact{
				Name:  string(v.Vendor),
				Value: fmt.Sprintf("%s from %d conversions", money(v.Commission), v.Conversions),
			})
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "By Vendor",
			Facts:         facts,
			Markdown:      true,
		})
	}

	return message
}

func buildAlertTeamsMessage(alert *models.Alert) *TeamsMessage {
	color := "0078D4"
	if alert.Type == models.AlertHighValueCommission {
		color = "107C10"
	}

	facts := []TeamsFact{
		{Name: "Type", Value: string(alert.Type)},
		{Name: "Amount", Value: money(alert.Amount.InexactFloat64())},
	}
	if alert.Vendor != "" {
		facts = append(facts, TeamsFact{Name: "Vendor", Value: string(alert.Vendor)})
	}
	if alert.CommissionID != "" {
		facts = append(facts, TeamsFact{Name: "Commission", Value: alert.CommissionID})
	}

	return &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: color,
		Title:      alert.Title,
		Text:       alert.Message,
		Sections:   []TeamsSection{{Facts: facts, Markdown: true}},
	}
}

const reportHTML = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Affiliate Revenue Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #2d6a4f; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        table { border-collapse: collapse; }
        td, th { padding: 6px 12px; border-bottom: 1px solid #ddd; text-align: left; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Affiliate Revenue Report</h1>
        <p>Last {{.Timeframe}}, generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <div class="summary">
        <p><strong>Revenue:</strong> {{money .TotalRevenue}}</p>
        <p><strong>Commission:</strong> {{money .TotalCommission}}</p>
        <p><strong>Conversions:</strong> {{.ConversionCount}}</p>
        <p><strong>Average order:</strong> {{money .AvgOrderValue}}</p>
        <p><strong>Projected monthly commission:</strong> {{money .ProjectedMonthlyCommission}}</p>
    </div>

    {{if .ByVendor}}
    <h2>By Vendor</h2>
    <table>
        <tr><th>Vendor</th><th>Revenue</th><th>Commission</th><th>Conversions</th></tr>
        {{range .ByVendor}}
        <tr><td>{{.Vendor}}</td><td>{{money .Revenue}}</td><td>{{money .Commission}}</td><td>{{.Conversions}}</td></tr>
        {{end}}
    </table>
    {{end}}

    {{if .ByContent}}
    <h2>Top Content</h2>
    <table>
        <tr><th>Content</th><th>Commission</th><th>Conversions</th></tr>
        {{range $index, $c := .ByContent}}{{if lt $index 10}}
        <tr><td>{{$c.ContentRef}}</td><td>{{money $c.Commission}}</td><td>{{$c.Conversions}}</td></tr>
        {{end}}{{end}}
    </table>
    {{end}}
</body>
</html>
`

func buildReportHTML(report *models.RevenueReport) (string, error) {
	t, err := template.New("email").Funcs(template.FuncMap{"money": money}).Parse(reportHTML)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, report); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func buildReportText(report *models.RevenueReport) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Affiliate Revenue Report - last %s\n", report.Timeframe))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("Revenue: %s\n", money(report.TotalRevenue)))
	text.WriteString(fmt.Sprintf("Commission: %s\n", money(report.TotalCommission)))
	text.WriteString(fmt.Sprintf("Conversions: %d\n", report.ConversionCount))
	text.WriteString(fmt.Sprintf("Average order: %s\n", money(report.AvgOrderValue)))
	text.WriteString(fmt.Sprintf("Projected monthly commission: %s\n", money(report.ProjectedMonthlyCommission)))

	if len(report.ByVendor) > 0 {
		text.WriteString("\nBY VENDOR\n")
		text.WriteString("=========\n")
		for _, v := range report.ByVendor {
			text.WriteString(fmt.Sprintf("%-14s %10s  (%d conversions)\n", v.Vendor, money(v.Commission), v.Conversions))
		}
	}

	return text.String()
}

func buildAlertText(alert *models.Alert) string {
	var text strings.Builder
	text.WriteString(alert.Title + "\n\n")
	text.WriteString(alert.Message + "\n")
	if alert.Vendor != "" {
		text.WriteString(fmt.Sprintf("\nVendor: %s\n", alert.Vendor))
	}
	text.WriteString(fmt.Sprintf("Raised: %s\n", alert.CreatedAt.Format("2006-01-02 15:04:05 UTC")))
	return text.String()
}
