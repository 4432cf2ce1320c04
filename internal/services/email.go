package services

import (
	"context"
	"fmt"
	"html"
	"log"
	"net/smtp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

type EmailConfig struct {
	Provider     string // "smtp" or "ses"
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SESRegion    string
	SESFromEmail string
	SESFromName  string
	FrontendURL  string
}

type mailSender interface {
	send(ctx context.Context, to, subject, htmlBody string) error
}

type EmailService struct {
	sender      mailSender
	frontendURL string
	devMode     bool
}

func NewEmailService(cfg EmailConfig) (*EmailService, error) {
	svc := &EmailService{frontendURL: cfg.FrontendURL}

	switch strings.ToLower(cfg.Provider) {
	case "ses":
		if cfg.SESFromEmail == "" {
			svc.devMode = true
			break
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.SESRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		svc.sender = &sesSender{
			client:    sesv2.NewFromConfig(awsCfg),
			fromEmail: cfg.SESFromEmail,
			fromName:  cfg.SESFromName,
		}
		log.Printf("Email service enabled: provider=ses, from=%s, region=%s", cfg.SESFromEmail, cfg.SESRegion)
	case "", "smtp":
		if cfg.SMTPHost == "" || cfg.SMTPUser == "" {
			svc.devMode = true
			break
		}
		svc.sender = &smtpSender{
			host: cfg.SMTPHost,
			port: cfg.SMTPPort,
			user: cfg.SMTPUser,
			pass: cfg.SMTPPass,
			from: cfg.SMTPFrom,
		}
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}

	if svc.devMode {
		log.Println("⚠ Email service running in DEV MODE (logging to console)")
	}
	return svc, nil
}

// WeeklyDigest is the content of the weekly progress email.
type WeeklyDigest struct {
	HoursThisWeek float64
	WeeklyGoal    float64
	CurrentStreak int
	TopSubject    string
}

func (s *EmailService) SendWeeklyDigestEmail(ctx context.Context, to, fullName string, digest WeeklyDigest) error {
	subject := "Your StudyHub week in review"

	goalLine := fmt.Sprintf("You studied <strong>%.1f h</strong> out of your %.1f h weekly goal.", digest.HoursThisWeek, digest.WeeklyGoal)
	if digest.WeeklyGoal > 0 && digest.HoursThisWeek >= digest.WeeklyGoal {
		goalLine += " Goal reached, well done!"
	}

	streakLine := "Start a new streak today with a short session."
	if digest.CurrentStreak > 0 {
		streakLine = fmt.Sprintf("You are on a <strong>%d-day</strong> study streak.", digest.CurrentStreak)
	}

	subjectLine := ""
	if digest.TopSubject != "" {
		subjectLine = fmt.Sprintf(`<p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0 0 16px;">Most studied course: %s</p>`, html.EscapeString(digest.TopSubject))
	}

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 480px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="background: linear-gradient(135deg, #0ea5e9 0%%, #6366f1 100%%); padding: 32px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 24px; font-weight: 700;">StudyHub</h1>
      <p style="color: rgba(255,255,255,0.85); margin: 8px 0 0; font-size: 14px;">Weekly digest</p>
    </div>
    <div style="padding: 32px;">
      <h2 style="margin: 0 0 16px; font-size: 20px; color: #1e293b;">Hi %s,</h2>
      <p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0 0 16px;">%s</p>
      <p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0 0 16px;">%s</p>
      %s
      <a href="%s/dashboard" style="display: inline-block; background: #6366f1; color: white; text-decoration: none; padding: 12px 32px; border-radius: 8px; font-weight: 600; font-size: 14px;">
        Open dashboard
      </a>
    </div>
  </div>
</body>
</html>`, html.EscapeString(displayName(fullName)), goalLine, streakLine, subjectLine, s.frontendURL)

	return s.sendHTML(ctx, to, subject, body)
}

func (s *EmailService) SendStudyReminderEmail(ctx context.Context, to, fullName string, lastActivityAt *time.Time) error {
	subject := "Time for a StudyHub session?"

	lastLine := "You have not logged a study session yet."
	if lastActivityAt != nil {
		lastLine = fmt.Sprintf("Your last study session was on %s.", lastActivityAt.UTC().Format("January 2, 2006"))
	}

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 480px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="background: linear-gradient(135deg, #0ea5e9 0%%, #6366f1 100%%); padding: 32px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 24px; font-weight: 700;">StudyHub</h1>
    </div>
    <div style="padding: 32px;">
      <h2 style="margin: 0 0 16px; font-size: 20px; color: #1e293b;">Hi %s,</h2>
      <p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0 0 24px;">
        %s Even twenty minutes keeps your streak and your weekly goal on track.
      </p>
      <a href="%s/courses" style="display: inline-block; background: #6366f1; color: white; text-decoration: none; padding: 12px 32px; border-radius: 8px; font-weight: 600; font-size: 14px;">
        Resume studying
      </a>
      <p style="color: #94a3b8; font-size: 12px; margin: 24px 0 0;">
        You can turn off reminders in your notification settings.
      </p>
    </div>
  </div>
</body>
</html>`, html.EscapeString(displayName(fullName)), lastLine, s.frontendURL)

	return s.sendHTML(ctx, to, subject, body)
}

func displayName(fullName string) string {
	name := strings.TrimSpace(fullName)
	if name == "" {
		return "there"
	}
	if first, _, ok := strings.Cut(name, " "); ok {
		return first
	}
	return name
}

func (s *EmailService) sendHTML(ctx context.Context, to, subject, htmlBody string) error {
	if s.devMode || s.sender == nil {
		log.Printf("📧 [DEV EMAIL] To: %s | Subject: %s", to, subject)
		log.Printf("📧 Body:\n%s", htmlBody)
		return nil
	}

	if err := s.sender.send(ctx, to, subject, htmlBody); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	log.Printf("📧 Email sent to %s: %s", to, subject)
	return nil
}

type smtpSender struct {
	host string
	port string
	user string
	pass string
	from string
}

func (s *smtpSender) send(_ context.Context, to, subject, htmlBody string) error {
	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	return smtp.SendMail(addr, auth, s.from, []string{to}, []byte(message))
}

type sesSender struct {
	client    *sesv2.Client
	fromEmail string
	fromName  string
}

func (s *sesSender) send(ctx context.Context, to, subject, htmlBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	})
	return err
}
