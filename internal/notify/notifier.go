// Package notify emails and texts applicants when their submission changes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	awsx "admission-portal/internal/common/aws"
	"admission-portal/internal/common/logger"
	"admission-portal/internal/events"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

const SubscriberName = "notifier"

// SESService and SNSService are the SDK calls the notifier makes.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
	SenderID     string
}

type template struct {
	subject string
	body    string
}

var templates = map[string]template{
	events.NameSubmissionFinalized: {
		subject: "Application {{applicationId}} received",
		body:    "Dear {{applicantName}}, your {{applicationType}} application {{applicationId}} for {{programChoice}} ({{faculty}}) has been submitted.",
	},
	events.NameSubmissionStatusChanged: {
		subject: "Application {{applicationId}} is now {{status}}",
		body:    "Dear {{applicantName}}, the status of your application {{applicationId}} changed from {{from}} to {{status}}.",
	},
}

// Notifier is an events.Subscriber.
type Notifier struct {
	config Config
	ses    SESService
	sns    SNSService
	logger logger.Logger
}

func NewNotifier(cfg Config, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		config: cfg,
		ses:    sesClient,
		sns:    snsClient,
		logger: log.WithFields(map[string]interface{}{"subscriber": SubscriberName}),
	}
}

func (n *Notifier) Name() string { return SubscriberName }

func (n *Notifier) Handle(ctx context.Context, e events.Event) error {
	switch ev := e.(type) {
	case events.SubmissionFinalized:
		data := map[string]interface{}{
			"applicationId":   ev.ApplicationID,
			"applicantName":   ev.ApplicantName,
			"applicationType": string(ev.ApplicationType),
			"programChoice":   ev.ProgramChoice,
			"faculty":         ev.Faculty,
		}
		return n.send(ctx, e.Name(), ev.Email, "", data)
	case events.SubmissionStatusChanged:
		data := map[string]interface{}{
			"applicationId": ev.ApplicationID,
			"applicantName": ev.ApplicantName,
			"from":          string(ev.From),
			"status":        string(ev.To),
		}
		if ev.DecisionDate != nil {
			data["decisionDate"] = ev.DecisionDate.Format(time.DateOnly)
		}
		// Decisions are important enough for a text message.
		phone := ""
		if ev.To.Terminal() {
			phone = ev.Phone
		}
		return n.send(ctx, e.Name(), ev.Email, phone, data)
	default:
		return nil
	}
}

func (n *Notifier) send(ctx context.Context, eventName, email, phone string, data map[string]interface{}) error {
	tmpl, ok := templates[eventName]
	if !ok {
		return fmt.Errorf("no template for %s", eventName)
	}
	subject := renderTemplate(tmpl.subject, data)
	body := renderTemplate(tmpl.body, data)

	var errs []error
	if n.config.EmailEnabled && email != "" {
		if err := n.sendEmail(ctx, email, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	if n.config.SMSEnabled && phone != "" {
		if err := n.sendSMS(ctx, phone, body); err != nil {
			errs = append(errs, fmt.Errorf("sms: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	n.logger.Debug("Notification sent", map[string]interface{}{
		"event":    eventName,
		"hasEmail": email != "",
		"hasPhone": phone != "",
	})
	return nil
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.ses.SendEmail(ctx, awsx.TextEmail(n.config.FromEmail, to, subject, body))
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	_, err := n.sns.Publish(ctx, awsx.TransactionalSMS(to, n.config.SenderID, message))
	return err
}

// renderTemplate replaces {{key}} placeholders and drops any left unfilled.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}
