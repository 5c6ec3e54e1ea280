// Package notify posts pipeline notifications to a Slack incoming
// webhook. Formatting of run summaries, degradation alerts and
// rollback notices happens here; the controller only hands over a
// payload.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

// SlackNotifier sends notifications to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	emailMap   map[string]string
	oncall     Oncall
	client     *http.Client
}

// Oncall names who gets pinged when a run needs an operator.
type Oncall struct {
	Shift      string
	Name       string
	Escalation string
}

// SlackMessage is the webhook payload.
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment is one colored block of a message.
type SlackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"text"`
	Footer string `json:"footer,omitempty"`
}

// NewSlackNotifier creates a notifier. An empty webhook URL disables
// sending; every call becomes a no-op.
func NewSlackNotifier(webhookURL, channel string, emailMap map[string]string, oncall Oncall) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		emailMap:   emailMap,
		oncall:     oncall,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (m *SlackMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// colorFor maps a payload kind to the Slack attachment color.
func colorFor(p pipeline.SlackPayload) string {
	switch p.Kind {
	case "degraded", "aborted":
		return "danger"
	case "rollback":
		return "warning"
	case "summary":
		switch p.Status {
		case pipeline.RunSuccess:
			return "good"
		case pipeline.RunDegraded:
			return "warning"
		default:
			return "danger"
		}
	}
	return "#439FE0"
}

// Send formats and posts one notification. Send never blocks the
// caller for long: it runs the HTTP post inline and the controller
// calls it from a goroutine via the sink.
func (s *SlackNotifier) Send(p pipeline.SlackPayload) error {
	if s.webhookURL == "" {
		return nil
	}

	msg := SlackMessage{
		Channel: s.channel,
		Text:    s.headline(p),
		Attachments: []SlackAttachment{
			{
				Color:  colorFor(p),
				Text:   s.body(p),
				Footer: "opsdash",
			},
		},
	}

	payload, err := msg.ToJSON()
	if err != nil {
		return errors.Wrap(err, "marshal slack message")
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "post slack webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("slack returned %d", resp.StatusCode)
	}
	return nil
}

func (s *SlackNotifier) headline(p pipeline.SlackPayload) string {
	switch p.Kind {
	case "degraded":
		return fmt.Sprintf("⚠ Run #%d paused — deploy degraded", p.RunNum)
	case "aborted":
		return fmt.Sprintf("✘ Run #%d aborted%s", p.RunNum, s.mention(p.TriggeredBy))
	case "rollback":
		return fmt.Sprintf("↺ Run #%d — rollback requested", p.RunNum)
	default:
		icon := "✓"
		if p.Status != pipeline.RunSuccess {
			icon = "△"
		}
		return fmt.Sprintf("%s Run #%d finished: %s%s", icon, p.RunNum,
			strings.ToUpper(string(p.Status)), s.mention(p.TriggeredBy))
	}
}

func (s *SlackNotifier) body(p pipeline.SlackPayload) string {
	var b strings.Builder
	if len(p.Services) > 0 {
		fmt.Fprintf(&b, "Services: %s\n", strings.Join(p.Services, ", "))
	}
	if p.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", p.Duration)
	}
	if p.Retries > 0 {
		fmt.Fprintf(&b, "Retries: %d\n", p.Retries)
	}
	if unhealthy := unhealthyLines(p.HealthMap); len(unhealthy) > 0 {
		fmt.Fprintf(&b, "Unhealthy:\n%s\n", strings.Join(unhealthy, "\n"))
	}
	if p.PauseError != "" {
		fmt.Fprintf(&b, "%s\n", p.PauseError)
	}
	if needsOperator(p.Kind) && s.oncall.Name != "" {
		line := "On-call: " + s.display(s.oncall.Name)
		if s.oncall.Shift != "" {
			line += " (" + s.oncall.Shift + " shift)"
		}
		if s.oncall.Escalation != "" {
			line += " · escalation " + s.display(s.oncall.Escalation)
		}
		fmt.Fprintf(&b, "%s\n", line)
	}
	return strings.TrimRight(b.String(), "\n")
}

// needsOperator reports whether the notification kind asks someone to
// act, as opposed to a completion summary.
func needsOperator(kind string) bool {
	return kind == "degraded" || kind == "aborted" || kind == "rollback"
}

// mention resolves an operator name to a headline suffix.
func (s *SlackNotifier) mention(name string) string {
	if name == "" {
		return ""
	}
	return " — " + s.display(name)
}

// display renders a name as a Slack email mention when the email map
// knows them, plain otherwise.
func (s *SlackNotifier) display(name string) string {
	if email, ok := s.emailMap[name]; ok {
		return "<mailto:" + email + "|" + name + ">"
	}
	return name
}

func unhealthyLines(hm map[string]pipeline.HealthState) []string {
	var out []string
	for svc, h := range hm {
		if h != pipeline.HealthHealthy {
			out = append(out, fmt.Sprintf("• %s: %s", svc, h))
		}
	}
	sort.Strings(out)
	return out
}

// Sink adapts the notifier to the controller's command sink: posting
// happens off the controller's lock and a webhook failure only logs.
type Sink struct {
	Notifier *SlackNotifier
}

func (s Sink) Notify(channel string, p pipeline.SlackPayload) {
	go func() {
		if err := s.Notifier.Send(p); err != nil {
			log.Warn().Err(err).Str("kind", p.Kind).Msg("slack notification failed")
		}
	}()
}
