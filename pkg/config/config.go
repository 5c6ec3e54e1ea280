package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultConfigFilename = ".opsdash.yaml"

// Duration wraps time.Duration so "45s" style values parse from yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return errors.Wrap(err, "decode duration")
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// File is the dashboard configuration loaded from .opsdash.yaml.
type File struct {
	Market   string   `yaml:"market,omitempty"`
	Services []string `yaml:"services"`

	RetryMax    int      `yaml:"retry_max,omitempty"`
	SettleGrace Duration `yaml:"settle_grace,omitempty"`
	SkipJenkins bool     `yaml:"skip_jenkins,omitempty"`

	Slack Slack `yaml:"slack,omitempty"`

	HistoryDB string `yaml:"history_db,omitempty"`

	Roster    Roster `yaml:"roster,omitempty"`
	EmailsRaw string `yaml:"emails_raw,omitempty"`
}

// Slack configures the notification channel.
type Slack struct {
	WebhookURL string `yaml:"webhook_url,omitempty"`
	Channel    string `yaml:"channel,omitempty"`
}

// Roster is the on-call record referenced by notifications: whose
// shift it is, who gets pinged first and who to escalate to.
type Roster struct {
	Shift      string `yaml:"shift,omitempty"`
	Oncall     string `yaml:"oncall,omitempty"`
	Escalation string `yaml:"escalation,omitempty"`
}

func DefaultPath(root string) string {
	return filepath.Join(root, DefaultConfigFilename)
}

func LoadFromFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var cfg File
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func LoadOptional(path string) (*File, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &File{}
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, errors.Wrap(err, "stat config")
	}
	return LoadFromFile(path)
}

func (f *File) applyDefaults() {
	if f.RetryMax <= 0 {
		f.RetryMax = 3
	}
	if f.SettleGrace <= 0 {
		f.SettleGrace = Duration(20 * time.Second)
	}
	if f.HistoryDB == "" {
		f.HistoryDB = "opsdash-history.db"
	}
}

// ParseEmailMap parses the raw "Name <email>" list pasted into the
// config, one entry per line or comma-separated. Malformed entries are
// skipped rather than failing the load.
func ParseEmailMap(raw string) map[string]string {
	out := map[string]string{}
	for _, chunk := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == ','
	}) {
		chunk = strings.TrimSpace(chunk)
		open := strings.IndexByte(chunk, '<')
		end := strings.IndexByte(chunk, '>')
		if open <= 0 || end <= open {
			continue
		}
		name := strings.TrimSpace(chunk[:open])
		email := strings.TrimSpace(chunk[open+1 : end])
		if name == "" || !strings.Contains(email, "@") {
			continue
		}
		out[name] = email
	}
	return out
}
