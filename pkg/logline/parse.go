// Package logline turns raw collaborator output lines into structured
// dashboard log entries. Collaborators emit lines like
//
//	2026-03-01T09:00:00Z [deploy] w waiting for argocd sync
//
// but the format drifts per collaborator, so the parser is forgiving:
// timestamps are best-effort, and anything unparseable still becomes
// an info line rather than getting lost.
package logline

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

// validLevels is the dashboard level alphabet.
var validLevels = map[string]bool{
	"i": true, "s": true, "w": true, "e": true,
	"h": true, "c": true, "d": true,
}

// stepAliases maps wire step tags onto the canonical steps.
var stepAliases = map[string]pipeline.Step{
	"merge":   pipeline.StepMerge,
	"build":   pipeline.StepBuild,
	"gitops":  pipeline.StepGitops,
	"deploy":  pipeline.StepDeploy,
	"jenkins": pipeline.StepJenkins,
	"qa":      pipeline.StepJenkins,
}

// Parse converts one raw line into a LogLine for the given run. The
// fallback timestamp is used when the line carries none.
func Parse(runID, raw string, fallback time.Time) pipeline.LogLine {
	l := pipeline.LogLine{RunID: runID, At: fallback, Level: "i"}

	rest := strings.TrimSpace(raw)
	if rest == "" {
		return l
	}

	if ts, remainder, ok := leadingTimestamp(rest); ok {
		l.At = ts
		rest = remainder
	}

	if strings.HasPrefix(rest, "[") {
		if end := strings.IndexByte(rest, ']'); end > 1 {
			tag := strings.ToLower(rest[1:end])
			if step, ok := stepAliases[tag]; ok {
				l.Step = step
				rest = strings.TrimSpace(rest[end+1:])
			}
		}
	}

	if len(rest) >= 2 && rest[1] == ' ' && validLevels[string(rest[0])] {
		l.Level = string(rest[0])
		rest = strings.TrimSpace(rest[2:])
	}

	l.Text = rest
	return l
}

// leadingTimestamp pulls a timestamp off the front of the line. The
// first whitespace-delimited token is tried as a unix epoch (seconds
// or millis) then handed to dateparse; two tokens are tried as well so
// "2026-03-01 09:00:00" style stamps work.
func leadingTimestamp(s string) (time.Time, string, bool) {
	fields := strings.SplitN(s, " ", 3)

	if i, err := strconv.ParseInt(fields[0], 10, 64); err == nil && i > 1_000_000_000 {
		rest := strings.TrimSpace(strings.TrimPrefix(s, fields[0]))
		if i < 1_000_000_000_000 {
			return time.Unix(i, 0).UTC(), rest, true
		}
		return time.UnixMilli(i).UTC(), rest, true
	}

	if len(fields) >= 2 {
		two := fields[0] + " " + fields[1]
		if ts, err := dateparse.ParseAny(two); err == nil {
			rest := strings.TrimSpace(strings.TrimPrefix(s, two))
			return ts, rest, true
		}
	}
	if ts, err := dateparse.ParseAny(fields[0]); err == nil {
		rest := strings.TrimSpace(strings.TrimPrefix(s, fields[0]))
		return ts, rest, true
	}
	return time.Time{}, s, false
}
