package logline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

var fallback = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestParseFullLine(t *testing.T) {
	l := Parse("r1", "2026-03-01T10:30:00Z [deploy] w waiting for argocd sync", fallback)
	require.Equal(t, "r1", l.RunID)
	require.Equal(t, time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), l.At)
	require.Equal(t, pipeline.StepDeploy, l.Step)
	require.Equal(t, "w", l.Level)
	require.Equal(t, "waiting for argocd sync", l.Text)
}

func TestParseEpochSeconds(t *testing.T) {
	l := Parse("r1", "1772355600 [build] e image push failed", fallback)
	require.Equal(t, time.Unix(1772355600, 0).UTC(), l.At)
	require.Equal(t, pipeline.StepBuild, l.Step)
	require.Equal(t, "e", l.Level)
	require.Equal(t, "image push failed", l.Text)
}

func TestParseEpochMillis(t *testing.T) {
	l := Parse("r1", "1772355600123 ok", fallback)
	require.Equal(t, time.UnixMilli(1772355600123).UTC(), l.At)
	require.Equal(t, "ok", l.Text)
}

func TestParseSpaceSeparatedTimestamp(t *testing.T) {
	l := Parse("r1", "2026-03-01 10:30:00 [merge] s merged api", fallback)
	require.Equal(t, 10, l.At.Hour())
	require.Equal(t, pipeline.StepMerge, l.Step)
	require.Equal(t, "s", l.Level)
}

func TestParseNoTimestampUsesFallback(t *testing.T) {
	l := Parse("r1", "[gitops] i bumping image tag", fallback)
	require.Equal(t, fallback, l.At)
	require.Equal(t, pipeline.StepGitops, l.Step)
	require.Equal(t, "bumping image tag", l.Text)
}

func TestParseQAAlias(t *testing.T) {
	l := Parse("r1", "[qa] i triggering smoke suite", fallback)
	require.Equal(t, pipeline.StepJenkins, l.Step)
}

func TestParseUnknownTagKeptInText(t *testing.T) {
	l := Parse("r1", "[proxy] something odd", fallback)
	require.Empty(t, string(l.Step))
	require.Equal(t, "i", l.Level)
	require.Equal(t, "[proxy] something odd", l.Text)
}

func TestParseBareLine(t *testing.T) {
	l := Parse("r1", "   plain output   ", fallback)
	require.Equal(t, "i", l.Level)
	require.Equal(t, "plain output", l.Text)
	require.Equal(t, fallback, l.At)
}

func TestParseEmptyLine(t *testing.T) {
	l := Parse("r1", "", fallback)
	require.Empty(t, l.Text)
	require.Equal(t, "i", l.Level)
}
