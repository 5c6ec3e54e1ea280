package styles

// Status icons
const (
	IconSuccess     = "✓"
	IconError       = "✗"
	IconWarning     = "⚠"
	IconInfo        = "ℹ"
	IconRunning     = "▶"
	IconPending     = "○"
	IconSkipped     = "⊘"
	IconDegraded    = "◍"
	IconInterrupted = "■"
	IconBullet      = "•"
	IconPause       = "⏸"
	IconHealthy     = "●"
	IconProgressing = "◐"
	IconUnknown     = "○"
)

// StepIcon returns the badge glyph for a pipeline step status.
func StepIcon(status string) string {
	switch status {
	case "running":
		return IconRunning
	case "success":
		return IconSuccess
	case "failed":
		return IconError
	case "skipped":
		return IconSkipped
	case "degraded":
		return IconDegraded
	case "interrupted":
		return IconInterrupted
	default:
		return IconPending
	}
}

// HealthIcon returns the glyph for a service health state.
func HealthIcon(health string) string {
	switch health {
	case "Healthy":
		return IconHealthy
	case "Progressing":
		return IconProgressing
	case "Degraded", "Missing":
		return IconError
	case "Suspended":
		return IconPause
	default:
		return IconUnknown
	}
}

// RunIcon returns the glyph for a run's overall status.
func RunIcon(status string) string {
	switch status {
	case "success":
		return IconSuccess
	case "degraded":
		return IconWarning
	case "failed":
		return IconError
	default:
		return IconRunning
	}
}

// LogLevelIcon returns the glyph for a dashboard log level.
func LogLevelIcon(level string) string {
	switch level {
	case "e":
		return IconError
	case "w":
		return IconWarning
	case "s":
		return IconSuccess
	case "h":
		return IconBullet
	case "i", "c", "d":
		return IconInfo
	default:
		return IconBullet
	}
}
