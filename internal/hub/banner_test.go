package hub

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatIntentBanner(t *testing.T) {
	banner := FormatIntentBanner("debug auth", false, time.Hour)
	assert.Equal(t, "\n"+strings.Repeat("=", 60)+"\nCONVERSATION FOCUS: debug auth\n"+strings.Repeat("=", 60), banner)
	assert.NotContains(t, banner, "GUIDELINES")
}

func TestFormatIntentBannerWithGuidelines(t *testing.T) {
	banner := FormatIntentBanner("debug auth", true, time.Hour)
	assert.Contains(t, banner, "CONVERSATION FOCUS: debug auth")
	assert.Contains(t, banner, strings.Repeat("=", 60))
	assert.Contains(t, banner, "\n\nGUIDELINES:\n- Stay focused on the topic above\n")
	assert.True(t, strings.HasSuffix(banner, "- Idle conversations will auto-disconnect after 60 minutes\n"))
	assert.Equal(t, 4, strings.Count(banner, "\n- "))
}

func TestFormatIntentBannerTimeoutMinutes(t *testing.T) {
	assert.Contains(t, FormatIntentBanner("x", true, 5*time.Minute), "after 5 minutes")
	assert.Contains(t, FormatIntentBanner("x", true, 90*time.Second), "after 2 minutes")
	assert.Contains(t, FormatIntentBanner("x", true, time.Second), "after 1 minutes")
}

func TestTimeoutNotice(t *testing.T) {
	assert.Equal(t, "Session disconnected due to 60 minutes of inactivity", timeoutNotice(time.Hour))
}
