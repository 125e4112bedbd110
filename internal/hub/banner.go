package hub

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const bannerWidth = 60

var bannerBorder = strings.Repeat("=", bannerWidth)

// FormatIntentBanner 渲染会话意图横幅。
//
// 横幅以两行 '=' 包围意图原文；includeGuidelines 为 true 时追加固定的四条对话守则，
// 其中最后一条提示空闲断开的分钟数，由 idleTimeout 换算而来。
func FormatIntentBanner(intent string, includeGuidelines bool, idleTimeout time.Duration) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(bannerBorder)
	b.WriteString("\nCONVERSATION FOCUS: ")
	b.WriteString(intent)
	b.WriteString("\n")
	b.WriteString(bannerBorder)

	if includeGuidelines {
		b.WriteString("\n\nGUIDELINES:\n")
		b.WriteString("- Stay focused on the topic above\n")
		b.WriteString("- When the topic is fully understood and resolved, naturally conclude the conversation\n")
		b.WriteString("- Either party can end by saying the discussion is complete\n")
		fmt.Fprintf(&b, "- Idle conversations will auto-disconnect after %d minutes\n", idleMinutes(idleTimeout))
	}
	return b.String()
}

// idleMinutes 向上取整到分钟，且至少为 1。
func idleMinutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}

func timeoutNotice(idleTimeout time.Duration) string {
	return fmt.Sprintf("Session disconnected due to %d minutes of inactivity", idleMinutes(idleTimeout))
}
