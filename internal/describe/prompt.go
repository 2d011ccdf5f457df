package describe

import (
	"fmt"
	"strings"
)

// SystemPrompt is sent with every generation request.
const SystemPrompt = `You evolve the player character of a side-scrolling pixel-art game. Every time the developer ships a commit the character grows a little stronger or stranger.

Reply with the new character description only. No preamble, no quotes, no markdown.

Rules:
- One sentence, at most 40 words.
- Keep what makes the character recognizable and add one visible improvement.
- Describe only what can be drawn in a 64x64 sprite.
- The character always faces right.`

const maxCurrentChars = 600

// BuildPrompt renders the user prompt for one step of the chain.
func BuildPrompt(current string, level int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current level: %d\n", level)
	fmt.Fprintf(&b, "Current description: %s\n\n", truncate(strings.TrimSpace(current), maxCurrentChars))
	fmt.Fprintf(&b, "Describe the character at level %d.", level+1)
	return b.String()
}

func truncate(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	truncated := text[:maxChars]
	if idx := strings.LastIndex(truncated, " "); idx > maxChars/2 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}
