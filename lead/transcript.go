package lead

import "strings"

// Flatten renders turns as "[mm:ss] content" lines, the form the
// extractor and the summarizer read. Speaker labels are left out so a
// reply like "Marcus" directly follows the question that prompted it.
func Flatten(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		lines = append(lines, "["+FormatTimestamp(t.StartOffsetSeconds)+"] "+content)
	}
	return strings.Join(lines, "\n")
}

// Labeled renders turns with a speaker name per line for people to read.
func Labeled(turns []Turn, assistantName string) string {
	if assistantName == "" {
		assistantName = "Assistant"
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		speaker := "Caller"
		if t.Role == RoleAgent {
			speaker = assistantName
		}
		lines = append(lines, "["+FormatTimestamp(t.StartOffsetSeconds)+"] "+speaker+": "+content)
	}
	return strings.Join(lines, "\n")
}

// CallerSpoke reports whether the caller said anything at all.
func CallerSpoke(turns []Turn) bool {
	for _, t := range turns {
		if t.Role == RoleUser && strings.TrimSpace(t.Content) != "" {
			return true
		}
	}
	return false
}
