package analyst

import "strings"

// FindCode scans a reply for the first fenced code block tagged with lang and
// returns its interior. Only the first block is honored; a missing closing
// fence means "no code found", not an error.
func FindCode(reply, lang string) (string, bool) {
	opener := "```" + lang
	start := strings.Index(reply, opener)
	if start == -1 {
		return "", false
	}
	start += len(opener)
	end := strings.Index(reply[start:], "```")
	if end == -1 {
		return "", false
	}
	return reply[start : start+end], true
}
