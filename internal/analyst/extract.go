package analyst

import (
	"encoding/json"
	"strings"
)

// ExtractRecord recovers one structured record from an arbitrarily-formatted
// reply. It never fails: any parse problem yields a diagnostic Extraction
// carrying the reason and the original text.
//
// Recovery steps: prefer the interior of a ```json fence, then of any fence,
// then the raw text; strip //-style line comments; slice from the first '{'
// to the last '}'. The slice is knowingly wrong when a reply holds several
// unrelated JSON-looking fragments; leniency wins over that edge case.
func ExtractRecord(raw string) Extraction {
	text := raw

	if inner, ok := FindCode(text, "json"); ok {
		text = strings.TrimSpace(inner)
	} else if inner, ok := FindCode(text, ""); ok {
		text = strings.TrimSpace(inner)
	}

	text = stripLineComments(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return Extraction{
			Err: "could not find a JSON object in the response",
			Raw: raw,
		}
	}

	var record FinalRecord
	if err := json.Unmarshal([]byte(text[start:end+1]), &record); err != nil {
		return Extraction{
			Err: "decode JSON: " + err.Error(),
			Raw: raw,
		}
	}
	return Extraction{Record: &record}
}

// stripLineComments cuts each line at the first "//". Some collaborators
// annotate JSON fields with non-standard comments; the cut is deliberately
// naive and will also truncate a "//" inside a string value.
func stripLineComments(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "//"); idx != -1 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}
