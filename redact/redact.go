// Package redact scrubs secrets from text daf sends off the local machine:
// prompt text handed to the agent and comments pushed to the issue tracker.
// Detection layers a Shannon-entropy heuristic over the gitleaks rule set,
// and a value is redacted when either method flags it.
package redact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// tokenPattern matches runs long enough to be API keys or tokens.
var tokenPattern = regexp.MustCompile(`[A-Za-z0-9/+_=-]{10,}`)

// entropyThreshold is the minimum Shannon entropy for a token to count as a
// secret. 4.5 sits above common words and identifiers while typical API keys
// land well above 5.0.
const entropyThreshold = 4.5

var (
	detector     *detect.Detector
	detectorOnce sync.Once
)

func gitleaksDetector() *detect.Detector {
	detectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return
		}
		detector = d
	})
	return detector
}

// span is a byte range to redact.
type span struct{ start, end int }

// String replaces every detected secret in s with "REDACTED".
func String(s string) string {
	spans := findSecretSpans(s)
	if len(spans) == 0 {
		return s
	}

	var b strings.Builder
	prev := 0
	for _, r := range mergeSpans(spans) {
		b.WriteString(s[prev:r.start])
		b.WriteString("REDACTED")
		prev = r.end
	}
	b.WriteString(s[prev:])
	return b.String()
}

func findSecretSpans(s string) []span {
	var spans []span
	for _, loc := range tokenPattern.FindAllStringIndex(s, -1) {
		if shannonEntropy(s[loc[0]:loc[1]]) > entropyThreshold {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}

	d := gitleaksDetector()
	if d == nil {
		return spans
	}
	for _, f := range d.DetectString(s) {
		if f.Secret == "" {
			continue
		}
		// A finding reports the secret once; every occurrence is redacted.
		from := 0
		for {
			idx := strings.Index(s[from:], f.Secret)
			if idx < 0 {
				break
			}
			start := from + idx
			spans = append(spans, span{start, start + len(f.Secret)})
			from = start + len(f.Secret)
		}
	}
	return spans
}

func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, r := range spans[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// JSONLBytes redacts the string values of a JSONL transcript. Each line is
// parsed to find the values needing redaction, then the replacement happens
// on the raw line, so untouched lines keep their exact original bytes. The
// input slice is returned unchanged when nothing matched.
func JSONLBytes(b []byte) ([]byte, error) {
	s := string(b)
	redacted, err := jsonlContent(s)
	if err != nil {
		return nil, err
	}
	if redacted == s {
		return b, nil
	}
	return []byte(redacted), nil
}

func jsonlContent(content string) (string, error) {
	var b strings.Builder
	for i, line := range strings.Split(content, "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			b.WriteString(line)
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			// Not JSON; fall back to plain-text redaction.
			b.WriteString(String(line))
			continue
		}
		repls := jsonlReplacements(parsed)
		if len(repls) == 0 {
			b.WriteString(line)
			continue
		}
		result := line
		for _, r := range repls {
			origJSON, err := jsonQuote(r[0])
			if err != nil {
				return "", err
			}
			replJSON, err := jsonQuote(r[1])
			if err != nil {
				return "", err
			}
			result = strings.ReplaceAll(result, origJSON, replJSON)
		}
		b.WriteString(result)
	}
	return b.String(), nil
}

// jsonlReplacements walks a parsed JSON value and collects the unique
// (original, redacted) pairs for string values that need redaction.
func jsonlReplacements(v any) [][2]string {
	seen := make(map[string]bool)
	var repls [][2]string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case map[string]any:
			if skipObject(val) {
				return
			}
			for k, child := range val {
				if skipField(k) {
					continue
				}
				walk(child)
			}
		case []any:
			for _, child := range val {
				walk(child)
			}
		case string:
			redacted := String(val)
			if redacted != val && !seen[val] {
				seen[val] = true
				repls = append(repls, [2]string{val, redacted})
			}
		}
	}
	walk(v)
	return repls
}

// skipField excludes keys whose values are identifiers, not content:
// "signature" exactly, and anything ending in "id" or "ids". Redacting those
// would break transcript references.
func skipField(key string) bool {
	if key == "signature" {
		return true
	}
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, "id") || strings.HasSuffix(lower, "ids")
}

// skipObject excludes image and base64 payload objects; their data blobs are
// all high entropy and redacting them destroys the attachment.
func skipObject(obj map[string]any) bool {
	t, ok := obj["type"].(string)
	return ok && (strings.HasPrefix(t, "image") || t == "base64")
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := range len(s) {
		freq[s[i]]++
	}
	length := float64(len(s))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// jsonQuote returns the JSON encoding of s without HTML escaping, matching
// how transcript writers encode their strings.
func jsonQuote(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("json encode string: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
