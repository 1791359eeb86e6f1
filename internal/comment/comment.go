// Package comment implements the tag codec that stores tag mappings inside
// free-text comment strings.
package comment

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tags maps tag names to their values. Values are strings, int64 or []byte.
type Tags map[string]any

// implicit tag names backed by dedicated host attributes instead of
// encoded comment text.
const (
	NameTag        = "__name__"
	ColorTag       = "__color__"
	TypeInfoTag    = "__typeinfo__"
	ExtraPrefixTag = "__extra_prefix__"
	ExtraSuffixTag = "__extra_suffix__"
)

const hexPrefix = "hex:"

// Decode parses an encoded comment string into a tag mapping.
// Malformed text decodes to an empty mapping, it never fails.
func Decode(text string) Tags {
	tags := Tags{}
	if text == "" {
		return tags
	}

	for _, line := range strings.Split(text, "\n") {
		name, value, ok := splitLine(line)
		if !ok {
			return Tags{}
		}
		tags[name] = decodeValue(value)
	}
	return tags
}

// Encode serializes a tag mapping into its canonical comment string.
// Keys are written in sorted order, the empty mapping encodes to "".
// Keys that the line format cannot represent are dropped, so that every
// encoded string decodes back to the mapping it was written from.
func Encode(tags Tags) string {
	if len(tags) == 0 {
		return ""
	}

	keys := make([]string, 0, len(tags))
	for key := range tags {
		if !ValidKey(key) {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	sb := strings.Builder{}
	for i, key := range keys {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteByte('[')
		sb.WriteString(key)
		sb.WriteString("] ")
		sb.WriteString(encodeValue(tags[key]))
	}
	return sb.String()
}

// Check returns whether text parses as a non-empty tag mapping. It
// decides whether a user-typed comment is treated as tag-structured
// data or as raw text. The text does not need to be in canonical form,
// re-encoding the decoded mapping normalizes it.
func Check(text string) bool {
	return len(Decode(text)) > 0
}

// Merge merges the non-repeatable tags into the repeatable ones.
// The repeatable side wins on key collisions, colliding keys are
// returned so that the caller can report them.
func Merge(repeatable, other Tags) (Tags, []string) {
	merged := make(Tags, len(repeatable)+len(other))
	var collisions []string

	for key, value := range other {
		merged[key] = value
	}
	for key, value := range repeatable {
		if _, ok := other[key]; ok {
			collisions = append(collisions, key)
		}
		merged[key] = value
	}

	sort.Strings(collisions)
	return merged, collisions
}

// ValidKey reports whether a key survives the "[name] value" line
// format. A closing bracket would terminate the name early and a
// newline would split the line, either one breaks the decode of the
// encoded text.
func ValidKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, "]\n")
}

// splitLine splits a "[name] value" line. A line without a value payload
// is accepted as an empty string value for decoding leniency.
func splitLine(line string) (string, string, bool) {
	if len(line) < 2 || line[0] != '[' {
		return "", "", false
	}
	end := strings.IndexByte(line, ']')
	if end <= 1 {
		return "", "", false
	}
	name := line[1:end]

	rest := line[end+1:]
	if rest == "" {
		return name, "", true
	}
	if rest[0] != ' ' {
		return "", "", false
	}
	return name, rest[1:], true
}

func encodeValue(value any) string {
	switch v := value.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.FormatInt(int64(v), 10)
	case []byte:
		return hexPrefix + hex.EncodeToString(v)
	case string:
		if needsQuoting(v) {
			return strconv.Quote(v)
		}
		return v
	default:
		return strconv.Quote(fmt.Sprint(v))
	}
}

func decodeValue(text string) any {
	if isInteger(text) {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i
		}
		return text
	}
	if rest, ok := strings.CutPrefix(text, hexPrefix); ok {
		if b, err := hex.DecodeString(rest); err == nil {
			return b
		}
		return text
	}
	if strings.HasPrefix(text, `"`) {
		if s, err := strconv.Unquote(text); err == nil {
			return s
		}
	}
	return text
}

// needsQuoting reports whether writing the string raw would be ambiguous
// with one of the other value encodings or break the line format.
func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	if s != strings.TrimSpace(s) {
		return true
	}
	if strings.ContainsAny(s, "\n") {
		return true
	}
	if strings.HasPrefix(s, `"`) || strings.HasPrefix(s, hexPrefix) {
		return true
	}
	return isInteger(s)
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	digits := s
	if s[0] == '-' || s[0] == '+' {
		digits = s[1:]
	}
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
