package profile

import (
	"strconv"
	"strings"
	"unicode"
)

// Snapshot is one extracted view of a profile: the raw text plus the
// structured fields the change detector compares.
type Snapshot struct {
	Text      string
	Name      string
	Age       int
	Interests []string
}

// Empty reports whether the snapshot carries no text and no features.
func (s Snapshot) Empty() bool {
	return strings.TrimSpace(s.Text) == "" && s.Name == "" && s.Age == 0 && len(s.Interests) == 0
}

// Parse builds a Snapshot from extracted screen text. The extractor
// returns loosely labeled lines, so parsing is tolerant: labeled
// "name:"/"age:"/"interests:" lines win, with a "Name, 28" first-line
// fallback.
func Parse(text string) Snapshot {
	s := Snapshot{Text: text}
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "name:"):
			if s.Name == "" {
				s.Name = strings.TrimSpace(line[len("name:"):])
			}
		case strings.HasPrefix(lower, "age:"):
			if s.Age == 0 {
				s.Age = parseAge(strings.TrimSpace(line[len("age:"):]))
			}
		case strings.HasPrefix(lower, "interests:"):
			if s.Interests == nil {
				s.Interests = splitList(line[len("interests:"):])
			}
		}
	}
	if s.Name == "" || s.Age == 0 {
		name, age := parseHeader(lines)
		if s.Name == "" {
			s.Name = name
		}
		if s.Age == 0 {
			s.Age = age
		}
	}
	return s
}

// parseHeader handles the common "Sarah, 28" first non-empty line.
func parseHeader(lines []string) (string, int) {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, rest, ok := strings.Cut(line, ",")
		if !ok {
			return "", 0
		}
		age := parseAge(strings.TrimSpace(rest))
		if age == 0 {
			return "", 0
		}
		return strings.TrimSpace(name), age
	}
	return "", 0
}

func parseAge(s string) int {
	digits := strings.Builder{}
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		} else if digits.Len() > 0 {
			break
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil || n < 18 || n > 99 {
		return 0
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// tokens lowercases the text and splits it into a word set.
func tokens(text string) map[string]struct{} {
	set := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len(w) >= 2 {
			set[w] = struct{}{}
		}
	}
	return set
}
