package engine

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	MaxNameRunes   = 24
	MaxRoomCodeLen = 24
	MaxKeyLen      = 64
)

var hexColor = regexp.MustCompile(`^#?([0-9a-fA-F]{6})$`)

// NormalizeName trims, collapses whitespace and caps the name at
// MaxNameRunes. It returns "" when nothing printable is left.
func NormalizeName(name string) string {
	name = strings.Join(strings.Fields(norm.NFC.String(name)), " ")
	if r := []rune(name); len(r) > MaxNameRunes {
		name = strings.TrimSpace(string(r[:MaxNameRunes]))
	}
	return name
}

// NormalizeColor accepts #RRGGBB (the hash is optional) and returns it in
// upper case.
func NormalizeColor(color string) (string, bool) {
	m := hexColor.FindStringSubmatch(strings.TrimSpace(color))
	if m == nil {
		return "", false
	}
	return "#" + strings.ToUpper(m[1]), true
}

func NormalizeRoomCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return keep(code, MaxRoomCodeLen, func(r rune) bool {
		return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
	})
}

func NormalizeKey(key string) string {
	return keep(strings.TrimSpace(key), MaxKeyLen, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
	})
}

func keep(s string, max int, ok func(rune) bool) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() == max {
			break
		}
		if ok(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// defaultName and randomColor are swapped out in tests.
var defaultName = func() string {
	return fmt.Sprintf("Runner %d", 100+rand.IntN(900))
}

var randomColor = func() string {
	channel := func() int { return 40 + rand.IntN(176) }
	return fmt.Sprintf("#%02X%02X%02X", channel(), channel(), channel())
}
