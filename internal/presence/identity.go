package presence

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// palette holds the avatar colors participants are spread across.
var palette = []string{
	"#EF4444", // red
	"#F97316", // orange
	"#EAB308", // yellow
	"#22C55E", // green
	"#14B8A6", // teal
	"#3B82F6", // blue
	"#6366F1", // indigo
	"#A855F7", // purple
	"#EC4899", // pink
	"#06B6D4", // cyan
}

// DisplayName turns an identifier like "john-doe" into "John Doe".
func DisplayName(id string) string {
	words := strings.Split(id, "-")
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = unicode.ToUpper(r[0])
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Color maps an identifier onto the palette. The same identifier always gets
// the same color on every client.
func Color(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	return palette[h.Sum32()%uint32(len(palette))]
}

// IdentityFromName derives an identifier from a typed display name: lower
// case, whitespace runs collapsed into single dashes.
func IdentityFromName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}
