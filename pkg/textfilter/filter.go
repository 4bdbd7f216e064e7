// Package textfilter tidies NPC replies: it drops a speaker label or
// wrapping quotes the model added, and softens profanity for family ratings.
package textfilter

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// softer maps each filtered word to its replacement.
var softer = map[string]string{
	"fuck":         "fudge",
	"shit":         "shoot",
	"damn":         "dang",
	"hell":         "heck",
	"ass":          "butt",
	"bitch":        "jerk",
	"bastard":      "jerk",
	"crap":         "crud",
	"piss":         "ticked",
	"cock":         "[censored]",
	"dick":         "jerk",
	"pussy":        "[censored]",
	"whore":        "[censored]",
	"slut":         "[censored]",
	"fag":          "[censored]",
	"retard":       "[censored]",
	"nigger":       "[censored]",
	"nigga":        "[censored]",
	"spic":         "[censored]",
	"chink":        "[censored]",
	"kike":         "[censored]",
	"motherfucker": "mother-trucker",
	"goddamn":      "gosh-dang",
	"asshole":      "jerk",
	"dumbass":      "dummy",
	"jackass":      "jerk",
	"bullshit":     "baloney",
	"horseshit":    "nonsense",
	"dipshit":      "dummy",
	"shithead":     "jerk",
	"dickhead":     "jerk",
	"prick":        "jerk",
	"douchebag":    "jerk",
}

var profanityPattern = compileProfanity()

// compileProfanity builds one alternation, longest words first.
func compileProfanity() *regexp.Regexp {
	words := make([]string, 0, len(softer))
	for w := range softer {
		words = append(words, regexp.QuoteMeta(w))
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)s?\b`)
}

var quotePairs = map[rune]rune{'"': '"', '“': '”', '\'': '\''}

// Filter cleans replies for one content rating. The zero value only tidies.
type Filter struct {
	soften bool
}

// New returns a Filter for rating. G, PG and PG-13 soften profanity.
func New(rating string) *Filter {
	return &Filter{soften: FiltersProfanity(rating)}
}

// FiltersProfanity reports whether rating calls for softened language.
func FiltersProfanity(rating string) bool {
	switch strings.ToUpper(strings.TrimSpace(rating)) {
	case "G", "PG", "PG13", "PG-13":
		return true
	default:
		return false
	}
}

// Clean returns reply without a leading "speaker:" label, without quotes
// wrapping the whole reply, and with profanity softened when the rating
// asks for it.
func (f *Filter) Clean(speaker, reply string) string {
	reply = strings.TrimSpace(reply)

	if speaker != "" {
		if label, rest, ok := strings.Cut(reply, ":"); ok {
			label = strings.Trim(strings.TrimSpace(label), "*_")
			if strings.EqualFold(label, speaker) {
				reply = strings.TrimSpace(rest)
			}
		}
	}

	reply = unquote(reply)

	if f != nil && f.soften {
		reply = profanityPattern.ReplaceAllStringFunc(reply, func(match string) string {
			return matchCase(match, replacementFor(strings.ToLower(match)))
		})
	}
	return reply
}

// replacementFor handles a plain or plural filtered word.
func replacementFor(word string) string {
	if r, ok := softer[word]; ok {
		return r
	}
	r := softer[strings.TrimSuffix(word, "s")]
	if strings.HasPrefix(r, "[") {
		return r
	}
	return r + "s"
}

// ContainsProfanity reports whether text has any filtered word.
func ContainsProfanity(text string) bool {
	return profanityPattern.MatchString(text)
}

func unquote(s string) string {
	runes := []rune(s)
	if len(runes) < 2 {
		return s
	}
	closing, ok := quotePairs[runes[0]]
	if !ok || runes[len(runes)-1] != closing {
		return s
	}
	inner := string(runes[1 : len(runes)-1])
	// "Hi," she said. "Bye." keeps its quotes
	if strings.ContainsRune(inner, runes[0]) || strings.ContainsRune(inner, closing) {
		return s
	}
	return strings.TrimSpace(inner)
}

// matchCase gives replacement the letter case of original.
func matchCase(original, replacement string) string {
	switch {
	case strings.ToUpper(original) == original:
		return strings.ToUpper(replacement)
	case strings.ToLower(original) == original:
		return replacement
	}

	title := cases.Title(language.English)
	if title.String(strings.ToLower(original)) == original {
		return title.String(replacement)
	}

	orig := []rune(original)
	out := []rune(replacement)
	for i, r := range out {
		if i < len(orig) && unicode.IsUpper(orig[i]) {
			out[i] = unicode.ToUpper(r)
		} else {
			out[i] = unicode.ToLower(r)
		}
	}
	return string(out)
}
