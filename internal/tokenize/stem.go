package tokenize

import "strings"

// suffixRules is an ordered list of suffix -> replacement pairs applied
// by Stem. Order matters: longer, more specific suffixes are tried
// before shorter ones. After "ing", "edly" or "ed" is stripped, a
// doubled final consonant other than l, s or z is undoubled, so
// "running" reduces to "run" rather than stopping at "runn".
var suffixRules = []struct {
	suffix      string
	replacement string
	minStemLen  int
}{
	{"ational", "ate", 3},
	{"tional", "tion", 3},
	{"ization", "ize", 3},
	{"fulness", "ful", 3},
	{"iveness", "ive", 3},
	{"ousness", "ous", 3},
	{"ing", "", 3},
	{"edly", "", 3},
	{"ed", "", 3},
	{"ies", "y", 1},
	{"es", "e", 2},
	{"s", "", 2},
	{"ly", "", 2},
}

// Stem applies a small set of deterministic suffix-stripping rules. It
// is not a full Porter stemmer, only a stable normalization: the same
// input always produces the same output, and unrecognized suffixes are
// left untouched.
func Stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			stem := strings.TrimSuffix(word, rule.suffix)
			if len(stem) < rule.minStemLen {
				continue
			}
			if rule.suffix == "ing" || rule.suffix == "edly" || rule.suffix == "ed" {
				if n := len(stem); n >= 2 && stem[n-1] == stem[n-2] && !strings.ContainsRune("aeioulsz", rune(stem[n-1])) {
					stem = stem[:n-1]
				}
			}
			return stem + rule.replacement
		}
	}
	return word
}
