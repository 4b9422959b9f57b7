package invoice

import "golang.org/x/text/language"

// Locale selects the language of user-facing labels.
type Locale int

const (
	Hebrew Locale = iota
	English
)

var (
	supportedLocales = []language.Tag{language.Hebrew, language.English}
	localeMatcher    = language.NewMatcher(supportedLocales)
)

// ParseLocale resolves a BCP 47 tag such as "he-IL" or "en" to the closest
// supported locale. Unknown or malformed tags resolve to Hebrew.
func ParseLocale(tag string) Locale {
	t, err := language.Parse(tag)
	if err != nil {
		return Hebrew
	}
	_, idx, conf := localeMatcher.Match(t)
	if conf == language.No {
		return Hebrew
	}
	return Locale(idx)
}

// Tag returns the language tag of l.
func (l Locale) Tag() language.Tag {
	if l < 0 || int(l) >= len(supportedLocales) {
		return language.Hebrew
	}
	return supportedLocales[l]
}

func (l Locale) String() string {
	return l.Tag().String()
}
