// Package normalize canonicalizes free-text metadata typed into issue
// bodies, such as "language: eng" or "genre: Sci-Fi/Fantasy".
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/pagetrail/pagetrail/internal/domain"
)

// languageAliases maps ISO 639-2 codes (terminological and bibliographic)
// and common names to ISO 639-1 codes.
//
//nolint:gochecknoglobals // Static lookup table
var languageAliases = map[string]string{
	"eng": "en", "spa": "es", "fra": "fr", "fre": "fr", "deu": "de", "ger": "de",
	"ita": "it", "por": "pt", "nld": "nl", "dut": "nl", "rus": "ru", "jpn": "ja",
	"zho": "zh", "chi": "zh", "kor": "ko", "ara": "ar", "hin": "hi", "pol": "pl",
	"swe": "sv", "nor": "no", "dan": "da", "fin": "fi", "tur": "tr", "ell": "el",
	"gre": "el", "heb": "he", "ces": "cs", "cze": "cs", "hun": "hu", "ron": "ro",
	"rum": "ro", "ukr": "uk", "cat": "ca", "fas": "fa", "per": "fa", "lat": "la",
	"grc": "el", "gle": "ga", "cym": "cy", "wel": "cy", "isl": "is", "ice": "is",

	"english": "en", "spanish": "es", "castilian": "es", "french": "fr",
	"german": "de", "italian": "it", "portuguese": "pt", "dutch": "nl",
	"russian": "ru", "japanese": "ja", "chinese": "zh", "mandarin": "zh",
	"korean": "ko", "arabic": "ar", "hindi": "hi", "polish": "pl",
	"swedish": "sv", "norwegian": "no", "danish": "da", "finnish": "fi",
	"turkish": "tr", "greek": "el", "ancient greek": "el", "hebrew": "he",
	"czech": "cs", "hungarian": "hu", "romanian": "ro", "ukrainian": "uk",
	"catalan": "ca", "persian": "fa", "farsi": "fa", "latin": "la",
	"irish": "ga", "welsh": "cy", "icelandic": "is",
}

//nolint:gochecknoglobals // Static lookup table
var languageNames = map[string]string{
	"en": "English", "es": "Spanish", "fr": "French", "de": "German",
	"it": "Italian", "pt": "Portuguese", "nl": "Dutch", "ru": "Russian",
	"ja": "Japanese", "zh": "Chinese", "ko": "Korean", "ar": "Arabic",
	"hi": "Hindi", "pl": "Polish", "sv": "Swedish", "no": "Norwegian",
	"da": "Danish", "fi": "Finnish", "tr": "Turkish", "el": "Greek",
	"he": "Hebrew", "cs": "Czech", "hu": "Hungarian", "ro": "Romanian",
	"uk": "Ukrainian", "ca": "Catalan", "fa": "Persian", "la": "Latin",
	"ga": "Irish", "cy": "Welsh", "is": "Icelandic",
}

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	multipleHyphens = regexp.MustCompile(`-+`)
)

// LanguageCode converts a language written as an ISO 639-1 or 639-2 code,
// a locale ("en-US", "pt_BR") or a name in any case to its ISO 639-1 code.
// It returns "" for values it does not know.
func LanguageCode(raw string) string {
	s := strings.ToLower(strings.TrimSpace(stripNulls(raw)))
	if s == "" {
		return ""
	}
	if code, ok := languageAliases[s]; ok {
		return code
	}
	if i := strings.IndexAny(s, "-_"); i > 0 {
		s = s[:i]
	}
	if _, ok := languageNames[s]; ok && len(s) == 2 {
		return s
	}
	return languageAliases[s]
}

// Language returns the display name for raw ("eng" -> "English"). Values
// LanguageCode does not know come back trimmed but otherwise unchanged, so
// a rarer language is still recorded.
func Language(raw string) string {
	if name, ok := languageNames[LanguageCode(raw)]; ok {
		return name
	}
	return strings.TrimSpace(stripNulls(raw))
}

// Genre converts a genre to a slug.
// "Science Fiction" -> "science-fiction".
// "Sci-Fi/Fantasy" -> "sci-fi-fantasy".
// "Ficción" -> "ficcion".
func Genre(raw string) string {
	// Decompose accented characters, then drop what is left outside ASCII.
	s := norm.NFKD.String(raw)
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)

	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = multipleHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Metadata canonicalizes the language and genre of m in place. A value
// that normalizes to nothing is cleared so it never overwrites a stored one.
func Metadata(m *domain.Metadata) {
	if m.Language != nil {
		m.Language = nonEmpty(Language(*m.Language))
	}
	if m.Genre != nil {
		m.Genre = nonEmpty(Genre(*m.Genre))
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stripNulls(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}
