package language

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Auto asks the transcription engine to detect the spoken language.
const Auto = "auto"

// ErrUnknown reports a tag that cannot be parsed.
var ErrUnknown = errors.New("unknown language")

// commonCodes seeds the English-name index used to resolve engine output such
// as "english" or "brazilian portuguese" back to codes.
var commonCodes = []string{
	"af", "ar", "hy", "az", "be", "bs", "bg", "ca", "zh", "hr", "cs", "da", "nl",
	"en", "et", "fi", "fr", "gl", "de", "el", "he", "hi", "hu", "is", "id", "it",
	"ja", "kn", "kk", "ko", "lv", "lt", "mk", "ms", "mr", "mi", "ne", "no", "fa",
	"pl", "pt", "ro", "ru", "sr", "sk", "sl", "es", "sw", "sv", "tl", "ta", "th",
	"tr", "uk", "ur", "vi", "cy", "yue", "bn", "pa", "te", "ml", "gu", "my",
}

// bibliographic ISO 639-2/B codes still found in older container tags.
var bibliographic = map[string]string{
	"alb": "sq", "arm": "hy", "baq": "eu", "bur": "my", "chi": "zh", "cze": "cs",
	"dut": "nl", "fre": "fr", "geo": "ka", "ger": "de", "gre": "el", "ice": "is",
	"mac": "mk", "mao": "mi", "may": "ms", "per": "fa", "rum": "ro", "slo": "sk",
	"tib": "bo", "wel": "cy",
}

var byName map[string]string

func init() {
	byName = make(map[string]string, len(commonCodes)+4)
	namer := display.English.Languages()
	for _, code := range commonCodes {
		tag := language.Make(code)
		if name := namer.Name(tag); name != "" {
			byName[strings.ToLower(name)] = code
		}
	}
	// Whisper spells a few languages differently from CLDR.
	byName["castilian"] = "es"
	byName["flemish"] = "nl"
	byName["mandarin"] = "zh"
	byName["cantonese"] = "yue"
}

// IsAuto reports whether code requests auto-detection.
func IsAuto(code string) bool {
	return strings.EqualFold(strings.TrimSpace(code), Auto)
}

// Normalize returns the base ISO 639-1 code for code (or the ISO 639-3 code when
// no two-letter form exists). Empty input and "auto" normalize to Auto.
func Normalize(code string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(code))
	if trimmed == "" || trimmed == Auto {
		return Auto, nil
	}
	if mapped, ok := byName[trimmed]; ok {
		return mapped, nil
	}
	if mapped, ok := bibliographic[trimmed]; ok {
		return mapped, nil
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknown, code)
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", fmt.Errorf("%w: %q", ErrUnknown, code)
	}
	return base.String(), nil
}

// ToISO2 converts any recognized language code or name to its base code.
// Returns empty string for unrecognized input or "auto".
func ToISO2(code string) string {
	normalized, err := Normalize(code)
	if err != nil || normalized == Auto {
		return ""
	}
	return normalized
}

// ToISO3 converts any recognized language code to ISO 639-2/3 (3-letter), as
// used in container stream tags. Returns "und" when unknown.
func ToISO3(code string) string {
	normalized, err := Normalize(code)
	if err != nil || normalized == Auto {
		return "und"
	}
	base, err := language.ParseBase(normalized)
	if err != nil {
		return "und"
	}
	return base.ISO3()
}

// DisplayName returns a human-readable English language name.
func DisplayName(code string) string {
	normalized, err := Normalize(code)
	switch {
	case strings.TrimSpace(code) == "":
		return "Unknown"
	case err != nil:
		return strings.ToUpper(strings.TrimSpace(code))
	case normalized == Auto:
		return "Auto-detect"
	}
	if name := display.English.Languages().Name(language.Make(normalized)); name != "" {
		return name
	}
	return strings.ToUpper(normalized)
}

// Same reports whether a and b name the same base language. Auto never matches.
func Same(a, b string) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	if errA != nil || errB != nil || na == Auto || nb == Auto {
		return false
	}
	return na == nb
}
