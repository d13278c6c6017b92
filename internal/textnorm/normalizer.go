// Package textnorm prepares submitted text for the synthesis engine:
// abbreviations and integers are spelled out, citation debris is stripped,
// and punctuation is reduced to the plain forms engines handle well.
package textnorm

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	decimalBase   = 10
	teensBoundary = 20
	hundred       = 100
	thousand      = 1000
	// maxSpelledInteger bounds the numbers spelled out as words; larger
	// numbers read better digit by digit anyway.
	maxSpelledInteger = 999999
)

// Regex patterns applied by the pipeline.
const (
	integerPattern    = `\d+`
	referencePattern  = `(?:\[\d+\]|\(\d+\)|[¹²³⁴⁵⁶⁷⁸⁹⁰]+)`
	citationPattern   = `\([^)]*\d{4}[^)]*\)|\b\w+\s+et\s+al\.`
	whitespacePattern = `\s+`
	urlPattern        = `https?://\S+`
	emailPattern      = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
)

// Normalizer holds the compiled patterns and replacers for the pipeline.
// It is safe for concurrent use.
type Normalizer struct {
	integers    *regexp.Regexp
	references  *regexp.Regexp
	citations   *regexp.Regexp
	whitespace  *regexp.Regexp
	urls        *regexp.Regexp
	emails      *regexp.Regexp
	shortForms  *strings.Replacer
	punctuation *strings.Replacer
}

// NewNormalizer compiles the pipeline once for reuse across requests.
func NewNormalizer() *Normalizer {
	shortForms := []string{
		"Mr.", "Mister",
		"Mrs.", "Misses",
		"Ms.", "Miss",
		"Dr.", "Doctor",
		"St.", "Saint",
		"Co.", "Company",
		"Ltd.", "Limited",
		"Corp.", "Corporation",
		"Inc.", "Incorporated",
	}

	punctuation := []string{
		"—", "-",
		"–", "-",
		"‒", "-",
		"…", "...",
		"“", `"`,
		"”", `"`,
		"‘", "'",
		"’", "'",
	}

	return &Normalizer{
		integers:    regexp.MustCompile(integerPattern),
		references:  regexp.MustCompile(referencePattern),
		citations:   regexp.MustCompile(citationPattern),
		whitespace:  regexp.MustCompile(whitespacePattern),
		urls:        regexp.MustCompile(urlPattern),
		emails:      regexp.MustCompile(emailPattern),
		shortForms:  strings.NewReplacer(shortForms...),
		punctuation: strings.NewReplacer(punctuation...),
	}
}

// Normalize runs the full pipeline over text. Empty input stays empty.
func (n *Normalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	// URLs and addresses are parked behind markers up front; spelling
	// their digits or flattening their dots would corrupt them.
	// References and citations go next, while their digits are still
	// digits.
	result, kept := n.keepVerbatim(text)
	result = n.shortForms.Replace(result)
	result = n.references.ReplaceAllString(result, "")
	result = n.citations.ReplaceAllString(result, "")
	result = n.spellOutIntegers(result)
	result = n.punctuation.Replace(result)
	result = strings.TrimSpace(n.whitespace.ReplaceAllString(result, " "))
	result = restoreVerbatim(result, kept)

	return ensureSentenceEnding(result)
}

// keepVerbatim swaps every URL and email address for a marker and records
// the originals for restoreVerbatim.
func (n *Normalizer) keepVerbatim(text string) (string, []string) {
	var kept []string

	park := func(pattern *regexp.Regexp) {
		text = pattern.ReplaceAllStringFunc(text, func(match string) string {
			kept = append(kept, match)

			return verbatimMarker(len(kept) - 1)
		})
	}

	park(n.urls)
	park(n.emails)

	return text, kept
}

func restoreVerbatim(text string, kept []string) string {
	for index, original := range kept {
		text = strings.Replace(text, verbatimMarker(index), original, 1)
	}

	return text
}

// verbatimMarker builds an all-letter token; anything with digits or
// punctuation would itself be rewritten by the pipeline.
func verbatimMarker(index int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"

	suffix := string(letters[index%len(letters)])
	for index /= len(letters); index > 0; index /= len(letters) {
		suffix = string(letters[index%len(letters)]) + suffix
	}

	return "qverbatim" + suffix + "q"
}

// spellOutIntegers replaces each integer run with its English words.
func (n *Normalizer) spellOutIntegers(text string) string {
	return n.integers.ReplaceAllStringFunc(text, func(digits string) string {
		value, err := strconv.Atoi(digits)
		if err != nil {
			return digits
		}

		return integerWords(value)
	})
}

// ensureSentenceEnding closes the text with terminal punctuation so the
// engine does not trail off mid-prosody.
func ensureSentenceEnding(text string) string {
	if text == "" {
		return ""
	}

	lastRune, _ := utf8.DecodeLastRuneInString(text)

	switch lastRune {
	case '.', '!', '?':
		return text
	default:
		return text + "."
	}
}

var (
	wordsOnes = []string{
		"", "one", "two", "three", "four", "five",
		"six", "seven", "eight", "nine",
	}
	wordsTeens = []string{
		"ten", "eleven", "twelve", "thirteen", "fourteen",
		"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
	}
	wordsTens = []string{
		"", "", "twenty", "thirty", "forty", "fifty",
		"sixty", "seventy", "eighty", "ninety",
	}
)

// integerWords converts value to English words. Values outside
// [0, maxSpelledInteger] come back as digits.
func integerWords(value int) string {
	if value < 0 || value > maxSpelledInteger {
		return strconv.Itoa(value)
	}

	if value == 0 {
		return "zero"
	}

	var parts []string

	if thousands := value / thousand; thousands > 0 {
		parts = append(parts, wordsUnderThousand(thousands)+" thousand")
		value %= thousand
	}

	if value > 0 {
		parts = append(parts, wordsUnderThousand(value))
	}

	return strings.Join(parts, " ")
}

func wordsUnderThousand(value int) string {
	var parts []string

	if hundreds := value / hundred; hundreds > 0 {
		parts = append(parts, wordsOnes[hundreds]+" hundred")
		value %= hundred
	}

	if value > 0 {
		parts = append(parts, wordsUnderHundred(value))
	}

	return strings.Join(parts, " ")
}

func wordsUnderHundred(value int) string {
	switch {
	case value < decimalBase:
		return wordsOnes[value]
	case value < teensBoundary:
		return wordsTeens[value-decimalBase]
	default:
		result := wordsTens[value/decimalBase]
		if value%decimalBase > 0 {
			result += " " + wordsOnes[value%decimalBase]
		}

		return result
	}
}
