// Package normalize implements the per-column value transformation pipeline
// applied to reconciliation datasets before matching.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/stanstork/reconciler/internal/models"
)

// PadWidth is the width digit-only values are left-padded to.
const PadWidth = 8

var (
	nonNumeric  = regexp.MustCompile(`[^0-9.\-]`)
	specialChar = regexp.MustCompile(`[^A-Za-z0-9\s]`)
	digitsOnly  = regexp.MustCompile(`^[0-9]+$`)
)

var truthy = map[string]struct{}{
	"true": {}, "1": {}, "yes": {}, "y": {}, "t": {}, "oui": {}, "vrai": {}, "o": {},
}

// Apply runs the stages enabled by rule over value. A nil value stays nil.
func Apply(value *string, rule models.TransformationRule) *string {
	if value == nil {
		return nil
	}
	out := ApplyString(*value, rule)
	return &out
}

// ApplyString runs the pipeline on a non-null value. Stage order is fixed:
// format coercion, case, trim, special chars and substitutions, literal
// removal, accents, zero padding, regex replacement.
func ApplyString(value string, rule models.TransformationRule) string {
	v := coerceFormat(value, rule.FormatType)

	if rule.ToUpperCase {
		v = strings.ToUpper(v)
	}
	if rule.ToLowerCase {
		v = strings.ToLower(v)
	}
	if rule.TrimSpaces {
		v = strings.TrimSpace(v)
	}
	if rule.RemoveSpecialChars {
		v = RemoveSpecialChars(v)
	}
	for _, r := range rule.CharReplacements {
		if r.From == "" {
			continue
		}
		v = strings.ReplaceAll(v, r.From, r.To)
	}
	if rule.StripLiteral != "" {
		v = strings.ReplaceAll(v, rule.StripLiteral, "")
	}
	if rule.RemoveAccents {
		v = RemoveAccents(v)
	}
	if rule.PadZeros {
		v = PadZeros(v)
	}
	if rule.RegexReplace != "" {
		v = RegexReplace(v, rule.RegexReplace)
	}
	return v
}

func coerceFormat(v string, format models.FormatType) string {
	switch format {
	case models.FormatNumeric:
		return nonNumeric.ReplaceAllString(v, "")
	case models.FormatBoolean:
		if _, ok := truthy[strings.ToLower(strings.TrimSpace(v))]; ok {
			return "true"
		}
		return "false"
	default:
		return v
	}
}

// RemoveSpecialChars keeps ASCII letters, digits and whitespace.
func RemoveSpecialChars(v string) string {
	return specialChar.ReplaceAllString(v, "")
}

// RemoveAccents decomposes v and drops combining marks.
func RemoveAccents(v string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, v)
	if err != nil {
		return v
	}
	return out
}

// PadZeros left-pads a digit-only value to PadWidth after dropping its
// leading zeros. Values that are not pure digits come back unchanged, and
// values with more significant digits than PadWidth are never truncated.
func PadZeros(v string) string {
	if !digitsOnly.MatchString(v) {
		return v
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return v
	}
	canonical := d.String()
	if len(canonical) >= PadWidth {
		return canonical
	}
	return strings.Repeat("0", PadWidth-len(canonical)) + canonical
}

// RegexReplace applies a "pattern|replacement" expression. The split happens on the
// last '|' so patterns may use alternation. An invalid expression or pattern leaves
// v unchanged.
func RegexReplace(v, expr string) string {
	idx := strings.LastIndex(expr, "|")
	if idx <= 0 {
		return v
	}
	re, err := regexp.Compile(expr[:idx])
	if err != nil {
		return v
	}
	return re.ReplaceAllString(v, expr[idx+1:])
}
