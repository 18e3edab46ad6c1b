package discovery

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/normalize"
)

// keywordFamilies group column-name fragments that denote the same purpose.
var keywordFamilies = map[string][]string{
	"amount":  {"amount", "montant", "amt", "mnt", "valeur", "value", "sum", "somme"},
	"date":    {"date", "dt", "jour", "day"},
	"time":    {"time", "heure", "hour", "hms"},
	"service": {"service", "product", "produit", "operation", "op"},
	"agency":  {"agency", "agence", "branch", "agent", "office"},
}

var familyOrder = []string{"amount", "date", "time", "service", "agency"}

// canonicalName lower-cases name, strips accents and drops everything that
// is not a letter or digit.
func canonicalName(name string) string {
	name = strings.ToLower(normalize.RemoveAccents(name))
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NameSimilarity scores two column names in [0,1] using edit distance on
// their canonical forms. Containment scores at least 0.8.
func NameSimilarity(a, b string) float64 {
	ca, cb := canonicalName(a), canonicalName(b)
	if ca == "" || cb == "" {
		return 0
	}
	if ca == cb {
		return 1
	}
	maxLen := len([]rune(ca))
	if l := len([]rune(cb)); l > maxLen {
		maxLen = l
	}
	score := 1 - float64(levenshtein.ComputeDistance(ca, cb))/float64(maxLen)
	if strings.Contains(ca, cb) || strings.Contains(cb, ca) {
		if score < 0.8 {
			score = 0.8
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

// IsSimilarColumn pairs same-purpose columns with differing names: equal
// canonical names, containment in either direction, or a keyword of the same
// family on both sides.
func IsSimilarColumn(a, b string) bool {
	ca, cb := canonicalName(a), canonicalName(b)
	if ca == "" || cb == "" {
		return false
	}
	if ca == cb || strings.Contains(ca, cb) || strings.Contains(cb, ca) {
		return true
	}
	fb := keywordFamiliesOf(b)
	for family := range keywordFamiliesOf(a) {
		if fb[family] {
			return true
		}
	}
	return false
}

func keywordFamiliesOf(name string) map[string]bool {
	tokens := tokenize(name)
	found := map[string]bool{}
	for _, family := range familyOrder {
		for _, kw := range keywordFamilies[family] {
			for _, tok := range tokens {
				if tok == kw || (len(kw) > 3 && strings.Contains(tok, kw)) {
					found[family] = true
				}
			}
		}
	}
	return found
}

var keyHints = []string{"id", "ref", "reference", "transaction", "txn", "trx", "num", "numero", "number", "code", "key"}

// looksLikeKey reports whether one of the name's tokens is an identifier hint.
func looksLikeKey(name string) bool {
	for _, tok := range tokenize(name) {
		for _, h := range keyHints {
			if tok == h || (len(h) > 3 && strings.HasPrefix(tok, h)) {
				return true
			}
		}
	}
	return false
}

func tokenize(name string) []string {
	name = strings.ToLower(normalize.RemoveAccents(name))
	return strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ProposeComparisonColumns pairs BO and partner columns for comparison,
// skipping the names excluded on each side. Exact canonical matches are paired first, then
// IsSimilarColumn is used for the remainder. Each column is used once.
func ProposeComparisonColumns(boColumns, partnerColumns []string, excludeBO, excludePartner map[string]bool) []models.ComparisonColumn {
	usedBO := map[string]bool{}
	usedPartner := map[string]bool{}
	var out []models.ComparisonColumn

	pair := func(match func(a, b string) bool) {
		for _, bc := range boColumns {
			if excludeBO[bc] || usedBO[bc] {
				continue
			}
			for _, pc := range partnerColumns {
				if excludePartner[pc] || usedPartner[pc] {
					continue
				}
				if !match(bc, pc) {
					continue
				}
				usedBO[bc], usedPartner[pc] = true, true
				out = append(out, models.ComparisonColumn{
					BOColumn:       bc,
					PartnerColumn:  pc,
					Tolerance:      models.DefaultTolerance,
					ComparisonType: models.ComparisonAuto,
				})
				break
			}
		}
	}

	pair(func(a, b string) bool { return canonicalName(a) == canonicalName(b) })
	pair(IsSimilarColumn)
	return out
}
