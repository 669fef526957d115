// Package parser extracts the structured notice from the portal's result
// page using goquery.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/secavis-relay/internal/notice"
)

const (
	// notFoundSelector marks the portal's "no matching notice" panel.
	notFoundSelector = "#nonTrouve"
	rowSelector      = "table tr"
	addressLabel     = "adresse déclarée"
)

// HTML implements notice.Parser over the portal markup.
type HTML struct{}

// New returns an HTML parser.
func New() *HTML {
	return &HTML{}
}

// Parse reads the result table. year is the notice year derived from the
// notice reference; it is copied into the household and year fields.
func (HTML) Parse(html string, year int) (notice.Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return notice.Result{}, fmt.Errorf("parse html: %w", err)
	}
	if doc.Find(notFoundSelector).Length() > 0 {
		return notice.Result{}, notice.ErrInvalidCredentials
	}

	var (
		res       notice.Result
		second    notice.Declarant
		address   []string
		inAddress bool
		matched   int
	)
	doc.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := normalizeLabel(cells.Eq(0).Text())
		first := cleanText(cells.Eq(1).Text())
		other := ""
		if cells.Length() > 2 {
			other = cleanText(cells.Eq(2).Text())
		}

		if label == "" {
			if inAddress && first != "" {
				address = append(address, first)
			}
			return
		}
		inAddress = false
		matched++

		switch {
		case label == "nom":
			res.Declarant1.LastName, second.LastName = first, other
		case label == "nom de naissance":
			res.Declarant1.BirthName, second.BirthName = first, other
		case label == "prénom(s)" || label == "prénoms":
			res.Declarant1.GivenNames, second.GivenNames = first, other
		case label == "date de naissance":
			res.Declarant1.BirthDate, second.BirthDate = first, other
		case strings.HasPrefix(label, addressLabel):
			inAddress = true
			if first != "" {
				address = append(address, first)
			}
		case strings.HasPrefix(label, "date de mise en recouvrement"):
			res.CollectionDate = first
		case strings.HasPrefix(label, "date d'établissement"):
			res.IssueDate = first
		case strings.HasPrefix(label, "nombre de part"):
			res.Shares = first
		case label == "situation de famille":
			res.FamilyStatus = first
		case strings.HasPrefix(label, "nombre de personne"):
			res.Dependents = int(valueOrZero(parseAmount(first)))
		case label == "revenu brut global":
			res.GrossIncome = parseAmount(first)
		case label == "revenu imposable":
			res.TaxableIncome = parseAmount(first)
		case strings.HasPrefix(label, "impôt sur le revenu net avant corrections"):
			res.TaxBeforeCorrections = parseAmount(first)
		case strings.HasPrefix(label, "montant de l'impôt"):
			res.TaxAmount = parseAmount(first)
		case label == "revenu fiscal de référence":
			res.ReferenceIncome = parseAmount(first)
		default:
			matched--
		}
	})

	if matched == 0 {
		return notice.Result{}, fmt.Errorf("parse html: no notice fields found")
	}
	if !second.Empty() {
		res.Declarant2 = &second
	}
	if year > 0 {
		res.TaxYear = year
		res.IncomeYear = year - 1
	}
	if len(address) > 0 {
		res.Household = &notice.Household{
			Year:    year,
			Address: strings.Join(address, " "),
		}
	}
	return res, nil
}

func normalizeLabel(s string) string {
	s = strings.ToLower(cleanText(s))
	s = strings.ReplaceAll(s, "’", "'")
	return strings.TrimRight(s, " :")
}

// cleanText collapses runs of whitespace (including non-breaking spaces).
func cleanText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// parseAmount keeps the digits of a figure such as "12 345 €" and returns
// nil when there are none.
func parseAmount(s string) *int64 {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func valueOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
