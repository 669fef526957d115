package notice

import (
	"net/url"
	"time"
)

// Declarant holds the identity block printed for one taxpayer on the notice.
type Declarant struct {
	LastName   string `json:"nom"`
	BirthName  string `json:"nomNaissance,omitempty"`
	GivenNames string `json:"prenoms"`
	BirthDate  string `json:"dateNaissance,omitempty"`
}

// Empty reports whether the block carries no name at all.
func (d Declarant) Empty() bool {
	return d.LastName == "" && d.GivenNames == ""
}

// Household is the fiscal household section of the notice. Address is the raw
// address until the finalizer splits it into street, PostalCode and City.
type Household struct {
	Year       int    `json:"annee,omitempty"`
	Address    string `json:"adresse"`
	PostalCode string `json:"codePostal,omitempty"`
	City       string `json:"ville,omitempty"`
}

// Result is the structured outcome of a successful retrieval.
type Result struct {
	Declarant1           Declarant  `json:"declarant1"`
	Declarant2           *Declarant `json:"declarant2,omitempty"`
	CollectionDate       string     `json:"dateRecouvrement,omitempty"`
	IssueDate            string     `json:"dateEtablissement,omitempty"`
	Shares               string     `json:"nombreParts,omitempty"`
	FamilyStatus         string     `json:"situationFamille,omitempty"`
	Dependents           int        `json:"nombrePersonnesCharge"`
	GrossIncome          *int64     `json:"revenuBrutGlobal,omitempty"`
	TaxableIncome        *int64     `json:"revenuImposable,omitempty"`
	TaxBeforeCorrections *int64     `json:"impotRevenuNetAvantCorrections,omitempty"`
	TaxAmount            *int64     `json:"montantImpot,omitempty"`
	ReferenceIncome      *int64     `json:"revenuFiscalReference,omitempty"`
	TaxYear              int        `json:"anneeImpots,omitempty"`
	IncomeYear           int        `json:"anneeRevenus,omitempty"`
	Household            *Household `json:"foyerFiscal,omitempty"`
	Capture              string     `json:"capture,omitempty"`
}

// HouseholdSize counts the primary declarant, every dependent, and the
// second declarant when one with a name is present.
func (r Result) HouseholdSize() int {
	size := 1 + r.Dependents
	if r.Declarant2 != nil && !r.Declarant2.Empty() {
		size++
	}
	return size
}

// FormState is the login form scraped from the portal page: every named
// element's value plus the form's submission target.
type FormState struct {
	Action string
	Fields map[string]string
}

// Set overwrites a single field.
func (f *FormState) Set(name, value string) {
	if f.Fields == nil {
		f.Fields = make(map[string]string)
	}
	f.Fields[name] = value
}

// Encode renders the fields as an application/x-www-form-urlencoded body.
func (f FormState) Encode() string {
	values := make(url.Values, len(f.Fields))
	for name, value := range f.Fields {
		values.Set(name, value)
	}
	return values.Encode()
}

// RawPage is the rendered portal response after the form submission.
type RawPage struct {
	URL        string
	StatusCode int
	HTML       string
}

// Record is a persisted reference pair.
type Record struct {
	Reference
	RecordedAt time.Time `json:"recordedAt"`
}
