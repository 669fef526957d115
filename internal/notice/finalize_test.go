package notice

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalizeSplitsAddress(t *testing.T) {
	t.Parallel()

	in := Result{Household: &Household{Address: "12 Rue Exemple 75001 Paris"}}
	out := Finalize(in)

	require.Equal(t, "12 Rue Exemple", out.Household.Address)
	require.Equal(t, "75001", out.Household.PostalCode)
	require.Equal(t, "Paris", out.Household.City)
	require.Equal(t, "12 Rue Exemple 75001 Paris", in.Household.Address, "input must not be mutated")
}

func TestFinalizeUsesLastFiveDigitRun(t *testing.T) {
	t.Parallel()

	out := Finalize(Result{Household: &Household{Address: "BP 12345 Zone 67000 Strasbourg Cedex"}})
	require.Equal(t, "BP 12345 Zone", out.Household.Address)
	require.Equal(t, "67000", out.Household.PostalCode)
	require.Equal(t, "Strasbourg Cedex", out.Household.City)
}

func TestFinalizeLeavesUnmatchedAddress(t *testing.T) {
	t.Parallel()

	out := Finalize(Result{Household: &Household{Address: "Lieu-dit Les Pins 123"}})
	require.Equal(t, "Lieu-dit Les Pins 123", out.Household.Address)
	require.Empty(t, out.Household.PostalCode)
	require.Empty(t, out.Household.City)
}

func TestFinalizeWithoutHousehold(t *testing.T) {
	t.Parallel()

	out := Finalize(Result{Dependents: 1})
	require.Nil(t, out.Household)
	require.Equal(t, 1, out.Dependents)
}

func TestHouseholdSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, 3, Result{Dependents: 2}.HouseholdSize())
	require.Equal(t, 2, Result{Declarant2: &Declarant{LastName: "MARTIN"}}.HouseholdSize())
	require.Equal(t, 2, Result{Declarant2: &Declarant{GivenNames: "Marie"}}.HouseholdSize())
	require.Equal(t, 1, Result{Declarant2: &Declarant{}}.HouseholdSize())
}

func TestWithCaptureRoundTrip(t *testing.T) {
	t.Parallel()

	res := WithCapture(Result{}, []byte{0xff, 0xd8, 0xff})
	require.Equal(t, "/9j/", res.Capture)
	raw, err := res.CaptureBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xd8, 0xff}, raw)
}

func TestFormStateEncode(t *testing.T) {
	t.Parallel()

	form := FormState{Action: "https://portal/submit", Fields: map[string]string{"a": "1 2", "j_id_7:spi": "x"}}
	form.Set("j_id_7:spi", "123")
	require.Equal(t, "a=1+2&j_id_7%3Aspi=123", form.Encode())

	var empty FormState
	empty.Set("k", "v")
	require.Equal(t, "k=v", empty.Encode())
}
