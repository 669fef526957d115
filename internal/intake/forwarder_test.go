package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/secavis-relay/internal/notice"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type call struct {
	method string
	name   string
	data   []byte
	fields Fields
}

type fakeAPI struct {
	calls    []call
	mediaErr error
	pushErr  error
}

func (f *fakeAPI) PostMedia(_ context.Context, _, _, name string, data []byte) error {
	f.calls = append(f.calls, call{method: "media", name: name, data: data})
	return f.mediaErr
}

func (f *fakeAPI) PushFields(_ context.Context, _, _, _ string, fields Fields) error {
	f.calls = append(f.calls, call{method: "push", fields: fields})
	return f.pushErr
}

var (
	fwdRef    = notice.NewReference("1234567890123", "9876543210123")
	fwdTarget = notice.ForwardTarget{Token: "tok", FormID: "228400", RecipientID: "42"}
	fwdAt     = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
)

func fwdResult() notice.Result {
	r := notice.Result{
		Declarant1: notice.Declarant{LastName: "DUPONT", GivenNames: "Jean"},
		Declarant2: &notice.Declarant{LastName: "MARTIN", GivenNames: "Anne"},
		Dependents: 2,
		Household:  &notice.Household{Address: "12 Rue Exemple", PostalCode: "75001", City: "Paris"},
	}
	return notice.WithCapture(r, []byte{0xff, 0xd8, 0xff})
}

func TestMediaName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "secavis_22840042"+"20240309140507.jpg", MediaName("228400", "42", fwdAt))
}

func TestBuildFields(t *testing.T) {
	t.Parallel()

	fields := BuildFields(fwdRef, fwdResult(), "m.jpg")
	require.Len(t, fields, 9)
	require.Equal(t, "1234567890123", fields[FieldFiscalID].Value)
	require.Equal(t, "9876543210123", fields[FieldNoticeRef].Value)
	require.Equal(t, "DUPONT", fields[FieldLastName].Value)
	require.Equal(t, "Jean", fields[FieldGivenNames].Value)
	require.Equal(t, "12 Rue Exemple", fields[FieldAddress].Value)
	require.Equal(t, "75001", fields[FieldPostalCode].Value)
	require.Equal(t, "Paris", fields[FieldCity].Value)
	require.Equal(t, "m.jpg", fields[FieldCapture].Value)
	require.Equal(t, "4", fields[FieldHouseholdSize].Value)
}

func TestForwardUploadsThenPushes(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	f := NewForwarder(api, fixedClock{fwdAt}, nil)
	require.NoError(t, f.Forward(context.Background(), fwdTarget, fwdRef, fwdResult()))

	require.Len(t, api.calls, 2)
	require.Equal(t, "media", api.calls[0].method)
	require.Equal(t, []byte{0xff, 0xd8, 0xff}, api.calls[0].data)
	require.Equal(t, "push", api.calls[1].method)
	require.Equal(t, api.calls[0].name, api.calls[1].fields[FieldCapture].Value)
}

func TestForwardMediaFailureSkipsPush(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{mediaErr: errors.New("413")}
	f := NewForwarder(api, fixedClock{fwdAt}, nil)
	err := f.Forward(context.Background(), fwdTarget, fwdRef, fwdResult())
	require.True(t, notice.IsKind(err, notice.KindForward))
	require.Len(t, api.calls, 1)
}

func TestForwardPushFailureKeepsMedia(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pushErr: errors.New("502")}
	f := NewForwarder(api, fixedClock{fwdAt}, nil)
	err := f.Forward(context.Background(), fwdTarget, fwdRef, fwdResult())
	require.True(t, notice.IsKind(err, notice.KindForward))
	require.Len(t, api.calls, 2)
}

func TestForwardWithoutCaptureUploadsNothing(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	f := NewForwarder(api, fixedClock{fwdAt}, nil)
	res := fwdResult()
	res.Capture = ""
	err := f.Forward(context.Background(), fwdTarget, fwdRef, res)
	require.True(t, notice.IsKind(err, notice.KindForward))
	require.ErrorIs(t, err, errNoCapture)
	require.Empty(t, api.calls)
}
