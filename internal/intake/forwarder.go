package intake

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/secavis-relay/internal/notice"
)

// MediaPrefix starts every generated capture media name.
const MediaPrefix = "secavis_"

var errNoCapture = errors.New("result has no capture to upload")

// Field names of the intake form schema.
const (
	FieldFiscalID      = "numero_fiscal"
	FieldNoticeRef     = "reference_avis"
	FieldLastName      = "nom"
	FieldGivenNames    = "prenoms"
	FieldAddress       = "adresse"
	FieldPostalCode    = "code_postal"
	FieldCity          = "ville"
	FieldCapture       = "capture_avis"
	FieldHouseholdSize = "nombre_personnes"
)

// FieldValue is the intake wire shape of one field.
type FieldValue struct {
	Value string `json:"value"`
}

// Fields is the pushed field set keyed by field name.
type Fields map[string]FieldValue

type api interface {
	PostMedia(ctx context.Context, token, formID, name string, data []byte) error
	PushFields(ctx context.Context, token, formID, recipientID string, fields Fields) error
}

// Forwarder uploads the capture and pushes the notice fields. The two calls
// are sequential; a failed push leaves the uploaded media in place.
type Forwarder struct {
	api    api
	clock  notice.Clock
	logger *zap.Logger
}

// NewForwarder wires a Forwarder over client.
func NewForwarder(client api, clock notice.Clock, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{api: client, clock: clock, logger: logger.Named("forwarder")}
}

// MediaName derives the capture media name. Two forwards for the same form
// and recipient within one second collide.
func MediaName(formID, recipientID string, at time.Time) string {
	return MediaPrefix + formID + recipientID + at.Format("20060102150405") + ".jpg"
}

// BuildFields maps a finalized result onto the intake schema.
func BuildFields(ref notice.Reference, result notice.Result, mediaName string) Fields {
	var address, postal, city string
	if h := result.Household; h != nil {
		address, postal, city = h.Address, h.PostalCode, h.City
	}
	return Fields{
		FieldFiscalID:      {Value: ref.FiscalID},
		FieldNoticeRef:     {Value: ref.NoticeRef},
		FieldLastName:      {Value: result.Declarant1.LastName},
		FieldGivenNames:    {Value: result.Declarant1.GivenNames},
		FieldAddress:       {Value: address},
		FieldPostalCode:    {Value: postal},
		FieldCity:          {Value: city},
		FieldCapture:       {Value: mediaName},
		FieldHouseholdSize: {Value: strconv.Itoa(result.HouseholdSize())},
	}
}

// Forward implements notice.Forwarder.
func (f *Forwarder) Forward(ctx context.Context, target notice.ForwardTarget, ref notice.Reference, result notice.Result) error {
	const op = "intake.Forward"

	capture, err := result.CaptureBytes()
	if err != nil {
		return &notice.Error{Kind: notice.KindForward, Op: op, Err: err}
	}
	if len(capture) == 0 {
		return &notice.Error{Kind: notice.KindForward, Op: op, Err: errNoCapture}
	}
	name := MediaName(target.FormID, target.RecipientID, f.clock.Now())

	if err := f.api.PostMedia(ctx, target.Token, target.FormID, name, capture); err != nil {
		return &notice.Error{Kind: notice.KindForward, Op: op, Err: err}
	}
	if err := f.api.PushFields(ctx, target.Token, target.FormID, target.RecipientID, BuildFields(ref, result, name)); err != nil {
		f.logger.Warn("push failed after media upload", zap.String("media", name), zap.Error(err))
		return &notice.Error{Kind: notice.KindForward, Op: op, Err: err}
	}
	f.logger.Info("notice forwarded",
		zap.String("form_id", target.FormID),
		zap.String("recipient_id", target.RecipientID),
		zap.String("media", name),
	)
	return nil
}
