package notice

import (
	"strconv"
	"strings"
)

// MaxReferenceLength is the length both identifiers are truncated to.
const MaxReferenceLength = 13

// Reference is the (fiscal identifier, notice reference) pair identifying a
// single notice lookup. Build it with NewReference so both halves are
// normalized.
type Reference struct {
	FiscalID  string `json:"fiscalId"`
	NoticeRef string `json:"noticeRef"`
}

// NewReference normalizes both identifiers and returns the pair.
func NewReference(fiscalID, noticeRef string) Reference {
	return Reference{
		FiscalID:  Normalize(fiscalID),
		NoticeRef: Normalize(noticeRef),
	}
}

// Normalize strips every space and truncates to MaxReferenceLength characters.
// Normalizing an already normalized value is a no-op.
func Normalize(raw string) string {
	cleaned := strings.ReplaceAll(raw, " ", "")
	if r := []rune(cleaned); len(r) > MaxReferenceLength {
		cleaned = string(r[:MaxReferenceLength])
	}
	return cleaned
}

// Validate reports a validation error when either half is empty.
func (r Reference) Validate() error {
	switch {
	case r.FiscalID == "" && r.NoticeRef == "":
		return &Error{Kind: KindValidation, Op: "validate", Err: errMissingBoth}
	case r.FiscalID == "":
		return &Error{Kind: KindValidation, Op: "validate", Err: errMissingFiscalID}
	case r.NoticeRef == "":
		return &Error{Kind: KindValidation, Op: "validate", Err: errMissingNoticeRef}
	}
	return nil
}

// String renders the pair for logs.
func (r Reference) String() string {
	return r.FiscalID + "/" + r.NoticeRef
}

// Year derives the notice year from the first two digits of the notice
// reference (2000 + yy). It returns 0 when those digits are missing.
func (r Reference) Year() int {
	if len(r.NoticeRef) < 2 {
		return 0
	}
	yy, err := strconv.Atoi(r.NoticeRef[:2])
	if err != nil || yy < 0 {
		return 0
	}
	return 2000 + yy
}
