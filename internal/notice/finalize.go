package notice

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// addressPattern splits "<street> <5-digit postal code> <city>". The greedy
// first group makes the last five-digit run the postal code.
var addressPattern = regexp.MustCompile(`^(.*)([0-9]{5})(.*)$`)

// Finalize decomposes the household address into street, postal code and
// city. Results without a household, or whose address has no five-digit run,
// are returned unchanged. The input is not modified.
func Finalize(result Result) Result {
	if result.Household == nil || result.Household.Address == "" {
		return result
	}
	match := addressPattern.FindStringSubmatch(result.Household.Address)
	if match == nil {
		return result
	}
	household := *result.Household
	household.Address = strings.TrimSpace(match[1])
	household.PostalCode = match[2]
	household.City = strings.TrimSpace(match[3])
	result.Household = &household
	return result
}

// WithCapture attaches a rendered JPEG capture, base64-encoded.
func WithCapture(result Result, jpeg []byte) Result {
	result.Capture = base64.StdEncoding.EncodeToString(jpeg)
	return result
}

// CaptureBytes decodes the attached capture.
func (r Result) CaptureBytes() ([]byte, error) {
	if r.Capture == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(r.Capture)
}
