package jimeng

import (
	"fmt"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
)

// Business codes documented for the CV async task API.
const (
	codePreImgRiskNotPass   = 50411
	codePreTextRiskNotPass  = 50412
	codePostTextRiskNotPass = 50413
	codePostImgRiskNotPass  = 50511
	codeTextInvalid         = 50414
	codeRateLimited         = 50429
	codeConcurrencyLimited  = 50430
	codeInternalError       = 50500
	codeInternalRPCError    = 50501
)

// codeError maps a non-success business code to the shared taxonomy so the
// classifier does not have to sniff the message.
func codeError(action string, code, status int, message, requestID string) *internalerrors.Error {
	detail := fmt.Sprintf("%s: code=%d status=%d message=%s request_id=%s", action, code, status, message, requestID)
	c := code
	if c == codeSuccess || c == 0 {
		c = status
	}
	switch c {
	case codeRateLimited, codeConcurrencyLimited:
		return internalerrors.New(internalerrors.ErrRateLimited, "rate limited: "+detail, nil)
	case codePreImgRiskNotPass:
		return internalerrors.New(internalerrors.ErrAsset, "input image rejected: "+detail, nil)
	case codePreTextRiskNotPass, codePostTextRiskNotPass, codePostImgRiskNotPass, codeTextInvalid:
		return internalerrors.New(internalerrors.ErrPolicy, "content policy rejected: "+detail, nil)
	case codeInternalError, codeInternalRPCError:
		return internalerrors.New(internalerrors.ErrTransient, "upstream unavailable: "+detail, nil)
	default:
		return internalerrors.New(internalerrors.ErrUnknown, "business failed: "+detail, nil)
	}
}
