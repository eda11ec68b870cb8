package orchestrator

import (
	"context"
	"errors"
	"strings"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/retry"
)

type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindAsset         Kind = "asset"
	KindRateLimit     Kind = "rate_limit"
	KindPolicy        Kind = "policy"
	KindTransient     Kind = "transient"
	KindCancelled     Kind = "cancelled"
	KindUnknown       Kind = "unknown"
)

// Recoverable reports whether the ladder may act on this kind.
func (k Kind) Recoverable() bool {
	return k != KindConfiguration && k != KindCancelled
}

type keywordRule struct {
	kind     Kind
	keywords []string
}

// First matching rule wins, so the order matters: "input image ... limit"
// is an asset problem, not a quota problem.
var keywordTable = []keywordRule{
	{KindAsset, []string{"input image", "image format", "reference image", "invalid image"}},
	{KindRateLimit, []string{"quota", "rate limit", "limit", "resource_exhausted", "429"}},
	{KindPolicy, []string{"safety", "policy", "blocked", "responsible ai"}},
	{KindTransient, []string{"timeout", "timed out", "deadline", "network", "connection", "unavailable", "econnreset", "503", "500"}},
}

// Classify maps a failure to a Kind. Structured signals (error codes, HTTP
// status, net errors) are consulted first; the keyword table only handles
// errors that carry none of them.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if k, ok := classifyStructured(err); ok {
		return k
	}
	return classifyMessage(err.Error())
}

func classifyStructured(err error) (Kind, bool) {
	switch {
	case internalerrors.IsCancelled(err):
		return KindCancelled, true
	case internalerrors.HasCode(err, internalerrors.ErrConfiguration):
		return KindConfiguration, true
	case internalerrors.HasCode(err, internalerrors.ErrAsset):
		return KindAsset, true
	case internalerrors.HasCode(err, internalerrors.ErrRateLimited):
		return KindRateLimit, true
	case internalerrors.HasCode(err, internalerrors.ErrPolicy):
		return KindPolicy, true
	case internalerrors.HasCode(err, internalerrors.ErrTransient),
		internalerrors.HasCode(err, internalerrors.ErrTimeout):
		return KindTransient, true
	}

	if status, ok := retry.StatusCode(err); ok {
		switch {
		case status == 429:
			return KindRateLimit, true
		case status >= 500 && status <= 599:
			return KindTransient, true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || retry.IsNetworkError(err) {
		return KindTransient, true
	}
	return "", false
}

func classifyMessage(msg string) Kind {
	msg = strings.ToLower(msg)
	for _, rule := range keywordTable {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.kind
			}
		}
	}
	return KindUnknown
}
