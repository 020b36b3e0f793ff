package service

import (
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("naija-nutri-hub/backend/internal/account/service")

// recordSpan marks span failed only for infrastructure errors. Business
// rejections such as a wrong password are normal outcomes.
func recordSpan(span trace.Span, err error) {
	if err == nil || isBusiness(err) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func isBusiness(err error) bool {
	for _, target := range []error{
		ErrDuplicateAccount, ErrInvalidInput, ErrInvalidCredentials, ErrAccountNotVerified, ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
