package log

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

func init() {
	zerolog.ErrorStackMarshaler = marshalStack
}

// marshalStack renders the stack trace recorded by cockroachdb/errors for
// the "stack" field of error records.
func marshalStack(err error) interface{} {
	if st := extractStacktrace(err); st != "" {
		return st
	}
	return nil
}

func extractStacktrace(err error) string {
	for _, payload := range errors.GetAllSafeDetails(err) {
		if len(payload.SafeDetails) > 0 && payload.SafeDetails[0] != "" {
			return payload.SafeDetails[0]
		}
	}
	return ""
}
