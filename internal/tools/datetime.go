package tools

import (
	"context"
	"time"
)

// DateTimeLayout is the human-readable form returned by the
// get_date_and_time tool, e.g. "Friday, October 16, 2026, 03:04 PM".
const DateTimeLayout = "Monday, January 02, 2006, 03:04 PM"

// DateTimeTool returns the get_date_and_time tool. now is injectable
// for tests; nil means time.Now. The input is ignored.
func DateTimeTool(now func() time.Time) *Tool {
	if now == nil {
		now = time.Now
	}
	return &Tool{
		Name:        "get_date_and_time",
		Description: "Returns the current date and time in a human-readable format. Useful when you need to know the current date or time. The input is ignored.",
		Handler: func(_ context.Context, _ string) (string, error) {
			return now().Format(DateTimeLayout), nil
		},
	}
}
