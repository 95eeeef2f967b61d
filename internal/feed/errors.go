package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDateFound is returned when neither an entry nor its feed carries a date.
	ErrNoDateFound = errors.New("absolutely no date field was found in feed")
	// ErrDateIsNotRFC3339 is returned when an RFC-3339-only field can't be parsed.
	ErrDateIsNotRFC3339 = errors.New("date is not RFC-3339 compliant")
	// ErrDateIsNeitherRFC2822NorRFC3339 is returned when every parse attempt failed.
	ErrDateIsNeitherRFC2822NorRFC3339 = errors.New("date is neither RFC-2822 nor RFC-3339 compliant")
	// ErrUnknownFormat is returned for documents that are neither Atom nor RSS.
	ErrUnknownFormat = errors.New("content is neither Atom nor RSS")
)

// DateError carries the offending date text.
type DateError struct {
	Value string
	Err   error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Value)
}

func (e *DateError) Unwrap() error {
	return e.Err
}

// ExtractError reports that some entries of a feed document could not be
// turned into messages. The feed is skipped as a whole when this happens.
type ExtractError struct {
	FeedURL string
	Failed  int
	Total   int
	Errs    []error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("%d of %d entries of feed %s can't be read: %v",
		e.Failed, e.Total, e.FeedURL, errors.Join(e.Errs...))
}

func (e *ExtractError) Unwrap() []error {
	return e.Errs
}
