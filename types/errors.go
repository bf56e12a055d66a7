package types

import "errors"

var (
	// gateway unreachable, timeout, not yet indexed
	ErrTransientIO = errors.New("transient io")
	// matches the entry point but fails field decoding, not a bridge event
	ErrMalformedEvent = errors.New("malformed event")
	// dust or overflow after precision normalisation
	ErrConversion = errors.New("conversion error")
	// destination executed the call and the verifier rejected it
	ErrSubmissionRejected = errors.New("submission rejected")
	// broadcast succeeded but the result could not be confirmed within the retry ceiling
	ErrSubmissionUnconfirmed = errors.New("submission unconfirmed")

	ErrNotFound = errors.New("not found")
)
