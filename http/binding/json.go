package binding

import (
	"io"

	"github.com/leeforge/mediaedit/json"
)

type DecodeOptions struct {
	// useNumber decodes numbers into json.Number instead of float64.
	useNumber bool
	// disallowUnknownFields rejects fields the target struct does not declare.
	disallowUnknownFields bool
}

// Option tunes JSON decoding.
type Option func(*DecodeOptions)

func WithUseNumber() Option {
	return func(opts *DecodeOptions) {
		opts.useNumber = true
	}
}

func WithDisallowUnknownFields() Option {
	return func(opts *DecodeOptions) {
		opts.disallowUnknownFields = true
	}
}

func applyDecodeOptions(opts ...Option) *DecodeOptions {
	options := &DecodeOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func decodeJson(r io.Reader, v any, opts ...Option) error {
	options := applyDecodeOptions(opts...)

	decoder := json.NewDecoder(r)
	if options.useNumber {
		decoder.Decoder.UseNumber()
	}
	if options.disallowUnknownFields {
		decoder.Decoder.DisallowUnknownFields()
	}
	return decoder.Decode(v)
}
