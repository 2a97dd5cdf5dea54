package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"go.uber.org/zap"
)

// validator is implemented by record types that can reject decoded values.
type validator interface {
	Validate() error
}

// decodeLine extracts every leading JSON object from a single log line.
//
// Objects may be concatenated without a separator. Decoding stops at the
// first position where no complete object can be read and the rest of the
// line is dropped. A complete object that fails to unmarshal or validate is
// skipped and decoding resumes after it.
// It returns false when yield asked to stop.
func decodeLine[T any](line []byte, yield func(T) bool) bool {
	dec := json.NewDecoder(bytes.NewReader(line))
	for {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return true
			}
			if !completeValue(err) {
				zap.L().Debug("store: dropped malformed log fragment",
					zap.Int64("offset", dec.InputOffset()),
					zap.Error(err),
				)
				return true
			}
			zap.L().Debug("store: skipped undecodable record", zap.Error(err))
			continue
		}
		if v, ok := any(rec).(validator); ok {
			if err := v.Validate(); err != nil {
				zap.L().Debug("store: skipped invalid record", zap.Error(err))
				continue
			}
		}
		if !yield(rec) {
			return false
		}
	}
}

// completeValue reports whether a Decode error happened after the decoder
// consumed a whole JSON value, so the stream can continue past it.
func completeValue(err error) bool {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return false
	}
	return true
}
