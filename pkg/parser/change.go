package parser

import (
	"errors"
	"fmt"
	"slices"

	"github.com/goccy/go-json"

	"standings/pkg/changestream"
)

// ErrMalformed marks messages that can never be processed and should be skipped
var ErrMalformed = errors.New("malformed change message")

// ParseResultChange decodes a Kafka message value into a ResultChange
func ParseResultChange(data []byte) (changestream.ResultChange, error) {
	var change changestream.ResultChange
	if err := json.Unmarshal(data, &change); err != nil {
		return changestream.ResultChange{}, fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}

	if change.ID == "" {
		return changestream.ResultChange{}, fmt.Errorf("%w: missing event ID", ErrMalformed)
	}
	if !slices.Contains(changestream.Operations, change.Operation) {
		return changestream.ResultChange{}, fmt.Errorf("%w: unexpected operation %q", ErrMalformed, change.Operation)
	}
	if change.MatchID == "" {
		return changestream.ResultChange{}, fmt.Errorf("%w: missing match ID", ErrMalformed)
	}
	return change, nil
}
