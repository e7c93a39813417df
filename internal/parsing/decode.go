package parsing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedFragments is returned when input is not a list of fragment objects
var ErrMalformedFragments = errors.New("malformed fragments")

type wireFragment struct {
	Text        *string   `json:"text"`
	Confidence  float64   `json:"confidence"`
	BoundingBox []float64 `json:"bbox"`
}

// DecodeFragments reads a JSON array of fragments. Every element must be an
// object with a string "text"; confidence defaults to 0 and bbox is optional.
func DecodeFragments(r io.Reader) ([]Fragment, error) {
	var wire []*wireFragment
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFragments, err)
	}
	if wire == nil {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrMalformedFragments)
	}

	fragments := make([]Fragment, 0, len(wire))
	for i, w := range wire {
		if w == nil || w.Text == nil {
			return nil, fmt.Errorf("%w: fragment %d has no text", ErrMalformedFragments, i)
		}
		fragments = append(fragments, Fragment{
			Text:        *w.Text,
			Confidence:  w.Confidence,
			BoundingBox: w.BoundingBox,
		})
	}
	return fragments, nil
}
