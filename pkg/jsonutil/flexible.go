// Package jsonutil tolerates the loose typing of LLM JSON output.
// Providers asked for {"score": 82} routinely return "82", 82.0, or a
// bare string where an array was requested; these types absorb that
// instead of failing the whole parse.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FlexibleInt unmarshals from a JSON number or a numeric string.
// Fractional values are rounded to the nearest integer.
type FlexibleInt int

func (f *FlexibleInt) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = FlexibleInt(math.Round(num))
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return fmt.Errorf("not a numeric string: %q", str)
		}
		*f = FlexibleInt(math.Round(parsed))
		return nil
	}

	return fmt.Errorf("expected number or numeric string, got %s", string(data))
}

// FlexibleStrings unmarshals from a JSON array of strings or a single
// bare string, which becomes a one-element slice. Null and empty input
// yield nil.
type FlexibleStrings []string

func (f *FlexibleStrings) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*f = nil
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*f = nil
			return nil
		}
		*f = []string{single}
		return nil
	}

	return fmt.Errorf("expected string array or string, got %s", string(data))
}
