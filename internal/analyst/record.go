package analyst

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FinalRecord is the fixed-shape structured summary extracted at the end of a
// run. Every field is nullable: unknown-to-the-analysis fields stay nil.
type FinalRecord struct {
	Method                    *string     `json:"method"`
	CausalEffect              *FlexNumber `json:"causal_effect"`
	StandardDeviation         *FlexNumber `json:"standard_deviation"`
	TreatmentVariable         *string     `json:"treatment_variable"`
	RCT                       *bool       `json:"rct"`
	OutcomeVariable           *string     `json:"outcome_variable"`
	Mediators                 StringList  `json:"mediators"`
	Covariates                StringList  `json:"covariates"`
	InstrumentVariable        *string     `json:"instrument_variable"`
	RunningVariable           *string     `json:"running_variable"`
	TemporalVariable          *string     `json:"temporal_variable"`
	StatisticalTestResults    *FlexText   `json:"statistical_test_results"`
	ExplanationForModelChoice *FlexText   `json:"explanation_for_model_choice"`
	RegressionEquation        *string     `json:"regression_equation"`
}

// Extraction is what the result extractor always returns: either a parsed
// record or a diagnostic carrying the failure reason and the verbatim reply.
// It replaces ad hoc exception swallowing with an explicit error variant.
type Extraction struct {
	Record *FinalRecord `json:"record,omitempty"`
	Err    string       `json:"error,omitempty"`
	Raw    string       `json:"raw_response,omitempty"`
}

// OK reports whether a well-formed record was recovered.
func (e Extraction) OK() bool { return e.Record != nil && e.Err == "" }

// FlexNumber is a float64 that also accepts numeric strings, which some
// collaborators emit for numbers inside JSON. A value that parses as neither
// degrades to unknown instead of failing the enclosing record.
type FlexNumber float64

func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		s = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = FlexNumber(math.NaN())
		return nil
	}
	*n = FlexNumber(v)
	return nil
}

// MarshalJSON renders an unknown value as null.
func (n FlexNumber) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(n)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(n))
}

// Value returns the underlying float64.
func (n FlexNumber) Value() float64 { return float64(n) }

// Known reports whether the field carried a parseable number.
func (n *FlexNumber) Known() bool {
	return n != nil && !math.IsNaN(float64(*n))
}

// FlexText is free text that also accepts non-string JSON values, which are
// kept in their compact JSON form.
type FlexText string

func (t *FlexText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = FlexText(s)
		return nil
	}
	var compact json.RawMessage
	if err := json.Unmarshal(data, &compact); err != nil {
		return err
	}
	*t = FlexText(strings.TrimSpace(string(compact)))
	return nil
}

// StringList is a list of names that also accepts a single scalar, which
// collaborators frequently emit for one-element lists. A nil StringList means
// the field was absent or null.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*l = nil
		return nil
	}
	if len(s) > 0 && s[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make(StringList, 0, len(items))
		for _, item := range items {
			out = append(out, rawToString(item))
		}
		*l = out
		return nil
	}
	*l = StringList{rawToString(data)}
	return nil
}

func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
