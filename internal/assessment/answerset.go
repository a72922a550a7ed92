package assessment

import (
	"encoding/json"
	"sort"
)

// AnswerSet is an order-independent set of option labels.
type AnswerSet map[string]struct{}

// NewAnswerSet builds a set from the given labels, dropping duplicates.
func NewAnswerSet(labels ...string) AnswerSet {
	s := make(AnswerSet, len(labels))
	for _, l := range labels {
		s[l] = struct{}{}
	}
	return s
}

// Has reports whether label is a member of the set.
func (s AnswerSet) Has(label string) bool {
	_, ok := s[label]
	return ok
}

// Labels returns the members in sorted order.
func (s AnswerSet) Labels() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy. A nil set clones to an empty set.
func (s AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(s))
	for l := range s {
		out[l] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array so the wire form is stable.
func (s AnswerSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Labels())
}

// UnmarshalJSON decodes an array of labels; repeated labels collapse.
func (s *AnswerSet) UnmarshalJSON(data []byte) error {
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return err
	}
	*s = NewAnswerSet(labels...)
	return nil
}

// Toggle applies a selection of label to selection and returns the new set.
// Without allowMultiple the result is always {label}; with it, label's
// membership is flipped. The input set is never modified.
func Toggle(selection AnswerSet, label string, allowMultiple bool) AnswerSet {
	if !allowMultiple {
		return NewAnswerSet(label)
	}
	next := selection.Clone()
	if next.Has(label) {
		delete(next, label)
	} else {
		next[label] = struct{}{}
	}
	return next
}

// Equal reports whether a and b have identical membership.
func Equal(a, b AnswerSet) bool {
	if len(a) != len(b) {
		return false
	}
	for l := range a {
		if !b.Has(l) {
			return false
		}
	}
	return true
}
