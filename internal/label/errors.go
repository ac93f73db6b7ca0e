package label

import "strings"

// ValidationError is one rejected field. Field is prefixed with the party,
// e.g. "destination.document".
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string { return e.Field + ": " + e.Message }

// ValidationErrors holds every violation found in a shipment request. No
// carrier call may be made for a request that produced it.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return "label validation failed: " + strings.Join(msgs, "; ")
}

func (v ValidationErrors) Fields() []string {
	out := make([]string, 0, len(v))
	for _, e := range v {
		out = append(out, e.Field)
	}
	return out
}
