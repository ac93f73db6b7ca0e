// Package address turns historical free-text shipping addresses into
// carrier-compliant structured records. Parsing never fails: low-confidence
// guesses are reported as degradations and left for the label builder to
// accept or reject.
package address

import (
	"regexp"
	"strings"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/textnorm"
)

// Input is either a free-text line or a partially structured record.
type Input struct {
	Text    string
	Partial *models.StructuredAddress
}

// FromText wraps a single delimited address line.
func FromText(s string) Input { return Input{Text: s} }

// FromFields wraps discrete fields captured by the storefront.
func FromFields(a models.StructuredAddress) Input { return Input{Partial: &a} }

// Result is a parsed address plus the strategy that produced it.
type Result struct {
	Address      models.StructuredAddress
	Strategy     string
	Degradations []string
}

// Degraded reports whether any field is a low-confidence guess.
func (r Result) Degraded() bool { return len(r.Degradations) > 0 }

type Normalizer struct {
	strategies []strategy
}

func New() *Normalizer {
	return &Normalizer{strategies: defaultStrategies()}
}

// Normalize returns the best-effort structured address for in.
func (n *Normalizer) Normalize(in Input, fallbackName string) models.StructuredAddress {
	return n.Parse(in, fallbackName).Address
}

// Parse is Normalize with the chosen strategy and degradations attached.
func (n *Normalizer) Parse(in Input, fallbackName string) Result {
	var res Result

	switch p := in.Partial; {
	case p != nil && len(textnorm.Digits(p.PostalCode)) == 8 && p.HasDiscreteFields():
		res = Result{Address: *p, Strategy: "structured"}

	case p != nil && in.Text == "" && onlyStreet(*p) && strings.Contains(p.Street, ","):
		// whole line stuffed into the street field
		res = n.parseText(p.Street)
		carryContact(&res.Address, *p)

	case p != nil && in.Text == "" && p.HasDiscreteFields():
		res = Result{Address: *p, Strategy: "structured"}
		res.Degradations = append(res.Degradations, "postal code missing or malformed")

	default:
		res = n.parseText(in.Text)
		if p != nil {
			carryContact(&res.Address, *p)
		}
	}

	cleanup(&res.Address)
	if res.Address.RecipientName == "" {
		res.Address.RecipientName = strings.TrimSpace(fallbackName)
	}
	return res
}

func (n *Normalizer) parseText(line string) Result {
	segs := splitSegments(line)
	segs, postal := extractPostal(segs)

	for _, s := range n.strategies {
		if !s.accepts(len(segs)) {
			continue
		}
		addr, degr := s.parse(segs)
		addr.PostalCode = postal
		if postal == "" {
			degr = append(degr, "postal code not found")
		}
		return Result{Address: addr, Strategy: s.name, Degradations: degr}
	}
	// unreachable with the default chain
	return Result{
		Address:      models.StructuredAddress{Street: strings.TrimSpace(line), City: models.CityManualReview, PostalCode: postal},
		Strategy:     "none",
		Degradations: []string{"no parsing strategy matched"},
	}
}

func splitSegments(line string) []string {
	parts := strings.Split(line, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	// "" splits into one empty segment
	if len(out) == 1 && out[0] == "" {
		return nil
	}
	return out
}

var postalPattern = regexp.MustCompile(`(?i)(?:\bcep\b[\s:.]*)?\b(\d{5})-?(\d{3})\b`)

// extractPostal pulls the first postal code out of the segments. A segment
// holding nothing but the code is removed.
func extractPostal(segs []string) ([]string, string) {
	for i, s := range segs {
		m := postalPattern.FindStringSubmatchIndex(s)
		if m == nil {
			continue
		}
		postal := s[m[2]:m[3]] + s[m[4]:m[5]]
		rest := trimStray(s[:m[0]] + " " + s[m[1]:])
		out := make([]string, 0, len(segs))
		out = append(out, segs[:i]...)
		if rest != "" {
			out = append(out, rest)
		}
		out = append(out, segs[i+1:]...)
		return out, postal
	}
	return segs, ""
}

func onlyStreet(a models.StructuredAddress) bool {
	return a.Street != "" && a.Number == "" && a.Neighborhood == "" && a.City == "" && a.State == ""
}

func carryContact(dst *models.StructuredAddress, src models.StructuredAddress) {
	if dst.Complement == "" {
		dst.Complement = src.Complement
	}
	if dst.RecipientName == "" {
		dst.RecipientName = src.RecipientName
	}
	if dst.Document == "" {
		dst.Document = src.Document
	}
	if dst.Phone == "" {
		dst.Phone = src.Phone
	}
	if dst.Email == "" {
		dst.Email = src.Email
	}
}
