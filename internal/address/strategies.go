package address

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/BearBump/ShipBox/internal/models"
)

const (
	numberNotAvailable = "S/N"
	longStreetRunes    = 50
)

// strategy parses comma segments (postal code already removed) into an
// address. The first strategy accepting the segment count wins.
type strategy struct {
	name    string
	accepts func(segments int) bool
	parse   func(segs []string) (models.StructuredAddress, []string)
}

func defaultStrategies() []strategy {
	return []strategy{
		{name: "four-or-more", accepts: func(n int) bool { return n >= 4 }, parse: parseFourOrMore},
		{name: "three-segments", accepts: func(n int) bool { return n == 3 }, parse: parseThree},
		{name: "two-segments", accepts: func(n int) bool { return n == 2 }, parse: parseTwo},
		{name: "single-segment", accepts: func(n int) bool { return n <= 1 }, parse: parseSingle},
	}
}

func parseFourOrMore(segs []string) (models.StructuredAddress, []string) {
	var degr []string
	a := models.StructuredAddress{
		Street:       segs[0],
		Number:       segs[1],
		Neighborhood: segs[2],
	}
	if a.Number == "" {
		a.Number = numberNotAvailable
	}
	a.City, a.State = splitCityState(strings.Join(segs[3:], ", "))
	if a.State == "" {
		degr = append(degr, "state not found")
	}
	return a, degr
}

func parseThree(segs []string) (models.StructuredAddress, []string) {
	degr := []string{"neighborhood and city split by token count"}
	a := models.StructuredAddress{Street: segs[0], Number: segs[1]}

	tokens := strings.Fields(segs[2])
	stateAt := -1
	for i := len(tokens) - 1; i >= 0; i-- {
		if isStateToken(strings.Trim(tokens[i], "-/.")) {
			stateAt = i
			break
		}
	}
	if stateAt >= 0 {
		a.State = strings.Trim(tokens[stateAt], "-/.")
		tokens = append(tokens[:stateAt:stateAt], tokens[stateAt+1:]...)
	} else {
		degr = append(degr, "state not found")
	}

	words := tokens[:0:0]
	for _, t := range tokens {
		if t = strings.Trim(t, "-/"); t != "" {
			words = append(words, t)
		}
	}
	switch len(words) {
	case 0:
		a.City = models.CityUnknown
	case 1:
		a.City = words[0]
	default:
		half := len(words) / 2
		a.Neighborhood = strings.Join(words[:half], " ")
		a.City = strings.Join(words[half:], " ")
	}
	return a, degr
}

func parseTwo(segs []string) (models.StructuredAddress, []string) {
	degr := []string{"city not present"}
	a := models.StructuredAddress{Street: segs[0], Number: segs[1], City: models.CityUnknown}
	if utf8.RuneCountInString(a.Street) > longStreetRunes {
		tokens := strings.Fields(a.Street)
		if len(tokens) > 3 {
			a.Street = strings.Join(tokens[:3], " ")
			a.Neighborhood = strings.Join(tokens[3:], " ")
			degr = append(degr, "long street split into street and neighborhood")
		}
	}
	return a, degr
}

func parseSingle(segs []string) (models.StructuredAddress, []string) {
	a := models.StructuredAddress{Number: numberNotAvailable, City: models.CityManualReview}
	if len(segs) > 0 {
		a.Street = segs[0]
	}
	return a, []string{"single segment address needs manual review"}
}

var cityStateSuffix = regexp.MustCompile(`^(.*\S)\s*[-/]\s*([A-Za-z]{2})\.?$`)

// splitCityState splits a "São Paulo - SP" style block.
func splitCityState(block string) (city, state string) {
	block = trimStray(block)
	if m := cityStateSuffix.FindStringSubmatch(block); m != nil {
		return m[1], m[2]
	}
	for _, sep := range []string{" - ", "/"} {
		if i := strings.LastIndex(block, sep); i >= 0 {
			return block[:i], block[i+len(sep):]
		}
	}
	if f := strings.Fields(block); len(f) > 1 && isStateToken(f[len(f)-1]) {
		return strings.Join(f[:len(f)-1], " "), f[len(f)-1]
	}
	return block, ""
}

var federativeUnits = map[string]struct{}{
	"AC": {}, "AL": {}, "AP": {}, "AM": {}, "BA": {}, "CE": {}, "DF": {}, "ES": {}, "GO": {},
	"MA": {}, "MT": {}, "MS": {}, "MG": {}, "PA": {}, "PB": {}, "PR": {}, "PE": {}, "PI": {},
	"RJ": {}, "RN": {}, "RS": {}, "RO": {}, "RR": {}, "SC": {}, "SP": {}, "SE": {}, "TO": {},
}

// isStateToken reports whether s is an uppercase federative unit code.
func isStateToken(s string) bool {
	_, ok := federativeUnits[s]
	return ok
}
