package address

import (
	"strings"
	"unicode"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/textnorm"
)

// Street-type prefixes, accent-folded and without the trailing dot.
var streetTypes = map[string]struct{}{
	"r": {}, "rua": {},
	"av": {}, "avenida": {},
	"tv": {}, "trav": {}, "travessa": {},
	"al": {}, "alameda": {},
	"pc": {}, "pca": {}, "praca": {},
	"rod": {}, "rodovia": {},
	"estrada": {},
	"largo": {},
}

// cleanup runs on every path; applying it twice is a no-op.
func cleanup(a *models.StructuredAddress) {
	a.Street = stripStreetType(a.Street)
	a.Number = cleanNumber(a.Number)
	a.Complement = strings.TrimSpace(a.Complement)
	a.Neighborhood = trimStray(a.Neighborhood)
	a.City = trimStray(a.City)
	a.State = cleanState(a.State)
	a.PostalCode = formatPostal(a.PostalCode)
	a.RecipientName = strings.TrimSpace(a.RecipientName)
	a.Document = strings.TrimSpace(a.Document)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Email = strings.TrimSpace(a.Email)
}

func stripStreetType(street string) string {
	s := strings.TrimSpace(street)
	for {
		head, tail, ok := cutFirstWord(s)
		if !ok {
			return s
		}
		if _, known := streetTypes[textnorm.Fold(head)]; !known || tail == "" {
			return s
		}
		s = tail
	}
}

func cutFirstWord(s string) (head, tail string, ok bool) {
	i := strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '.' })
	if i <= 0 {
		return "", "", false
	}
	return s[:i], strings.TrimLeft(s[i:], ". \t"), true
}

func cleanNumber(n string) string {
	if d := textnorm.Digits(n); d != "" {
		return d
	}
	return numberNotAvailable
}

func cleanState(s string) string {
	s = strings.ToUpper(textnorm.Letters(s))
	if len(s) != 2 {
		return ""
	}
	return s
}

func formatPostal(p string) string {
	p = textnorm.Alnum(p)
	if len(p) == 8 && textnorm.Digits(p) == p {
		return p[:5] + "-" + p[5:]
	}
	return p
}

func trimStray(s string) string {
	return strings.Trim(s, " \t,-–/")
}
