package rates

import (
	"strconv"

	"github.com/BearBump/ShipBox/internal/textnorm"
)

// fallbackState is used when neither the carrier nor the range table knows
// the postal code.
const fallbackState = "SP"

type cepRange struct {
	from, to int
	state    string
}

// cepRanges maps 5-digit CEP prefixes to states. Order matters where DF and
// GO interleave.
var cepRanges = []cepRange{
	{1000, 19999, "SP"},
	{20000, 28999, "RJ"},
	{29000, 29999, "ES"},
	{30000, 39999, "MG"},
	{40000, 48999, "BA"},
	{49000, 49999, "SE"},
	{50000, 56999, "PE"},
	{57000, 57999, "AL"},
	{58000, 58999, "PB"},
	{59000, 59999, "RN"},
	{60000, 63999, "CE"},
	{64000, 64999, "PI"},
	{65000, 65999, "MA"},
	{66000, 68899, "PA"},
	{68900, 68999, "AP"},
	{69000, 69299, "AM"},
	{69300, 69399, "RR"},
	{69400, 69899, "AM"},
	{69900, 69999, "AC"},
	{70000, 72799, "DF"},
	{72800, 72999, "GO"},
	{73000, 73699, "DF"},
	{73700, 76799, "GO"},
	{76800, 76999, "RO"},
	{77000, 77999, "TO"},
	{78000, 78899, "MT"},
	{79000, 79999, "MS"},
	{80000, 87999, "PR"},
	{88000, 89999, "SC"},
	{90000, 99999, "RS"},
}

// stateFromRange resolves the state from the CEP numeric range.
func stateFromRange(postal string) (string, bool) {
	d := textnorm.Digits(postal)
	if len(d) != 8 {
		return "", false
	}
	prefix, err := strconv.Atoi(d[:5])
	if err != nil {
		return "", false
	}
	for _, r := range cepRanges {
		if prefix >= r.from && prefix <= r.to {
			return r.state, true
		}
	}
	return "", false
}

type region int

const (
	north region = iota
	northeast
	centerWest
	southeast
	south
)

var stateRegions = map[string]region{
	"AC": north, "AM": north, "AP": north, "PA": north, "RO": north, "RR": north, "TO": north,
	"AL": northeast, "BA": northeast, "CE": northeast, "MA": northeast, "PB": northeast,
	"PE": northeast, "PI": northeast, "RN": northeast, "SE": northeast,
	"DF": centerWest, "GO": centerWest, "MS": centerWest, "MT": centerWest,
	"ES": southeast, "MG": southeast, "RJ": southeast, "SP": southeast,
	"PR": south, "RS": south, "SC": south,
}

// regionHops counts how many regions a parcel crosses.
var regionHops = [5][5]int{
	north:      {0, 1, 1, 2, 2},
	northeast:  {1, 0, 1, 1, 2},
	centerWest: {1, 1, 0, 1, 1},
	southeast:  {2, 1, 1, 0, 1},
	south:      {2, 2, 1, 1, 0},
}

// distanceMultiplier scales price and lead time by how far apart two states are.
func distanceMultiplier(from, to string) float64 {
	if from == to {
		return 1.0
	}
	rf, okf := stateRegions[from]
	rt, okt := stateRegions[to]
	if !okf || !okt {
		return 1.8
	}
	switch regionHops[rf][rt] {
	case 0:
		return 1.3
	case 1:
		return 1.7
	default:
		return 2.2
	}
}
