// Package label builds and validates carrier pre-posting requests.
package label

import (
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/textnorm"
)

const (
	MinWeightGrams    = 300
	maxObservation    = 50
	defaultObservePfx = "Pedido "
)

// Packaging is the fixed box profile sent with every label, in centimeters.
type Packaging struct {
	FormatCode string
	Height     int
	Width      int
	Length     int
}

type Config struct {
	Packaging          Packaging
	ContentDescription string
	// Services restricts accepted service codes; empty accepts any.
	Services []string
}

type ShipmentRequest struct {
	OrderID       string
	Origin        models.StructuredAddress
	Destination   models.StructuredAddress
	WeightKg      float64
	DeclaredValue decimal.Decimal
	ServiceCode   string
	Observation   string
}

// WeightGrams applies the carrier minimum.
func (r ShipmentRequest) WeightGrams() int {
	g := int(math.Round(r.WeightKg * 1000))
	if g < MinWeightGrams {
		return MinWeightGrams
	}
	return g
}

type Builder struct {
	cfg      Config
	validate *validator.Validate
}

func NewBuilder(cfg Config) *Builder {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	return &Builder{cfg: cfg, validate: v}
}

// party is the digits-only view of an address that the rules run against.
type party struct {
	Name         string `json:"name" validate:"min=3"`
	Street       string `json:"street" validate:"min=3"`
	Number       string `json:"number" validate:"required"`
	Neighborhood string `json:"neighborhood" validate:"min=2"`
	City         string `json:"city" validate:"min=2,ne=unknown,ne=manual-review"`
	State        string `json:"state" validate:"len=2,alpha"`
	PostalCode   string `json:"postal_code" validate:"len=8,numeric"`
	Document     string `json:"document" validate:"len=11|len=14"`
	Phone        string `json:"phone" validate:"omitempty,len=10|len=11"`

	complement string
	email      string
}

var ruleMessages = map[string]string{
	"name":         "name must have at least 3 characters",
	"street":       "street must have at least 3 characters",
	"number":       "number is required",
	"neighborhood": "neighborhood must have at least 2 characters",
	"city":         "city must have at least 2 characters and be a parsed city name",
	"state":        "state must be a 2 letter code",
	"postal_code":  "postal code must have exactly 8 digits",
	"document":     "document must have 11 (CPF) or 14 (CNPJ) digits",
	"phone":        "phone must have 10 or 11 digits including area code",
}

func toParty(a models.StructuredAddress) party {
	return party{
		Name:         strings.TrimSpace(a.RecipientName),
		Street:       strings.TrimSpace(a.Street),
		Number:       strings.TrimSpace(a.Number),
		Neighborhood: strings.TrimSpace(a.Neighborhood),
		City:         strings.TrimSpace(a.City),
		State:        strings.ToUpper(strings.TrimSpace(a.State)),
		PostalCode:   textnorm.Digits(a.PostalCode),
		Document:     textnorm.Digits(a.Document),
		Phone:        cleanPhone(a.Phone),
		complement:   strings.TrimSpace(a.Complement),
		email:        strings.TrimSpace(a.Email),
	}
}

// cleanPhone drops the country code and the trunk zero.
func cleanPhone(s string) string {
	d := textnorm.Digits(s)
	if (len(d) == 12 || len(d) == 13) && strings.HasPrefix(d, "55") {
		d = d[2:]
	}
	if (len(d) == 11 || len(d) == 12) && d[0] == '0' {
		d = d[1:]
	}
	return d
}

func (b *Builder) check(prefix string, p party) ValidationErrors {
	var out ValidationErrors
	err := b.validate.Struct(p)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return ValidationErrors{{Field: prefix, Message: err.Error()}}
	}
	for _, fe := range fields {
		msg, ok := ruleMessages[fe.Field()]
		if !ok {
			msg = fe.Error()
		}
		out = append(out, ValidationError{Field: prefix + "." + fe.Field(), Message: msg})
	}
	return out
}

// Build validates req and returns the carrier payload, or ValidationErrors
// listing every violation.
func (b *Builder) Build(req ShipmentRequest) (*carrier.LabelPayload, error) {
	origin := toParty(req.Origin)
	dest := toParty(req.Destination)

	var verrs ValidationErrors
	verrs = append(verrs, b.check("origin", origin)...)
	if origin.Phone == "" {
		verrs = append(verrs, ValidationError{Field: "origin.phone", Message: "sender phone or mobile is required"})
	}
	verrs = append(verrs, b.check("destination", dest)...)

	service := strings.TrimSpace(req.ServiceCode)
	switch {
	case service == "":
		verrs = append(verrs, ValidationError{Field: "service_code", Message: "service code is required"})
	case len(b.cfg.Services) > 0 && !slices.Contains(b.cfg.Services, service):
		verrs = append(verrs, ValidationError{Field: "service_code", Message: "unsupported service " + service})
	}
	if req.DeclaredValue.IsNegative() {
		verrs = append(verrs, ValidationError{Field: "declared_value", Message: "declared value must not be negative"})
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	value := req.DeclaredValue.StringFixed(2)
	obs := strings.TrimSpace(req.Observation)
	if obs == "" && req.OrderID != "" {
		obs = defaultObservePfx + req.OrderID
	}

	p := &carrier.LabelPayload{
		Sender:        toCarrierParty(origin),
		Recipient:     toCarrierParty(dest),
		ServiceCode:   service,
		WeightGrams:   strconv.Itoa(req.WeightGrams()),
		FormatCode:    b.cfg.Packaging.FormatCode,
		Height:        strconv.Itoa(b.cfg.Packaging.Height),
		Width:         strconv.Itoa(b.cfg.Packaging.Width),
		Length:        strconv.Itoa(b.cfg.Packaging.Length),
		NotProhibited: "1",
		ContentItems: []carrier.ContentItem{{
			Content:  textnorm.Truncate(b.cfg.ContentDescription, 60),
			Quantity: "1",
			Value:    value,
		}},
		Observation: textnorm.Truncate(obs, maxObservation),
	}
	if req.DeclaredValue.IsPositive() {
		p.AdditionalServices = []carrier.AdditionalService{{
			Code:          carrier.ServiceDeclaredValue,
			DeclaredValue: value,
		}}
	}
	return p, nil
}

func toCarrierParty(p party) carrier.Party {
	out := carrier.Party{
		Name:     textnorm.Truncate(p.Name, 50),
		Email:    p.email,
		Document: p.Document,
		Address: carrier.Address{
			PostalCode:   p.PostalCode,
			Street:       textnorm.Truncate(p.Street, 50),
			Number:       textnorm.Truncate(p.Number, 6),
			Complement:   textnorm.Truncate(p.complement, 30),
			Neighborhood: textnorm.Truncate(p.Neighborhood, 30),
			City:         textnorm.Truncate(p.City, 30),
			State:        p.State,
		},
	}
	switch len(p.Phone) {
	case 10:
		out.AreaCode, out.Phone = p.Phone[:2], p.Phone[2:]
	case 11:
		out.MobileArea, out.Mobile = p.Phone[:2], p.Phone[2:]
	}
	return out
}
