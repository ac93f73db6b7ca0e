package address

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/ShipBox/internal/models"
)

func TestNormalize_FullLine(t *testing.T) {
	n := New()
	got := n.Normalize(FromText("Rua das Flores, 123, Centro, São Paulo - SP, 01310-100"), "")

	require.Equal(t, "das Flores", got.Street)
	require.Equal(t, "123", got.Number)
	require.Equal(t, "Centro", got.Neighborhood)
	require.Equal(t, "São Paulo", got.City)
	require.Equal(t, "SP", got.State)
	require.Equal(t, "01310-100", got.PostalCode)
}

func TestParse_Strategies(t *testing.T) {
	n := New()
	cases := []struct {
		name     string
		in       string
		strategy string
		want     models.StructuredAddress
	}{
		{
			name:     "slash separated city",
			in:       "Av. Paulista, 1000, Bela Vista, São Paulo/SP, CEP: 01310-100",
			strategy: "four-or-more",
			want: models.StructuredAddress{
				Street: "Paulista", Number: "1000", Neighborhood: "Bela Vista",
				City: "São Paulo", State: "SP", PostalCode: "01310-100",
			},
		},
		{
			name:     "trailing state token",
			in:       "Alameda Santos, 45, Jardins, São Paulo SP 01419001",
			strategy: "four-or-more",
			want: models.StructuredAddress{
				Street: "Santos", Number: "45", Neighborhood: "Jardins",
				City: "São Paulo", State: "SP", PostalCode: "01419-001",
			},
		},
		{
			name:     "empty number",
			in:       "Travessa do Ouvidor, , Centro, Rio de Janeiro - RJ, 20040-030",
			strategy: "four-or-more",
			want: models.StructuredAddress{
				Street: "do Ouvidor", Number: "S/N", Neighborhood: "Centro",
				City: "Rio de Janeiro", State: "RJ", PostalCode: "20040-030",
			},
		},
		{
			name:     "three segments",
			in:       "Rua Chile, 12, Centro Salvador BA 40020-000",
			strategy: "three-segments",
			want: models.StructuredAddress{
				Street: "Chile", Number: "12", Neighborhood: "Centro",
				City: "Salvador", State: "BA", PostalCode: "40020-000",
			},
		},
		{
			name:     "two segments",
			in:       "Rua Augusta, 500",
			strategy: "two-segments",
			want: models.StructuredAddress{
				Street: "Augusta", Number: "500", City: models.CityUnknown,
			},
		},
		{
			name:     "two segments long street",
			in:       "Rua Doutor Fulano de Tal Sobrenome Comprido Jardim das Acacias Norte, 77",
			strategy: "two-segments",
			want: models.StructuredAddress{
				Street: "Doutor Fulano", Number: "77",
				Neighborhood: "de Tal Sobrenome Comprido Jardim das Acacias Norte",
				City:         models.CityUnknown,
			},
		},
		{
			name:     "single segment",
			in:       "Praça da Sé",
			strategy: "single-segment",
			want: models.StructuredAddress{
				Street: "da Sé", Number: "S/N", City: models.CityManualReview,
			},
		},
		{
			name:     "empty",
			in:       "",
			strategy: "single-segment",
			want:     models.StructuredAddress{Number: "S/N", City: models.CityManualReview},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := n.Parse(FromText(tc.in), "")
			require.Equal(t, tc.strategy, res.Strategy)
			require.Equal(t, tc.want, res.Address)
		})
	}
}

func TestParse_DegradationsReported(t *testing.T) {
	res := New().Parse(FromText("Rua Augusta, 500"), "")
	require.True(t, res.Degraded())
	require.Contains(t, res.Degradations, "postal code not found")

	res = New().Parse(FromText("Rua das Flores, 123, Centro, São Paulo - SP, 01310-100"), "")
	require.False(t, res.Degraded())
}

func TestNormalize_PostalCodeSurvivesAnySegmentCount(t *testing.T) {
	n := New()
	lines := []string{
		"%s",
		"Rua A %s",
		"Rua A, %s",
		"Rua A, 10, %s",
		"Rua A, 10, Centro, %s",
		"Rua A, 10, Centro, Campinas - SP, %s",
		"%s, Rua A, 10, Centro, Campinas, SP",
	}
	for _, postal := range []string{"13010-000", "13010000", "01001-000"} {
		for _, l := range lines {
			in := fmt.Sprintf(l, postal)
			got := n.Normalize(FromText(in), "")
			require.Equal(t, formatPostal(postal), got.PostalCode, in)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := New()
	inputs := []string{
		"Rua das Flores, 123, Centro, São Paulo - SP, 01310-100",
		"Av. Paulista, 1000, Bela Vista, São Paulo/SP, CEP: 01310-100",
		"Rua Chile, 12, Centro Salvador BA 40020-000",
		"Rua Augusta, 500",
		"Praça da Sé",
		"",
	}
	for _, in := range inputs {
		once := n.Normalize(FromText(in), "Maria")
		twice := n.Normalize(FromFields(once), "Maria")
		require.Equal(t, once, twice, in)
	}
}

func TestNormalize_StructuredInput(t *testing.T) {
	n := New()
	got := n.Normalize(FromFields(models.StructuredAddress{
		Street:       "Avenida Brasil",
		Number:       "nº 1.500",
		Neighborhood: " - Jardim América,",
		City:         "Rio de Janeiro",
		State:        "r.j.",
		PostalCode:   "21040 361",
		Document:     "123.456.789-09",
	}), "Fallback")

	require.Equal(t, models.StructuredAddress{
		Street:        "Brasil",
		Number:        "1500",
		Neighborhood:  "Jardim América",
		City:          "Rio de Janeiro",
		State:         "RJ",
		PostalCode:    "21040-361",
		RecipientName: "Fallback",
		Document:      "123.456.789-09",
	}, got)
}

func TestNormalize_WholeLineInStreetField(t *testing.T) {
	got := New().Normalize(FromFields(models.StructuredAddress{
		Street:        "Rua das Flores, 123, Centro, São Paulo - SP, 01310-100",
		RecipientName: "João",
		Phone:         "11987654321",
	}), "ignored")

	require.Equal(t, "das Flores", got.Street)
	require.Equal(t, "01310-100", got.PostalCode)
	require.Equal(t, "João", got.RecipientName)
	require.Equal(t, "11987654321", got.Phone)
}

func TestStripStreetType(t *testing.T) {
	cases := map[string]string{
		"Rua das Flores":      "das Flores",
		"R. das Flores":       "das Flores",
		"AV. Atlântica":       "Atlântica",
		"Av.Atlântica":        "Atlântica",
		"Praca XV":            "XV",
		"Praça XV":            "XV",
		"Rua Avenida Central": "Central",
		"Rua":                 "Rua",
		"Rualdo Pereira":      "Rualdo Pereira",
	}
	for in, want := range cases {
		require.Equal(t, want, stripStreetType(in), in)
	}
}

func TestSplitCityState(t *testing.T) {
	cases := []struct{ in, city, state string }{
		{"São Paulo - SP", "São Paulo", "SP"},
		{"Embu-Guaçu-SP", "Embu-Guaçu", "SP"},
		{"Curitiba/PR", "Curitiba", "PR"},
		{"Porto Alegre RS", "Porto Alegre", "RS"},
		{"Belo Horizonte", "Belo Horizonte", ""},
	}
	for _, tc := range cases {
		city, state := splitCityState(tc.in)
		require.Equal(t, tc.city, city, tc.in)
		require.Equal(t, tc.state, state, tc.in)
	}
}
