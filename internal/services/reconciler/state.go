package reconciler

import (
	"strings"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/textnorm"
)

// stateRule maps carrier event codes or description phrases to a state.
// Phrases are matched accent- and case-insensitively; veto phrases disable
// the rule for that event.
type stateRule struct {
	state   models.ShipmentState
	codes   []string
	phrases []string
	veto    []string
}

// Rules are evaluated in order, the first match wins. Carrier wording
// changes are handled here, not in the matching code.
var stateRules = []stateRule{
	{
		state:   models.ShipmentStateDelivered,
		codes:   []string{"BDE", "BDI"},
		phrases: []string{"entregue"},
		veto:    []string{"nao entregue", "nao foi entregue", "nao pode ser entregue"},
	},
	{
		state:   models.ShipmentStateOutForDelivery,
		codes:   []string{"OEC"},
		phrases: []string{"saiu para entrega"},
	},
	{
		state:   models.ShipmentStateInTransit,
		codes:   []string{"DO", "RO"},
		phrases: []string{"em transito", "encaminhado"},
	},
	{
		state:   models.ShipmentStateShipped,
		codes:   []string{"PO"},
		phrases: []string{"postado"},
	},
}

// DeriveState computes the shipment state from the newest event alone.
func DeriveState(code, description string) models.ShipmentState {
	code = strings.ToUpper(strings.TrimSpace(code))
	desc := textnorm.Fold(description)

	for _, r := range stateRules {
		if containsAny(desc, r.veto) {
			continue
		}
		for _, c := range r.codes {
			if code == c {
				return r.state
			}
		}
		if containsAny(desc, r.phrases) {
			return r.state
		}
	}
	return models.ShipmentStateProcessing
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
