package classify

import (
	"strings"

	"github.com/sievefin/sift/internal/model"
)

// familyMarker associates a fixed keyword with a family and a confidence
// contribution. Subject hits count more than body hits.
type familyMarker struct {
	keyword    string
	family     model.Family
	confidence float64
}

// Keyword vocabulary for message-family labeling. Spanish terms carry the
// same weight as English; Latin American institutions dominate the corpus
// this was tuned on.
var familyMarkers = []familyMarker{
	{"compra", model.FamilyPurchase, 0.9},
	{"purchase", model.FamilyPurchase, 0.9},
	{"cargo a su tarjeta", model.FamilyPurchase, 0.85},
	{"card charge", model.FamilyPurchase, 0.85},
	{"consumo", model.FamilyPurchase, 0.7},

	{"transferencia", model.FamilyTransfer, 0.9},
	{"transfer", model.FamilyTransfer, 0.85},
	{"sinpe", model.FamilyTransfer, 0.9},
	{"wire", model.FamilyTransfer, 0.8},

	{"retiro", model.FamilyATM, 0.9},
	{"withdrawal", model.FamilyATM, 0.9},
	{"cajero", model.FamilyATM, 0.85},
	{"atm", model.FamilyATM, 0.8},

	{"pago", model.FamilyPayment, 0.8},
	{"payment", model.FamilyPayment, 0.8},
	{"factura", model.FamilyPayment, 0.6},

	{"deposito", model.FamilyDeposit, 0.9},
	{"depósito", model.FamilyDeposit, 0.9},
	{"deposit", model.FamilyDeposit, 0.85},
	{"abono", model.FamilyDeposit, 0.7},
}

const bodyHitPenalty = 0.75

// scoreFamilies labels the message against the fixed family vocabulary using
// sender+subject heuristics with body text as a weaker secondary signal.
func scoreFamilies(sender, subject, content string) map[model.Family]float64 {
	scores := make(map[model.Family]float64, len(model.Families()))

	for _, m := range familyMarkers {
		var hit float64
		switch {
		case strings.Contains(subject, m.keyword) || strings.Contains(sender, m.keyword):
			hit = m.confidence
		case strings.Contains(content, m.keyword):
			hit = m.confidence * bodyHitPenalty
		default:
			continue
		}
		if hit > scores[m.family] {
			scores[m.family] = hit
		}
	}

	return scores
}
