package model

// Family is a coarse transaction-type label inferred from a message.
type Family string

// Known message families.
const (
	FamilyPurchase Family = "purchase"
	FamilyTransfer Family = "transfer"
	FamilyATM      Family = "atm"
	FamilyPayment  Family = "payment"
	FamilyDeposit  Family = "deposit"
	FamilyUnknown  Family = "unknown"
)

// Families lists every known family in a stable order.
func Families() []Family {
	return []Family{FamilyPurchase, FamilyTransfer, FamilyATM, FamilyPayment, FamilyDeposit}
}

// Classification is the source classifier's verdict for one message. It is
// derived per message and attached to the processing run, never persisted
// on its own.
type Classification struct {
	FamilyScores          map[Family]float64
	Institution           string // empty when the institution is unknown
	Family                Family
	InstitutionConfidence float64
	FamilyConfidence      float64
	TransactionLikelihood float64
}

// Unresolved reports whether the classifier could not identify the sender.
func (c Classification) Unresolved() bool {
	return c.Institution == ""
}
