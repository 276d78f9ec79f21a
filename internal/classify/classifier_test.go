package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/normalize"
)

func testRegistry() []model.Institution {
	return []model.Institution{
		{
			Name:       "banco-sol",
			Country:    "CR",
			Senders:    []string{"notificaciones@bancosol.fi.cr"},
			Domains:    []string{"bancosol.fi.cr"},
			Signatures: []string{"banco sol le informa"},
			IsActive:   true,
		},
		{
			Name:     "northbank",
			Country:  "US",
			Senders:  []string{"alerts@northbank.com"},
			Domains:  []string{"northbank.com"},
			IsActive: true,
		},
	}
}

func classifyMessage(c *Classifier, msg model.Message) model.Classification {
	return c.Classify(normalize.Normalize(&msg))
}

func TestClassifyKnownSender(t *testing.T) {
	c := NewClassifier(testRegistry())

	cls := classifyMessage(c, model.Message{
		Sender:   "notificaciones@bancosol.fi.cr",
		Subject:  "Notificación de compra",
		TextBody: "Banco Sol le informa: compra por ₡15.450,00",
	})

	assert.Equal(t, "banco-sol", cls.Institution)
	assert.False(t, cls.Unresolved())
	// Exact sender plus domain plus one signature hit
	assert.InDelta(t, 0.92, cls.InstitutionConfidence, 0.001)
	assert.Equal(t, model.FamilyPurchase, cls.Family)
	assert.InDelta(t, 0.9, cls.FamilyConfidence, 0.001)
	assert.Greater(t, cls.TransactionLikelihood, 0.8)
}

func TestClassifyDomainOnlyMatch(t *testing.T) {
	c := NewClassifier(testRegistry())

	cls := classifyMessage(c, model.Message{
		Sender:  "no-reply@mail.northbank.com",
		Subject: "Transfer receipt",
	})

	assert.Equal(t, "northbank", cls.Institution)
	assert.InDelta(t, 0.3, cls.InstitutionConfidence, 0.001)
	assert.Equal(t, model.FamilyTransfer, cls.Family)
}

func TestClassifyUnknownSender(t *testing.T) {
	c := NewClassifier(testRegistry())

	cls := classifyMessage(c, model.Message{
		Sender:  "newsletter@shopping.example",
		Subject: "Weekly deals",
	})

	assert.True(t, cls.Unresolved())
	assert.Zero(t, cls.InstitutionConfidence)
	assert.Equal(t, model.FamilyUnknown, cls.Family)
	assert.Less(t, cls.TransactionLikelihood, 0.35)
}

func TestSignatureAloneIsNotIdentification(t *testing.T) {
	c := NewClassifier(testRegistry())

	// Promotional mail quoting an institution's tagline must not resolve
	cls := classifyMessage(c, model.Message{
		Sender:   "promo@deals.example",
		TextBody: "como banco sol le informa en su sitio...",
	})

	assert.True(t, cls.Unresolved())
}

func TestClassifyBodyHitsAreWeaker(t *testing.T) {
	c := NewClassifier(testRegistry())

	subjectHit := classifyMessage(c, model.Message{
		Sender:  "alerts@northbank.com",
		Subject: "withdrawal completed",
	})
	bodyHit := classifyMessage(c, model.Message{
		Sender:   "alerts@northbank.com",
		TextBody: "your withdrawal is complete",
	})

	assert.Equal(t, model.FamilyATM, subjectHit.Family)
	assert.Equal(t, model.FamilyATM, bodyHit.Family)
	assert.Greater(t, subjectHit.FamilyConfidence, bodyHit.FamilyConfidence)
}

func TestReload(t *testing.T) {
	c := NewClassifier(nil)

	before := classifyMessage(c, model.Message{Sender: "alerts@northbank.com"})
	assert.True(t, before.Unresolved())

	c.Reload(testRegistry())
	after := classifyMessage(c, model.Message{Sender: "alerts@northbank.com"})
	assert.Equal(t, "northbank", after.Institution)
}
