package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCollecting(t *testing.T, target Amount) *Settlement {
	t.Helper()
	s, err := NewSettlement(uuid.New(), uuid.New(), target, 0)
	require.NoError(t, err)
	return s
}

func wireDetails(ref string) InstrumentDetails {
	return InstrumentDetails{Wire: &WireDetails{BankID: "bank-01", ReceiptRef: ref}}
}

func TestNewSettlementRejectsNonPositiveTarget(t *testing.T) {
	_, err := NewSettlement(uuid.New(), uuid.New(), 0, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NewSettlement(uuid.New(), uuid.New(), -500, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCashTenderSettlesWithChange(t *testing.T) {
	// Sale of $100.00, customer hands $150.00 cash.
	s := newCollecting(t, 10000)

	tender, err := s.AddTender(TenderCash, 15000, InstrumentDetails{})
	require.NoError(t, err)

	assert.Equal(t, VerificationVerified, tender.State)
	assert.Equal(t, SettlementSettled, s.Status)
	assert.Equal(t, Amount(15000), s.CollectedAmount())
	assert.Equal(t, Amount(5000), s.ChangeDue())
}

func TestSplitCashCardChangeOnlyFromCashPortion(t *testing.T) {
	// $100 sale: $60 card + $50 cash. Cash portion is 100-60=40, so change is
	// 50-40=10, never netted against the card.
	s := newCollecting(t, 10000)

	_, err := s.AddTender(TenderCard, 6000, InstrumentDetails{Card: &CardDetails{Brand: "visa", Terminal: "t1", Installments: 1}})
	require.NoError(t, err)
	_, err = s.AddTender(TenderCash, 5000, InstrumentDetails{})
	require.NoError(t, err)

	assert.Equal(t, SettlementSettled, s.Status)
	assert.Equal(t, Amount(1000), s.ChangeDue())
}

func TestNonCashOverCollectionRejected(t *testing.T) {
	s := newCollecting(t, 10000)

	_, err := s.AddTender(TenderCard, 10001, InstrumentDetails{Card: &CardDetails{Brand: "visa", Terminal: "t1", Installments: 1}})
	assert.ErrorIs(t, err, ErrOverCollection)

	// Partial card then an overshooting wire is also rejected.
	_, err = s.AddTender(TenderCard, 6000, InstrumentDetails{Card: &CardDetails{Brand: "visa", Terminal: "t1", Installments: 1}})
	require.NoError(t, err)
	_, err = s.AddTender(TenderWireTransfer, 5000, wireDetails("ref-1"))
	assert.ErrorIs(t, err, ErrOverCollection)
}

func TestNonCashToleranceAllowsSmallOvershoot(t *testing.T) {
	s, err := NewSettlement(uuid.New(), uuid.New(), 10000, 50)
	require.NoError(t, err)

	_, err = s.AddTender(TenderCard, 10050, InstrumentDetails{Card: &CardDetails{Brand: "visa", Terminal: "t1", Installments: 1}})
	assert.NoError(t, err)

	s2, err := NewSettlement(uuid.New(), uuid.New(), 10000, 50)
	require.NoError(t, err)
	_, err = s2.AddTender(TenderCard, 10051, InstrumentDetails{Card: &CardDetails{Brand: "visa", Terminal: "t1", Installments: 1}})
	assert.ErrorIs(t, err, ErrOverCollection)
}

func TestWireTenderStartsUnverifiedAndBlocksSettling(t *testing.T) {
	s := newCollecting(t, 10000)

	tender, err := s.AddTender(TenderWireTransfer, 10000, wireDetails("ref-1"))
	require.NoError(t, err)

	// Full numeric coverage, but the funds are not confirmed yet.
	assert.Equal(t, VerificationUnverified, tender.State)
	assert.Equal(t, SettlementCollecting, s.Status)
	assert.Equal(t, Amount(0), s.CollectedAmount())
	assert.False(t, s.IsSettled())

	require.NoError(t, s.MarkVerified(tender.ID))
	assert.Equal(t, SettlementSettled, s.Status)
	assert.Equal(t, Amount(10000), s.CollectedAmount())
}

func TestFailedTenderStaysListedAndBlocksSettlement(t *testing.T) {
	s := newCollecting(t, 10000)

	tender, err := s.AddTender(TenderWireTransfer, 10000, wireDetails("ref-1"))
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(tender.ID))

	// Failed tender remains on the list for the audit trail.
	assert.Len(t, s.Tenders, 1)
	assert.Equal(t, VerificationFailed, s.Tenders[0].State)
	assert.Equal(t, SettlementCollecting, s.Status)

	// Replacement cash settles only after the failed tender is voided;
	// while listed it blocks the all-verified requirement.
	cash, err := s.AddTender(TenderCash, 10000, InstrumentDetails{})
	require.NoError(t, err)
	assert.Equal(t, VerificationVerified, cash.State)
	assert.Equal(t, SettlementCollecting, s.Status)

	require.NoError(t, s.VoidTender(tender.ID))
	assert.Equal(t, SettlementSettled, s.Status)
}

func TestResolveIsOneShot(t *testing.T) {
	s := newCollecting(t, 10000)
	tender, err := s.AddTender(TenderWireTransfer, 10000, wireDetails("ref-1"))
	require.NoError(t, err)

	require.NoError(t, s.MarkVerified(tender.ID))
	assert.ErrorIs(t, s.MarkVerified(tender.ID), ErrInvalidStateTransition)
	assert.ErrorIs(t, s.MarkFailed(tender.ID), ErrInvalidStateTransition)
}

func TestSettledSettlementIsImmutable(t *testing.T) {
	s := newCollecting(t, 10000)
	tender, err := s.AddTender(TenderCash, 10000, InstrumentDetails{})
	require.NoError(t, err)
	require.Equal(t, SettlementSettled, s.Status)

	_, err = s.AddTender(TenderCash, 100, InstrumentDetails{})
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.ErrorIs(t, s.VoidTender(tender.ID), ErrInvalidStateTransition)
	assert.ErrorIs(t, s.Abandon(), ErrInvalidStateTransition)
}

func TestAbandonOnlyWhileCollecting(t *testing.T) {
	s := newCollecting(t, 10000)
	_, err := s.AddTender(TenderCash, 5000, InstrumentDetails{})
	require.NoError(t, err)

	require.NoError(t, s.Abandon())
	assert.Equal(t, SettlementAbandoned, s.Status)
	assert.ErrorIs(t, s.Abandon(), ErrInvalidStateTransition)
}

func TestAddTenderRejectsUnknownKindAndBadAmount(t *testing.T) {
	s := newCollecting(t, 10000)

	_, err := s.AddTender(TenderKind("crypto"), 1000, InstrumentDetails{})
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = s.AddTender(TenderCash, 0, InstrumentDetails{})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestVoidUnknownTender(t *testing.T) {
	s := newCollecting(t, 10000)
	assert.ErrorIs(t, s.VoidTender(uuid.New()), ErrNotFound)
}

func TestCollectedAmountDerivedNotStored(t *testing.T) {
	// QR partial + cash remainder: collected is always recomputed from the
	// tender list, so voiding immediately changes it.
	s := newCollecting(t, 10000)

	qr, err := s.AddTender(TenderQR, 4000, InstrumentDetails{QR: &QRDetails{Provider: "mp", TransactionRef: "tx-1"}})
	require.NoError(t, err)
	require.NoError(t, s.MarkVerified(qr.ID))
	assert.Equal(t, Amount(4000), s.CollectedAmount())

	_, err = s.AddTender(TenderCash, 6000, InstrumentDetails{})
	require.NoError(t, err)
	assert.Equal(t, Amount(10000), s.CollectedAmount())
	assert.Equal(t, SettlementSettled, s.Status)
}
