package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 支払い検証と画像承認が同じ遷移規則を共有していることの検証
func TestReview_Finalize(t *testing.T) {
	//pendingからはaccept/rejectのどちらへも進める
	got, err := PaymentReview.Finalize(PaymentStatusPending, DecisionAccept)
	assert.NoError(t, err)
	assert.Equal(t, PaymentStatusVerified, got)

	got, err = PaymentReview.Finalize(PaymentStatusPending, DecisionReject)
	assert.NoError(t, err)
	assert.Equal(t, PaymentStatusRejected, got)

	//終端からは動けない
	_, err = PaymentReview.Finalize(PaymentStatusVerified, DecisionReject)
	assert.ErrorIs(t, err, ErrReviewFinalized)
	_, err = PaymentReview.Finalize(PaymentStatusRejected, DecisionAccept)
	assert.ErrorIs(t, err, ErrReviewFinalized)

	//不正なdecision
	_, err = PaymentReview.Finalize(PaymentStatusPending, Decision("maybe"))
	assert.ErrorIs(t, err, ErrReviewBadDecision)
}

func TestReview_ImageStatuses(t *testing.T) {
	got, err := ImageReview.Finalize(ImageStatusPending, DecisionAccept)
	assert.NoError(t, err)
	assert.Equal(t, ImageStatusApproved, got)

	_, err = ImageReview.Finalize(ImageStatusApproved, DecisionAccept)
	assert.ErrorIs(t, err, ErrReviewFinalized)

	assert.True(t, ImageStatusApproved.IsTerminal())
	assert.True(t, ImageStatusRejected.IsTerminal())
	assert.False(t, ImageStatusPending.IsTerminal())
}

func TestPaymentStatus_Active(t *testing.T) {
	assert.True(t, PaymentStatusPending.IsActive())
	assert.True(t, PaymentStatusVerified.IsActive())
	assert.False(t, PaymentStatusRejected.IsActive())
}
