package usecase

import (
	"context"
	"net/http"
	"testing"

	"printshop/internal/domain/model"
	"printshop/internal/event"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newPaymentTestEnv() (*PaymentUsecase, *OrderUsecase, *memTxManager, *recordPublisher) {
	m := newMemTxManager()
	pub := &recordPublisher{}
	clock := fixedClock{t: testTime}
	puc := NewPaymentUsecase(m, pub, clock, zap.NewNop())
	ouc := NewOrderUsecase(m, pub, clock, zap.NewNop())
	return puc, ouc, m, pub
}

func placeTestOrder(t *testing.T, ouc *OrderUsecase, m *memTxManager, userID int64) OrderOutput {
	t.Helper()
	seedProduct(m, 1, "mug", 500, 100, true)
	out, err := ouc.PlaceOrder(context.Background(), userID, PlaceOrderInput{
		Items:         []OrderItemSpec{{ProductID: 1, Quantity: 2}},
		CustomerName:  "Jane",
		CustomerPhone: "0712345678",
	})
	assert.NoError(t, err)
	return out
}

// 提出：金額は注文の合計から取られ、pendingで作られる
func TestSubmitPayment_Success(t *testing.T) {
	puc, ouc, m, _ := newPaymentTestEnv()
	order := placeTestOrder(t, ouc, m, 100)

	out, err := puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID:       order.ID,
		ReferenceCode: "qgh7xk21ab",
		PhoneNumber:   "0712345678",
	})

	assert.NoError(t, err)
	assert.Equal(t, order.TotalAmount, out.Amount)
	assert.Equal(t, "pending", out.Status)
	//参照コードは大文字に正規化される
	assert.Equal(t, "QGH7XK21AB", out.ReferenceCode)
}

// 参照コード・電話番号のバリデーション
func TestSubmitPayment_Validation(t *testing.T) {
	puc, ouc, m, _ := newPaymentTestEnv()
	order := placeTestOrder(t, ouc, m, 100)

	cases := []struct {
		name string
		ref  string
		tel  string
		want string
	}{
		{"参照コードが短い", "abc123", "0712345678", "invalid reference code"},
		{"参照コードに記号", "qgh7-k21ab", "0712345678", "invalid reference code"},
		{"電話番号のprefixが不正", "QGH7XK21AB", "0812345678", "invalid phone number"},
		{"電話番号が短い", "QGH7XK21AB", "07123", "invalid phone number"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := puc.Submit(context.Background(), 100, SubmitPaymentInput{
				OrderID:       order.ID,
				ReferenceCode: tc.ref,
				PhoneNumber:   tc.tel,
			})
			he, ok := AsHTTPError(err)
			assert.True(t, ok)
			assert.Equal(t, tc.want, he.Message)
		})
	}

	//有効なprefixはすべて通る
	for _, tel := range []string{"0712345678", "0112345678", "254712345678", "+254712345678"} {
		assert.True(t, validPhoneNumber(tel), tel)
	}
}

// draftの注文には支払えない
func TestSubmitPayment_DraftNotPayable(t *testing.T) {
	puc, ouc, m, _ := newPaymentTestEnv()
	seedProduct(m, 1, "mug", 500, 100, true)
	order, err := ouc.PlaceOrder(context.Background(), 100, PlaceOrderInput{
		Items: []OrderItemSpec{{ProductID: 1, Quantity: 1}},
	})
	assert.NoError(t, err)

	_, err = puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID:       order.ID,
		ReferenceCode: "QGH7XK21AB",
		PhoneNumber:   "0712345678",
	})
	he, _ := AsHTTPError(err)
	assert.Equal(t, "order not payable", he.Message)
}

// 同じ注文へ2件目のactiveな支払いは409
func TestSubmitPayment_DuplicateActive(t *testing.T) {
	puc, ouc, m, _ := newPaymentTestEnv()
	order := placeTestOrder(t, ouc, m, 100)

	_, err := puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID: order.ID, ReferenceCode: "QGH7XK21AB", PhoneNumber: "0712345678",
	})
	assert.NoError(t, err)

	_, err = puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID: order.ID, ReferenceCode: "ZZZ7XK21AB", PhoneNumber: "0712345678",
	})
	he, _ := AsHTTPError(err)
	assert.Equal(t, http.StatusConflict, he.Status)
	assert.Equal(t, "duplicate payment", he.Message)
}

// rejectedの後は再提出できる
func TestSubmitPayment_ResubmitAfterRejection(t *testing.T) {
	puc, ouc, m, _ := newPaymentTestEnv()
	order := placeTestOrder(t, ouc, m, 100)

	p1, err := puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID: order.ID, ReferenceCode: "QGH7XK21AB", PhoneNumber: "0712345678",
	})
	assert.NoError(t, err)

	_, err = puc.Verify(context.Background(), 1, p1.ID, model.DecisionReject)
	assert.NoError(t, err)

	p2, err := puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID: order.ID, ReferenceCode: "AAA7XK21AB", PhoneNumber: "0712345678",
	})
	assert.NoError(t, err)
	assert.Equal(t, "pending", p2.Status)
}

// 検証accept：支払いがverifiedになり、注文がconfirmedへ進む
func TestVerifyPayment_AcceptConfirmsOrder(t *testing.T) {
	puc, ouc, m, pub := newPaymentTestEnv()
	order := placeTestOrder(t, ouc, m, 100)

	p, err := puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID: order.ID, ReferenceCode: "QGH7XK21AB", PhoneNumber: "0712345678",
	})
	assert.NoError(t, err)

	out, err := puc.Verify(context.Background(), 1, p.ID, model.DecisionAccept)
	assert.NoError(t, err)
	assert.Equal(t, "verified", out.Status)
	assert.Equal(t, int64(1), *out.VerifiedBy)

	got := m.state.orders[order.ID]
	assert.Equal(t, model.OrderStatusConfirmed, got.Status)
	assert.Equal(t, int64(1), *got.ApprovedBy)
	assert.Contains(t, pub.types(), event.EventPaymentVerified)

	//監査ログが残る
	assert.Len(t, m.state.audits, 1)
	assert.Equal(t, model.AuditActionVerifyPayment, m.state.audits[0].Action)
}

// 同じ結論の再検証は冪等（成功のまま、監査ログは増えない）
func TestVerifyPayment_IdempotentSameDecision(t *testing.T) {
	puc, ouc, m, _ := newPaymentTestEnv()
	order := placeTestOrder(t, ouc, m, 100)

	p, err := puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID: order.ID, ReferenceCode: "QGH7XK21AB", PhoneNumber: "0712345678",
	})
	assert.NoError(t, err)

	_, err = puc.Verify(context.Background(), 1, p.ID, model.DecisionAccept)
	assert.NoError(t, err)

	out, err := puc.Verify(context.Background(), 2, p.ID, model.DecisionAccept)
	assert.NoError(t, err)
	assert.Equal(t, "verified", out.Status)
	//最初の検証者のまま
	assert.Equal(t, int64(1), *out.VerifiedBy)
	assert.Len(t, m.state.audits, 1)
}

// 逆の結論が先に入っていたら409
func TestVerifyPayment_ConflictingDecision(t *testing.T) {
	puc, ouc, m, _ := newPaymentTestEnv()
	order := placeTestOrder(t, ouc, m, 100)

	p, err := puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID: order.ID, ReferenceCode: "QGH7XK21AB", PhoneNumber: "0712345678",
	})
	assert.NoError(t, err)

	_, err = puc.Verify(context.Background(), 1, p.ID, model.DecisionAccept)
	assert.NoError(t, err)

	_, err = puc.Verify(context.Background(), 2, p.ID, model.DecisionReject)
	he, _ := AsHTTPError(err)
	assert.Equal(t, http.StatusConflict, he.Status)
	assert.Equal(t, "payment already finalized", he.Message)
}

// 却下しても注文は動かない（顧客がやり直せる）
func TestVerifyPayment_RejectLeavesOrderUntouched(t *testing.T) {
	puc, ouc, m, pub := newPaymentTestEnv()
	order := placeTestOrder(t, ouc, m, 100)

	p, err := puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID: order.ID, ReferenceCode: "QGH7XK21AB", PhoneNumber: "0712345678",
	})
	assert.NoError(t, err)

	out, err := puc.Verify(context.Background(), 1, p.ID, model.DecisionReject)
	assert.NoError(t, err)
	assert.Equal(t, "rejected", out.Status)
	assert.Equal(t, model.OrderStatusPending, m.state.orders[order.ID].Status)
	assert.Contains(t, pub.types(), event.EventPaymentRejected)
}

// pendingの間だけ修正・削除できる
func TestPayment_UpdateAndDeletePendingOnly(t *testing.T) {
	puc, ouc, m, _ := newPaymentTestEnv()
	order := placeTestOrder(t, ouc, m, 100)

	p, err := puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID: order.ID, ReferenceCode: "QGH7XK21AB", PhoneNumber: "0712345678",
	})
	assert.NoError(t, err)

	ref := "NEW7XK21AB"
	got, err := puc.UpdatePending(context.Background(), 100, p.ID, UpdatePaymentInput{ReferenceCode: &ref})
	assert.NoError(t, err)
	assert.Equal(t, "NEW7XK21AB", got.ReferenceCode)

	_, err = puc.Verify(context.Background(), 1, p.ID, model.DecisionAccept)
	assert.NoError(t, err)

	_, err = puc.UpdatePending(context.Background(), 100, p.ID, UpdatePaymentInput{ReferenceCode: &ref})
	he, _ := AsHTTPError(err)
	assert.Equal(t, "payment already finalized", he.Message)

	err = puc.DeletePending(context.Background(), 100, p.ID)
	he, _ = AsHTTPError(err)
	assert.Equal(t, "payment already finalized", he.Message)
}

// 他人の支払いは見えない
func TestPayment_ScopedToOwner(t *testing.T) {
	puc, ouc, m, _ := newPaymentTestEnv()
	order := placeTestOrder(t, ouc, m, 100)

	p, err := puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID: order.ID, ReferenceCode: "QGH7XK21AB", PhoneNumber: "0712345678",
	})
	assert.NoError(t, err)

	_, err = puc.Get(context.Background(), 200, model.RoleCustomer, p.ID)
	he, _ := AsHTTPError(err)
	assert.Equal(t, http.StatusNotFound, he.Status)

	//スタッフは見える
	_, err = puc.Get(context.Background(), 1, model.RoleStaff, p.ID)
	assert.NoError(t, err)

	//一覧も自分の分だけ
	list, err := puc.List(context.Background(), 200, model.RoleCustomer, PaymentListInput{Page: 1, Limit: 20})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), list.Total)
}

// 注文の支払い状況照会は最新の支払いを返す
func TestOrderPaymentStatus(t *testing.T) {
	puc, ouc, m, _ := newPaymentTestEnv()
	order := placeTestOrder(t, ouc, m, 100)

	st, err := puc.OrderPaymentStatus(context.Background(), 100, model.RoleCustomer, order.ID)
	assert.NoError(t, err)
	assert.False(t, st.HasPayment)

	p1, err := puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID: order.ID, ReferenceCode: "QGH7XK21AB", PhoneNumber: "0712345678",
	})
	assert.NoError(t, err)
	_, err = puc.Verify(context.Background(), 1, p1.ID, model.DecisionReject)
	assert.NoError(t, err)

	_, err = puc.Submit(context.Background(), 100, SubmitPaymentInput{
		OrderID: order.ID, ReferenceCode: "AAA7XK21AB", PhoneNumber: "0712345678",
	})
	assert.NoError(t, err)

	st, err = puc.OrderPaymentStatus(context.Background(), 100, model.RoleCustomer, order.ID)
	assert.NoError(t, err)
	assert.True(t, st.HasPayment)
	assert.Equal(t, "pending", st.PaymentStatus)
	assert.Equal(t, "AAA7XK21AB", st.Payment.ReferenceCode)
}
