package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"printshop/internal/domain/model"
	"printshop/internal/event"
	repo "printshop/internal/repository"

	"go.uber.org/zap"
)

type PaymentUsecase struct {
	tx     repo.TransactionManager
	events event.Publisher
	clock  Clock
	log    *zap.Logger
}

func NewPaymentUsecase(tx repo.TransactionManager, events event.Publisher, clock Clock, log *zap.Logger) *PaymentUsecase {
	return &PaymentUsecase{tx: tx, events: events, clock: clock, log: log}
}

type SubmitPaymentInput struct {
	OrderID       int64  `json:"order_id"`
	ReferenceCode string `json:"reference_code"`
	PhoneNumber   string `json:"phone_number"`
}

type UpdatePaymentInput struct {
	ReferenceCode *string `json:"reference_code"`
	PhoneNumber   *string `json:"phone_number"`
}

type PaymentOutput struct {
	ID            int64  `json:"id"`
	OrderID       int64  `json:"order_id"`
	ReferenceCode string `json:"reference_code"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	PhoneNumber   string `json:"phone_number"`
	PaymentDate   string `json:"payment_date"`
	VerifiedBy    *int64 `json:"verified_by"`
}

type PaymentListOutput struct {
	Payments []PaymentOutput `json:"payments"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
}

// M-Pesaの取引コードは英数字10桁だが、手入力ゆれを考慮して8文字以上の英数字なら通す
func validReferenceCode(code string) bool {
	if len(code) < 8 {
		return false
	}
	for _, c := range code {
		ok := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !ok {
			return false
		}
	}
	return true
}

// ケニアの携帯番号。254/+254/07/01始まりだけ受け付ける。
func validPhoneNumber(phone string) bool {
	p := strings.ReplaceAll(phone, " ", "")
	p = strings.ReplaceAll(p, "-", "")

	digits := p
	if strings.HasPrefix(p, "+") {
		digits = p[1:]
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}

	switch {
	case strings.HasPrefix(p, "+254"):
		return len(p) == 13
	case strings.HasPrefix(p, "254"):
		return len(p) == 12
	case strings.HasPrefix(p, "07"), strings.HasPrefix(p, "01"):
		return len(p) == 10
	}
	return false
}

// 支払い提出。金額は注文の合計から取る（クライアントからは受け取らない）。
// 同じ注文にactiveな支払いがすでにあれば409。
func (u *PaymentUsecase) Submit(ctx context.Context, userID int64, in SubmitPaymentInput) (PaymentOutput, error) {
	if userID <= 0 {
		return PaymentOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if !validReferenceCode(in.ReferenceCode) {
		return PaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid reference code")
	}
	if !validPhoneNumber(in.PhoneNumber) {
		return PaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid phone number")
	}

	var out PaymentOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByID(ctx, in.OrderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if order.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		//draftは照合に使う顧客情報が揃っていないので対象外。終端状態も不可。
		if order.Status == model.OrderStatusDraft || order.Status.IsTerminal() {
			return NewHTTPError(http.StatusBadRequest, "order not payable")
		}

		//アプリ側の事前チェック。最終防衛線はDBの部分ユニーク。
		_, found, err := r.Payments().FindActiveByOrderID(ctx, in.OrderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if found {
			return NewHTTPError(http.StatusConflict, "duplicate payment")
		}

		p := model.Payment{
			OrderID:       in.OrderID,
			ReferenceCode: strings.ToUpper(strings.TrimSpace(in.ReferenceCode)),
			Amount:        order.TotalAmount,
			Status:        model.PaymentStatusPending,
			PhoneNumber:   strings.TrimSpace(in.PhoneNumber),
			PaymentDate:   u.clock.Now(),
		}

		id, err := r.Payments().Create(ctx, p)
		if err == repo.ErrConflict {
			return NewHTTPError(http.StatusConflict, "duplicate payment")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		p.ID = id
		out = toPaymentOutput(p)
		return nil
	})

	if err != nil {
		return PaymentOutput{}, err
	}
	return out, nil
}

// pendingの間だけ参照コード・電話番号を直せる
func (u *PaymentUsecase) UpdatePending(ctx context.Context, userID int64, paymentID int64, in UpdatePaymentInput) (PaymentOutput, error) {
	if userID <= 0 {
		return PaymentOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.ReferenceCode != nil && !validReferenceCode(*in.ReferenceCode) {
		return PaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid reference code")
	}
	if in.PhoneNumber != nil && !validPhoneNumber(*in.PhoneNumber) {
		return PaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid phone number")
	}

	var out PaymentOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := u.findOwnedPayment(ctx, r, userID, paymentID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentStatusPending {
			return NewHTTPError(http.StatusConflict, "payment already finalized")
		}

		if in.ReferenceCode != nil {
			p.ReferenceCode = strings.ToUpper(strings.TrimSpace(*in.ReferenceCode))
		}
		if in.PhoneNumber != nil {
			p.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
		}

		if err := r.Payments().Update(ctx, p); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = toPaymentOutput(p)
		return nil
	})

	if err != nil {
		return PaymentOutput{}, err
	}
	return out, nil
}

// pendingの支払いの取り下げ
func (u *PaymentUsecase) DeletePending(ctx context.Context, userID int64, paymentID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := u.findOwnedPayment(ctx, r, userID, paymentID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentStatusPending {
			return NewHTTPError(http.StatusConflict, "payment already finalized")
		}

		deleted, err := r.Payments().Delete(ctx, paymentID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !deleted {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return nil
	})
}

// スタッフによる検証。条件付きUPDATEで一度だけ終端へ進める。
// 同じ結論の再実行はno-op成功、逆の結論が先に入っていたら409。
func (u *PaymentUsecase) Verify(ctx context.Context, staffID int64, paymentID int64, decision model.Decision) (PaymentOutput, error) {
	if staffID <= 0 {
		return PaymentOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	target, err := model.PaymentReview.Finalize(model.PaymentStatusPending, decision)
	if err != nil {
		return PaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid review decision")
	}

	var out PaymentOutput
	var eventType string
	var orderNumber string
	var verifiedOrderID int64

	txErr := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Payments().FindByID(ctx, paymentID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		now := u.clock.Now()
		changed, err := r.Payments().FinalizeIf(ctx, paymentID, model.PaymentStatusPending, target, staffID, now)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !changed {
			//先に別の検証が入っている。結論が同じなら冪等成功。
			cur, err := r.Payments().FindByID(ctx, paymentID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if cur.Status == target {
				out = toPaymentOutput(cur)
				return nil
			}
			return NewHTTPError(http.StatusConflict, "payment already finalized")
		}

		//verified時は注文をconfirmedへ進める（pendingのときだけ）
		if target == model.PaymentStatusVerified {
			order, err := r.Orders().FindByID(ctx, p.OrderID)
			if err == nil && order.Status == model.OrderStatusPending {
				moved, err := r.Orders().UpdateStatusIf(ctx, p.OrderID, model.OrderStatusPending, model.OrderStatusConfirmed)
				if err != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
				if moved {
					if err := r.Orders().SetApprovedBy(ctx, p.OrderID, staffID); err != nil {
						return NewHTTPError(http.StatusInternalServerError, "db error")
					}
				}
			} else if err != nil && err != repo.ErrNotFound {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if err == nil {
				orderNumber = order.OrderNumber
			}
			eventType = event.EventPaymentVerified
		} else {
			//rejectedでは注文側は触らない。顧客は再提出できる。
			if order, err := r.Orders().FindByID(ctx, p.OrderID); err == nil {
				orderNumber = order.OrderNumber
			}
			eventType = event.EventPaymentRejected
		}

		beforeJSON, _ := json.Marshal(map[string]interface{}{"status": model.PaymentStatusPending})
		afterJSON, _ := json.Marshal(map[string]interface{}{"status": target})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  staffID,
			Action:       model.AuditActionVerifyPayment,
			ResourceType: model.AuditResourcePayment,
			ResourceID:   paymentID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		p.Status = target
		p.VerifiedBy = &staffID
		p.VerifiedAt = &now
		verifiedOrderID = p.OrderID
		out = toPaymentOutput(p)
		return nil
	})

	if txErr != nil {
		return PaymentOutput{}, txErr
	}

	if eventType != "" {
		u.events.Publish(ctx, eventType, orderNumber, map[string]interface{}{
			"payment_id":   paymentID,
			"order_id":     verifiedOrderID,
			"order_number": orderNumber,
			"verified_by":  staffID,
		})
	}
	return out, nil
}

// 支払い取得。スタッフは全件、顧客は自分の注文の分だけ。
func (u *PaymentUsecase) Get(ctx context.Context, actorID int64, role model.Role, paymentID int64) (PaymentOutput, error) {
	if actorID <= 0 {
		return PaymentOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var out PaymentOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var p model.Payment
		var err error
		if role.IsStaff() {
			p, err = r.Payments().FindByID(ctx, paymentID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		} else {
			p, err = u.findOwnedPayment(ctx, r, actorID, paymentID)
			if err != nil {
				return err
			}
		}
		out = toPaymentOutput(p)
		return nil
	})

	if err != nil {
		return PaymentOutput{}, err
	}
	return out, nil
}

type PaymentListInput struct {
	Page    int
	Limit   int
	Status  string
	OrderID *int64
}

func (u *PaymentUsecase) List(ctx context.Context, actorID int64, role model.Role, in PaymentListInput) (PaymentListOutput, error) {
	if actorID <= 0 {
		return PaymentListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 || in.Limit > 100 {
		in.Limit = 20
	}
	if in.Status != "" &&
		in.Status != string(model.PaymentStatusPending) &&
		in.Status != string(model.PaymentStatusVerified) &&
		in.Status != string(model.PaymentStatusRejected) {
		return PaymentListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	f := repo.PaymentListFilter{
		Page:    in.Page,
		Limit:   in.Limit,
		Status:  in.Status,
		OrderID: in.OrderID,
	}
	//顧客は自分の注文の支払いだけ
	if !role.IsStaff() {
		f.UserID = &actorID
	}

	var out PaymentListOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		payments, total, err := r.Payments().List(ctx, f)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs := make([]PaymentOutput, 0, len(payments))
		for _, p := range payments {
			outs = append(outs, toPaymentOutput(p))
		}
		out = PaymentListOutput{Payments: outs, Total: total, Page: in.Page, Limit: in.Limit}
		return nil
	})

	if err != nil {
		return PaymentListOutput{}, err
	}
	return out, nil
}

type OrderPaymentStatusOutput struct {
	OrderID       int64          `json:"order_id"`
	HasPayment    bool           `json:"has_payment"`
	PaymentStatus string         `json:"payment_status,omitempty"`
	Payment       *PaymentOutput `json:"payment,omitempty"`
}

// 注文の支払い状況照会（最新の支払いを見る）
func (u *PaymentUsecase) OrderPaymentStatus(ctx context.Context, actorID int64, role model.Role, orderID int64) (OrderPaymentStatusOutput, error) {
	if actorID <= 0 {
		return OrderPaymentStatusOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var out OrderPaymentStatusOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !role.IsStaff() && order.UserID != actorID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		p, found, err := r.Payments().FindLatestByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = OrderPaymentStatusOutput{OrderID: orderID, HasPayment: found}
		if found {
			po := toPaymentOutput(p)
			out.PaymentStatus = string(p.Status)
			out.Payment = &po
		}
		return nil
	})

	if err != nil {
		return OrderPaymentStatusOutput{}, err
	}
	return out, nil
}

// 注文の所有者経由で支払いの所有を判定する
func (u *PaymentUsecase) findOwnedPayment(ctx context.Context, r repo.TxRepos, userID int64, paymentID int64) (model.Payment, error) {
	p, err := r.Payments().FindByID(ctx, paymentID)
	if err == repo.ErrNotFound {
		return model.Payment{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Payment{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	order, err := r.Orders().FindByID(ctx, p.OrderID)
	if err != nil {
		return model.Payment{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if order.UserID != userID {
		return model.Payment{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return p, nil
}

func toPaymentOutput(p model.Payment) PaymentOutput {
	return PaymentOutput{
		ID:            p.ID,
		OrderID:       p.OrderID,
		ReferenceCode: p.ReferenceCode,
		Amount:        p.Amount,
		Status:        string(p.Status),
		PhoneNumber:   p.PhoneNumber,
		PaymentDate:   p.PaymentDate.Format("2006-01-02T15:04:05Z07:00"),
		VerifiedBy:    p.VerifiedBy,
	}
}
