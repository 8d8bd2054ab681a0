package usecase

import (
	"context"
	"net/http"
	"testing"

	"printshop/internal/domain/model"

	"github.com/stretchr/testify/assert"
)

func newProductTestEnv() (*ProductUsecase, *memState) {
	s := newMemState()
	uc := NewProductUsecase(
		&memProducts{s: s},
		&memInventory{s: s},
		&memAudits{s: s},
		fixedClock{t: testTime},
	)
	return uc, s
}

// 公開一覧はactiveのみ
func TestListPublicProducts(t *testing.T) {
	uc, s := newProductTestEnv()
	s.products[1] = model.Product{ID: 1, Name: "mug", Price: 500, IsActive: true}
	s.products[2] = model.Product{ID: 2, Name: "hidden", Price: 100, IsActive: false}
	s.nextID = 2

	out, err := uc.ListPublicProducts(context.Background(), ListProductsInput{Page: 1, Limit: 20})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), out.Total)
	assert.Equal(t, "mug", out.Items[0].Name)

	//非公開商品は詳細でも404
	_, err = uc.GetProductDetail(context.Background(), 2)
	he, _ := AsHTTPError(err)
	assert.Equal(t, http.StatusNotFound, he.Status)
}

func TestListPublicProducts_Validation(t *testing.T) {
	uc, _ := newProductTestEnv()

	_, err := uc.ListPublicProducts(context.Background(), ListProductsInput{Page: 0, Limit: 20})
	he, _ := AsHTTPError(err)
	assert.Equal(t, "invalid page", he.Message)

	_, err = uc.ListPublicProducts(context.Background(), ListProductsInput{Page: 1, Limit: 20, Sort: "oldest"})
	he, _ = AsHTTPError(err)
	assert.Equal(t, "invalid sort", he.Message)
}

func TestAdminCreateProduct(t *testing.T) {
	uc, s := newProductTestEnv()

	id, err := uc.AdminCreateProduct(context.Background(), 5, AdminCreateProductInput{
		Name:     "  mug  ",
		Price:    500,
		Quantity: 10,
		IsActive: true,
	})
	assert.NoError(t, err)

	p := s.products[id]
	assert.Equal(t, "mug", p.Name)
	assert.Equal(t, int64(5), *p.CreatedBy)

	_, err = uc.AdminCreateProduct(context.Background(), 5, AdminCreateProductInput{Name: " ", Price: 1})
	he, _ := AsHTTPError(err)
	assert.Equal(t, "name required", he.Message)

	_, err = uc.AdminCreateProduct(context.Background(), 5, AdminCreateProductInput{Name: "x", Price: -1})
	he, _ = AsHTTPError(err)
	assert.Equal(t, "price must be >= 0", he.Message)
}

// 在庫更新：現在値の設定と、調整履歴・監査ログの記録
func TestAdminUpdateInventory(t *testing.T) {
	uc, s := newProductTestEnv()
	s.products[1] = model.Product{ID: 1, Name: "mug", Price: 500, Quantity: 10, IsActive: true}
	s.nextID = 1

	err := uc.AdminUpdateInventory(context.Background(), 5, 1, 25, "restock delivery")
	assert.NoError(t, err)
	assert.Equal(t, int64(25), s.products[1].Quantity)

	assert.Len(t, s.adjustments, 1)
	assert.Equal(t, int64(15), s.adjustments[0].Delta)
	assert.Equal(t, int64(5), s.adjustments[0].ActorUserID)

	assert.Len(t, s.audits, 1)
	assert.Equal(t, model.AuditActionUpdateStock, s.audits[0].Action)

	//理由は必須
	err = uc.AdminUpdateInventory(context.Background(), 5, 1, 30, "")
	he, _ := AsHTTPError(err)
	assert.Equal(t, "reason required", he.Message)
}
