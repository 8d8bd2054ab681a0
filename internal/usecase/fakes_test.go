package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"printshop/internal/domain/model"
	repo "printshop/internal/repository"
)

// テスト用のインメモリ実装。
// WithinTxはstateのコピーの上でfnを実行し、エラー時はコピーごと捨てる
// （ロールバックの挙動まで含めて検証できるようにする）。

type memState struct {
	orders      map[int64]model.Order
	orderItems  map[int64]model.OrderItem
	products    map[int64]model.Product
	payments    map[int64]model.Payment
	images      map[int64]model.CustomImage
	pickups     map[int64]model.PickupPoint
	adjustments []model.InventoryAdjustment
	audits      []model.AuditLog
	nextID      int64

	failAuditCreate bool
}

func newMemState() *memState {
	return &memState{
		orders:     map[int64]model.Order{},
		orderItems: map[int64]model.OrderItem{},
		products:   map[int64]model.Product{},
		payments:   map[int64]model.Payment{},
		images:     map[int64]model.CustomImage{},
		pickups:    map[int64]model.PickupPoint{},
		nextID:     0,
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderItems {
		c.orderItems[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.images {
		c.images[k] = v
	}
	for k, v := range s.pickups {
		c.pickups[k] = v
	}
	c.adjustments = append([]model.InventoryAdjustment{}, s.adjustments...)
	c.audits = append([]model.AuditLog{}, s.audits...)
	c.nextID = s.nextID
	c.failAuditCreate = s.failAuditCreate
	return c
}

func (s *memState) newID() int64 {
	s.nextID++
	return s.nextID
}

type memTxManager struct {
	mu    sync.Mutex
	state *memState
}

func newMemTxManager() *memTxManager {
	return &memTxManager{state: newMemState()}
}

func (m *memTxManager) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memTx struct {
	s *memState
}

func (t *memTx) Orders() repo.OrderRepository            { return &memOrders{s: t.s} }
func (t *memTx) OrderItems() repo.OrderItemRepository    { return &memOrderItems{s: t.s} }
func (t *memTx) Products() repo.ProductRepository        { return &memProducts{s: t.s} }
func (t *memTx) Inventory() repo.InventoryRepository     { return &memInventory{s: t.s} }
func (t *memTx) Payments() repo.PaymentRepository        { return &memPayments{s: t.s} }
func (t *memTx) CustomImages() repo.CustomImageRepository { return &memImages{s: t.s} }
func (t *memTx) PickupPoints() repo.PickupPointRepository { return &memPickups{s: t.s} }
func (t *memTx) AuditLogs() repo.AuditLogRepository      { return &memAudits{s: t.s} }

// ---- orders ----

type memOrders struct{ s *memState }

func (r *memOrders) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	o, ok := r.s.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r *memOrders) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	var all []model.Order
	for _, o := range r.s.orders {
		if o.UserID == userID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, page, limit), int64(len(all)), nil
}

func (r *memOrders) Create(ctx context.Context, order model.Order) (int64, error) {
	for _, o := range r.s.orders {
		if o.OrderNumber == order.OrderNumber {
			return 0, repo.ErrConflict
		}
	}
	order.ID = r.s.newID()
	r.s.orders[order.ID] = order
	return order.ID, nil
}

func (r *memOrders) Update(ctx context.Context, order model.Order) error {
	cur, ok := r.s.orders[order.ID]
	if !ok {
		return repo.ErrNotFound
	}
	cur.CustomerName = order.CustomerName
	cur.CustomerPhone = order.CustomerPhone
	cur.DeliveryAddress = order.DeliveryAddress
	cur.City = order.City
	cur.PickupPointID = order.PickupPointID
	cur.OrderNotes = order.OrderNotes
	cur.Status = order.Status
	r.s.orders[order.ID] = cur
	return nil
}

func (r *memOrders) UpdateStatusIf(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) (bool, error) {
	cur, ok := r.s.orders[orderID]
	if !ok || cur.Status != from {
		return false, nil
	}
	cur.Status = to
	r.s.orders[orderID] = cur
	return true, nil
}

func (r *memOrders) SetApprovedBy(ctx context.Context, orderID int64, staffID int64) error {
	cur, ok := r.s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	cur.ApprovedBy = &staffID
	r.s.orders[orderID] = cur
	return nil
}

func (r *memOrders) AddToTotal(ctx context.Context, orderID int64, delta int64) error {
	cur, ok := r.s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	cur.TotalAmount += delta
	r.s.orders[orderID] = cur
	return nil
}

func (r *memOrders) ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error) {
	for _, o := range r.s.orders {
		if o.OrderNumber == orderNumber {
			return true, nil
		}
	}
	return false, nil
}

func (r *memOrders) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	var all []model.Order
	for _, o := range r.s.orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, f.Page, f.Limit), int64(len(all)), nil
}

// ---- order items ----

type memOrderItems struct{ s *memState }

func (r *memOrderItems) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	//採番したIDは呼び出し元のsliceへ書き戻す
	for i := range items {
		items[i].OrderID = orderID
		items[i].ID = r.s.newID()
		r.s.orderItems[items[i].ID] = items[i]
	}
	return nil
}

func (r *memOrderItems) FindByID(ctx context.Context, itemID int64) (model.OrderItem, error) {
	it, ok := r.s.orderItems[itemID]
	if !ok {
		return model.OrderItem{}, repo.ErrNotFound
	}
	return it, nil
}

func (r *memOrderItems) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	var items []model.OrderItem
	for _, it := range r.s.orderItems {
		if it.OrderID == orderID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *memOrderItems) Delete(ctx context.Context, itemID int64) (bool, error) {
	if _, ok := r.s.orderItems[itemID]; !ok {
		return false, nil
	}
	delete(r.s.orderItems, itemID)
	return true, nil
}

func (r *memOrderItems) DeleteByOrderID(ctx context.Context, orderID int64) error {
	for id, it := range r.s.orderItems {
		if it.OrderID == orderID {
			delete(r.s.orderItems, id)
		}
	}
	return nil
}

// ---- products / inventory ----

type memProducts struct{ s *memState }

func (r *memProducts) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var all []model.Product
	for _, p := range r.s.products {
		if p.IsActive {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, q.Page, q.Limit), int64(len(all)), nil
}

func (r *memProducts) FindByID(ctx context.Context, id int64) (model.Product, error) {
	p, ok := r.s.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (r *memProducts) Create(ctx context.Context, p model.Product) (model.Product, error) {
	p.ID = r.s.newID()
	r.s.products[p.ID] = p
	return p, nil
}

func (r *memProducts) Update(ctx context.Context, p model.Product) error {
	cur, ok := r.s.products[p.ID]
	if !ok {
		return repo.ErrNotFound
	}
	cur.Name = p.Name
	cur.Description = p.Description
	cur.Price = p.Price
	cur.ImageURL = p.ImageURL
	cur.IsActive = p.IsActive
	r.s.products[p.ID] = cur
	return nil
}

func (r *memProducts) SoftDelete(ctx context.Context, id int64) error {
	if _, ok := r.s.products[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.s.products, id)
	return nil
}

type memInventory struct{ s *memState }

func (r *memInventory) SetStock(ctx context.Context, productID int64, newStock int64) error {
	p, ok := r.s.products[productID]
	if !ok {
		return repo.ErrNotFound
	}
	p.Quantity = newStock
	r.s.products[productID] = p
	return nil
}

func (r *memInventory) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	p, ok := r.s.products[productID]
	if !ok || !p.IsActive || p.Quantity < qty {
		return false, nil
	}
	p.Quantity -= qty
	r.s.products[productID] = p
	return true, nil
}

func (r *memInventory) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	p, ok := r.s.products[productID]
	if !ok {
		return repo.ErrNotFound
	}
	p.Quantity += qty
	r.s.products[productID] = p
	return nil
}

func (r *memInventory) CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error {
	r.s.adjustments = append(r.s.adjustments, adjustment)
	return nil
}

// ---- payments ----

type memPayments struct{ s *memState }

func (r *memPayments) FindByID(ctx context.Context, paymentID int64) (model.Payment, error) {
	p, ok := r.s.payments[paymentID]
	if !ok {
		return model.Payment{}, repo.ErrNotFound
	}
	return p, nil
}

func (r *memPayments) FindActiveByOrderID(ctx context.Context, orderID int64) (model.Payment, bool, error) {
	for _, p := range r.s.payments {
		if p.OrderID == orderID && p.Status.IsActive() {
			return p, true, nil
		}
	}
	return model.Payment{}, false, nil
}

func (r *memPayments) FindLatestByOrderID(ctx context.Context, orderID int64) (model.Payment, bool, error) {
	var latest model.Payment
	found := false
	for _, p := range r.s.payments {
		if p.OrderID == orderID && (!found || p.ID > latest.ID) {
			latest = p
			found = true
		}
	}
	return latest, found, nil
}

func (r *memPayments) Create(ctx context.Context, p model.Payment) (int64, error) {
	//部分ユニーク（rejected以外は注文ごとに1件）の再現
	for _, cur := range r.s.payments {
		if cur.OrderID == p.OrderID && cur.Status != model.PaymentStatusRejected {
			return 0, repo.ErrConflict
		}
	}
	p.ID = r.s.newID()
	r.s.payments[p.ID] = p
	return p.ID, nil
}

func (r *memPayments) Update(ctx context.Context, p model.Payment) error {
	cur, ok := r.s.payments[p.ID]
	if !ok {
		return repo.ErrNotFound
	}
	cur.ReferenceCode = p.ReferenceCode
	cur.PhoneNumber = p.PhoneNumber
	r.s.payments[p.ID] = cur
	return nil
}

func (r *memPayments) FinalizeIf(ctx context.Context, paymentID int64, from model.PaymentStatus, to model.PaymentStatus, verifiedBy int64, at time.Time) (bool, error) {
	cur, ok := r.s.payments[paymentID]
	if !ok || cur.Status != from {
		return false, nil
	}
	cur.Status = to
	cur.VerifiedBy = &verifiedBy
	cur.VerifiedAt = &at
	r.s.payments[paymentID] = cur
	return true, nil
}

func (r *memPayments) Delete(ctx context.Context, paymentID int64) (bool, error) {
	if _, ok := r.s.payments[paymentID]; !ok {
		return false, nil
	}
	delete(r.s.payments, paymentID)
	return true, nil
}

func (r *memPayments) List(ctx context.Context, f repo.PaymentListFilter) ([]model.Payment, int64, error) {
	var all []model.Payment
	for _, p := range r.s.payments {
		if f.Status != "" && string(p.Status) != f.Status {
			continue
		}
		if f.OrderID != nil && p.OrderID != *f.OrderID {
			continue
		}
		if f.UserID != nil {
			o, ok := r.s.orders[p.OrderID]
			if !ok || o.UserID != *f.UserID {
				continue
			}
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, f.Page, f.Limit), int64(len(all)), nil
}

// ---- custom images ----

type memImages struct{ s *memState }

func (r *memImages) FindByID(ctx context.Context, imageID int64) (model.CustomImage, error) {
	img, ok := r.s.images[imageID]
	if !ok {
		return model.CustomImage{}, repo.ErrNotFound
	}
	return img, nil
}

func (r *memImages) FindByOrderItemID(ctx context.Context, orderItemID int64) (model.CustomImage, bool, error) {
	for _, img := range r.s.images {
		if img.OrderItemID != nil && *img.OrderItemID == orderItemID {
			return img, true, nil
		}
	}
	return model.CustomImage{}, false, nil
}

func (r *memImages) Create(ctx context.Context, img model.CustomImage) (int64, error) {
	if img.OrderItemID != nil {
		if _, exists, _ := r.FindByOrderItemID(ctx, *img.OrderItemID); exists {
			return 0, repo.ErrConflict
		}
	}
	img.ID = r.s.newID()
	r.s.images[img.ID] = img
	return img.ID, nil
}

func (r *memImages) UpdateIfPending(ctx context.Context, img model.CustomImage) (bool, error) {
	cur, ok := r.s.images[img.ID]
	if !ok || cur.ApprovalStatus != model.ImageStatusPending {
		return false, nil
	}
	if img.OrderItemID != nil {
		if other, exists, _ := r.FindByOrderItemID(ctx, *img.OrderItemID); exists && other.ID != img.ID {
			return false, repo.ErrConflict
		}
	}
	r.s.images[img.ID] = img
	return true, nil
}

func (r *memImages) Delete(ctx context.Context, imageID int64) (bool, error) {
	if _, ok := r.s.images[imageID]; !ok {
		return false, nil
	}
	delete(r.s.images, imageID)
	return true, nil
}

func (r *memImages) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]model.CustomImage, error) {
	var all []model.CustomImage
	for _, img := range r.s.images {
		if img.ApprovalStatus == model.ImageStatusPending && img.UploadDate.Before(cutoff) {
			all = append(all, img)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (r *memImages) List(ctx context.Context, f repo.CustomImageListFilter) ([]model.CustomImage, int64, error) {
	var all []model.CustomImage
	for _, img := range r.s.images {
		if f.OrderItemID != nil && (img.OrderItemID == nil || *img.OrderItemID != *f.OrderItemID) {
			continue
		}
		if f.ProductID != nil && (img.ProductID == nil || *img.ProductID != *f.ProductID) {
			continue
		}
		if f.HasProduct != nil && *f.HasProduct != (img.ProductID != nil) {
			continue
		}
		if f.UploaderID != nil && img.UploaderID != *f.UploaderID {
			continue
		}
		all = append(all, img)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, f.Page, f.Limit), int64(len(all)), nil
}

// ---- pickups / audits ----

type memPickups struct{ s *memState }

func (r *memPickups) FindByID(ctx context.Context, id int64) (model.PickupPoint, error) {
	p, ok := r.s.pickups[id]
	if !ok {
		return model.PickupPoint{}, repo.ErrNotFound
	}
	return p, nil
}

func (r *memPickups) ListActive(ctx context.Context) ([]model.PickupPoint, error) {
	var all []model.PickupPoint
	for _, p := range r.s.pickups {
		if p.IsActive {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (r *memPickups) Create(ctx context.Context, p model.PickupPoint) (model.PickupPoint, error) {
	p.ID = r.s.newID()
	r.s.pickups[p.ID] = p
	return p, nil
}

func (r *memPickups) Update(ctx context.Context, p model.PickupPoint) error {
	if _, ok := r.s.pickups[p.ID]; !ok {
		return repo.ErrNotFound
	}
	r.s.pickups[p.ID] = p
	return nil
}

type memAudits struct{ s *memState }

func (r *memAudits) Create(ctx context.Context, log model.AuditLog) error {
	if r.s.failAuditCreate {
		return fmt.Errorf("audit insert failed")
	}
	r.s.audits = append(r.s.audits, log)
	return nil
}

func paginate[T any](all []T, page int, limit int) []T {
	if limit <= 0 {
		return all
	}
	start := (page - 1) * limit
	if start < 0 {
		start = 0
	}
	if start >= len(all) {
		return []T{}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

// ---- storage / events / clock ----

type fakeStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	counter int

	failStore  bool
	failMove   bool
	failDelete bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: map[string][]byte{}}
}

func (s *fakeStorage) Store(ctx context.Context, data []byte, contentType string, namespace string, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStore {
		return "", fmt.Errorf("store failed")
	}
	s.counter++
	key := fmt.Sprintf("%s/%d_%s", namespace, s.counter, name)
	s.files[key] = data
	return key, nil
}

func (s *fakeStorage) Move(ctx context.Context, key string, namespace string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMove {
		return "", fmt.Errorf("move failed")
	}
	data, ok := s.files[key]
	if !ok {
		return "", fmt.Errorf("no such key: %s", key)
	}
	base := key
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			base = key[i+1:]
			break
		}
	}
	newKey := namespace + "/" + base
	delete(s.files, key)
	s.files[newKey] = data
	return newKey, nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete {
		return fmt.Errorf("delete failed")
	}
	delete(s.files, key)
	return nil
}

func (s *fakeStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[key]
	return ok
}

type capturedEvent struct {
	Type string
	Key  string
}

type recordPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *recordPublisher) Publish(ctx context.Context, eventType string, key string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{Type: eventType, Key: key})
}

func (p *recordPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time {
	return c.t
}
