package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"printshop/internal/domain/model"
	"printshop/internal/event"
	repo "printshop/internal/repository"

	"go.uber.org/zap"
)

// 画像1枚あたりの上限は5MB
const maxImageBytes = 5 * 1024 * 1024

var allowedImageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
}

type CustomImageUsecase struct {
	tx      repo.TransactionManager
	storage repo.ImageStorage
	events  event.Publisher
	clock   Clock
	log     *zap.Logger

	// pendingのまま放置された一時画像を消すまでの日数
	retentionDays int
}

func NewCustomImageUsecase(tx repo.TransactionManager, storage repo.ImageStorage, events event.Publisher, clock Clock, log *zap.Logger, retentionDays int) *CustomImageUsecase {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &CustomImageUsecase{tx: tx, storage: storage, events: events, clock: clock, log: log, retentionDays: retentionDays}
}

type UploadImageInput struct {
	FileName    string
	ContentType string
	Data        []byte
	ProductID   *int64
	OrderItemID *int64
}

type CustomImageOutput struct {
	ID              int64  `json:"id"`
	OrderItemID     *int64 `json:"order_item_id"`
	ProductID       *int64 `json:"product_id"`
	UploaderID      int64  `json:"uploader_id"`
	StorageKey      string `json:"storage_key"`
	ImageName       string `json:"image_name"`
	ApprovalStatus  string `json:"approval_status"`
	ApprovedBy      *int64 `json:"approved_by"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	IsTemporary     bool   `json:"is_temporary"`
}

type CustomImageListOutput struct {
	Images []CustomImageOutput `json:"images"`
	Total  int64               `json:"total"`
	Page   int                 `json:"page"`
	Limit  int                 `json:"limit"`
}

func validImageFile(name string, data []byte) bool {
	if len(data) == 0 || len(data) > maxImageBytes {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return allowedImageExts[ext]
}

// 画像アップロード。まずpending namespaceへ置いてからレコードを作る。
// レコード作成に失敗したらファイルを消して戻す。
func (u *CustomImageUsecase) Upload(ctx context.Context, uploaderID int64, in UploadImageInput) (CustomImageOutput, error) {
	if uploaderID <= 0 {
		return CustomImageOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if !validImageFile(in.FileName, in.Data) {
		return CustomImageOutput{}, NewHTTPError(http.StatusBadRequest, "invalid image file")
	}

	key, err := u.storage.Store(ctx, in.Data, in.ContentType, repo.StorageNamespacePending, filepath.Base(in.FileName))
	if err != nil {
		u.log.Error("image upload failed", zap.Error(err))
		return CustomImageOutput{}, NewHTTPError(http.StatusBadGateway, "storage failure")
	}

	var out CustomImageOutput

	txErr := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//存在しない商品には紐づけない
		if in.ProductID != nil {
			_, err := r.Products().FindByID(ctx, *in.ProductID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusBadRequest, "product unavailable")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		img := model.CustomImage{
			ProductID:      in.ProductID,
			UploaderID:     uploaderID,
			StorageKey:     key,
			ImageName:      filepath.Base(in.FileName),
			ApprovalStatus: model.ImageStatusPending,
			IsTemporary:    true,
			UploadDate:     u.clock.Now(),
		}

		//アップロード時点で明細に紐づける場合
		if in.OrderItemID != nil {
			if err := u.checkAttachable(ctx, r, uploaderID, *in.OrderItemID); err != nil {
				return err
			}
			img.OrderItemID = in.OrderItemID
			img.IsTemporary = false
		}

		id, err := r.CustomImages().Create(ctx, img)
		if err == repo.ErrConflict {
			return NewHTTPError(http.StatusConflict, "duplicate image")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		img.ID = id
		out = toImageOutput(img)
		return nil
	})

	if txErr != nil {
		//レコードが作れなかったファイルは残さない
		if derr := u.storage.Delete(ctx, key); derr != nil {
			u.log.Error("orphan image cleanup failed", zap.String("key", key), zap.Error(derr))
		}
		return CustomImageOutput{}, txErr
	}
	return out, nil
}

// 一時画像を明細へ紐づける。pendingの間だけ。
func (u *CustomImageUsecase) Attach(ctx context.Context, userID int64, imageID int64, orderItemID int64) (CustomImageOutput, error) {
	if userID <= 0 {
		return CustomImageOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var out CustomImageOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		img, err := r.CustomImages().FindByID(ctx, imageID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if img.UploaderID != userID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if img.ApprovalStatus.IsTerminal() {
			return NewHTTPError(http.StatusConflict, "image already finalized")
		}
		if img.OrderItemID != nil {
			return NewHTTPError(http.StatusBadRequest, "image already attached")
		}

		if err := u.checkAttachable(ctx, r, userID, orderItemID); err != nil {
			return err
		}

		img.OrderItemID = &orderItemID
		img.IsTemporary = false

		changed, err := r.CustomImages().UpdateIfPending(ctx, img)
		if err == repo.ErrConflict {
			return NewHTTPError(http.StatusConflict, "duplicate image")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !changed {
			return NewHTTPError(http.StatusConflict, "image already finalized")
		}

		out = toImageOutput(img)
		return nil
	})

	if err != nil {
		return CustomImageOutput{}, err
	}
	return out, nil
}

// 承認。ファイル移動とレコード更新を同じトランザクションで行う。
// 監査ログを先に書き、移動後に失敗しうるDB書き込みをレコード更新だけに
// しておく。移動が失敗すればロールバック、更新が競合したら移動を戻す。
// product_idを渡された場合は商品の存在を確認して紐づける。
func (u *CustomImageUsecase) Approve(ctx context.Context, staffID int64, imageID int64, productID *int64) (CustomImageOutput, error) {
	if staffID <= 0 {
		return CustomImageOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var out CustomImageOutput
	var approved bool

	txErr := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		img, err := r.CustomImages().FindByID(ctx, imageID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if img.ApprovalStatus.IsTerminal() {
			//同じ結論の再実行は冪等成功
			if img.ApprovalStatus == model.ImageStatusApproved {
				out = toImageOutput(img)
				return nil
			}
			return NewHTTPError(http.StatusConflict, "image already finalized")
		}

		if productID != nil {
			_, err := r.Products().FindByID(ctx, *productID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusBadRequest, "product unavailable")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			img.ProductID = productID
		}

		now := u.clock.Now()
		beforeJSON, _ := json.Marshal(map[string]interface{}{"approval_status": model.ImageStatusPending})
		afterJSON, _ := json.Marshal(map[string]interface{}{"approval_status": model.ImageStatusApproved})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  staffID,
			Action:       model.AuditActionReviewImage,
			ResourceType: model.AuditResourceImage,
			ResourceID:   imageID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		oldKey := img.StorageKey
		newKey, err := u.storage.Move(ctx, oldKey, repo.StorageNamespaceApproved)
		if err != nil {
			u.log.Error("image move failed", zap.String("key", oldKey), zap.Error(err))
			return NewHTTPError(http.StatusBadGateway, "storage failure")
		}

		img.StorageKey = newKey
		img.ApprovalStatus = model.ImageStatusApproved
		img.ApprovedBy = &staffID
		img.ApprovalDate = &now

		changed, err := r.CustomImages().UpdateIfPending(ctx, img)
		if err != nil || !changed {
			//レコードを更新できなかったのでファイルを元へ戻す
			if _, merr := u.storage.Move(ctx, newKey, repo.StorageNamespacePending); merr != nil {
				u.log.Error("image move rollback failed", zap.String("key", newKey), zap.Error(merr))
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			return NewHTTPError(http.StatusConflict, "image already finalized")
		}

		approved = true
		out = toImageOutput(img)
		return nil
	})

	if txErr != nil {
		return CustomImageOutput{}, txErr
	}

	if approved {
		u.events.Publish(ctx, event.EventImageApproved, out.StorageKey, map[string]interface{}{
			"image_id":    imageID,
			"approved_by": staffID,
		})
	}
	return out, nil
}

// 却下。理由必須。却下後のファイルは残さない。
func (u *CustomImageUsecase) Reject(ctx context.Context, staffID int64, imageID int64, reason string) (CustomImageOutput, error) {
	if staffID <= 0 {
		return CustomImageOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(reason) == "" {
		return CustomImageOutput{}, NewHTTPError(http.StatusBadRequest, "rejection reason required")
	}

	var out CustomImageOutput
	var rejected bool

	txErr := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		img, err := r.CustomImages().FindByID(ctx, imageID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if img.ApprovalStatus.IsTerminal() {
			if img.ApprovalStatus == model.ImageStatusRejected {
				out = toImageOutput(img)
				return nil
			}
			return NewHTTPError(http.StatusConflict, "image already finalized")
		}

		now := u.clock.Now()
		storageKey := img.StorageKey
		img.ApprovalStatus = model.ImageStatusRejected
		img.ApprovedBy = &staffID
		img.ApprovalDate = &now
		img.RejectionReason = strings.TrimSpace(reason)

		changed, err := r.CustomImages().UpdateIfPending(ctx, img)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !changed {
			return NewHTTPError(http.StatusConflict, "image already finalized")
		}

		beforeJSON, _ := json.Marshal(map[string]interface{}{"approval_status": model.ImageStatusPending})
		afterJSON, _ := json.Marshal(map[string]interface{}{"approval_status": model.ImageStatusRejected, "reason": img.RejectionReason})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  staffID,
			Action:       model.AuditActionReviewImage,
			ResourceType: model.AuditResourceImage,
			ResourceID:   imageID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//削除は取り消せないので最後に行う。失敗したら却下ごと巻き戻す。
		if err := u.storage.Delete(ctx, storageKey); err != nil {
			u.log.Error("rejected image delete failed", zap.String("key", storageKey), zap.Error(err))
			return NewHTTPError(http.StatusBadGateway, "storage failure")
		}

		rejected = true
		out = toImageOutput(img)
		return nil
	})

	if txErr != nil {
		return CustomImageOutput{}, txErr
	}

	if rejected {
		u.events.Publish(ctx, event.EventImageRejected, out.ImageName, map[string]interface{}{
			"image_id":    imageID,
			"rejected_by": staffID,
			"reason":      out.RejectionReason,
		})
	}
	return out, nil
}

// アップロード者による削除。pendingの間だけ。
func (u *CustomImageUsecase) Delete(ctx context.Context, actorID int64, role model.Role, imageID int64) error {
	if actorID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var storageKey string

	txErr := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		img, err := r.CustomImages().FindByID(ctx, imageID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !role.IsStaff() {
			if img.UploaderID != actorID {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			if img.ApprovalStatus.IsTerminal() {
				return NewHTTPError(http.StatusConflict, "image already finalized")
			}
		}

		deleted, err := r.CustomImages().Delete(ctx, imageID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !deleted {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		storageKey = img.StorageKey
		return nil
	})

	if txErr != nil {
		return txErr
	}

	//レコードが消えた後のファイル削除はベストエフォート
	if err := u.storage.Delete(ctx, storageKey); err != nil {
		u.log.Error("image file delete failed", zap.String("key", storageKey), zap.Error(err))
	}
	return nil
}

func (u *CustomImageUsecase) Get(ctx context.Context, actorID int64, role model.Role, imageID int64) (CustomImageOutput, error) {
	if actorID <= 0 {
		return CustomImageOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var out CustomImageOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		img, err := r.CustomImages().FindByID(ctx, imageID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !role.IsStaff() && img.UploaderID != actorID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		out = toImageOutput(img)
		return nil
	})

	if err != nil {
		return CustomImageOutput{}, err
	}
	return out, nil
}

type CustomImageListInput struct {
	Page        int
	Limit       int
	OrderItemID *int64
	ProductID   *int64
	HasProduct  *bool
}

func (u *CustomImageUsecase) List(ctx context.Context, actorID int64, role model.Role, in CustomImageListInput) (CustomImageListOutput, error) {
	if actorID <= 0 {
		return CustomImageListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 || in.Limit > 100 {
		in.Limit = 20
	}

	f := repo.CustomImageListFilter{
		Page:        in.Page,
		Limit:       in.Limit,
		OrderItemID: in.OrderItemID,
		ProductID:   in.ProductID,
		HasProduct:  in.HasProduct,
	}
	if !role.IsStaff() {
		f.UploaderID = &actorID
	}

	var out CustomImageListOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		images, total, err := r.CustomImages().List(ctx, f)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs := make([]CustomImageOutput, 0, len(images))
		for _, img := range images {
			outs = append(outs, toImageOutput(img))
		}
		out = CustomImageListOutput{Images: outs, Total: total, Page: in.Page, Limit: in.Limit}
		return nil
	})

	if err != nil {
		return CustomImageListOutput{}, err
	}
	return out, nil
}

// 保持期限を過ぎてもpendingのままの一時画像を消す。
// cmd/cleanupから定期実行される。
func (u *CustomImageUsecase) CleanupAbandoned(ctx context.Context) (int, error) {
	cutoff := u.clock.Now().AddDate(0, 0, -u.retentionDays)

	var targets []model.CustomImage

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		images, err := r.CustomImages().ListPendingBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		for _, img := range images {
			//明細に紐づいた画像は消さない
			if !img.IsTemporary {
				continue
			}
			targets = append(targets, img)
		}
		return nil
	})

	if err != nil {
		return 0, err
	}

	removed := 0
	for _, img := range targets {
		//ファイルが消えるまでレコードを残す。失敗分は次回の実行で再試行される。
		if err := u.storage.Delete(ctx, img.StorageKey); err != nil {
			u.log.Error("abandoned image delete failed", zap.String("key", img.StorageKey), zap.Error(err))
			continue
		}
		err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			_, err := r.CustomImages().Delete(ctx, img.ID)
			return err
		})
		if err != nil {
			u.log.Error("abandoned image record delete failed", zap.Int64("id", img.ID), zap.Error(err))
			continue
		}
		removed++
	}

	u.log.Info("image cleanup finished", zap.Int("removed", removed), zap.Time("cutoff", cutoff))
	return removed, nil
}

// 明細へ画像を付けられるかの共通チェック。
// 明細の所有者で、注文が編集可能で、まだ画像が付いていないこと。
func (u *CustomImageUsecase) checkAttachable(ctx context.Context, r repo.TxRepos, userID int64, orderItemID int64) error {
	item, err := r.OrderItems().FindByID(ctx, orderItemID)
	if err == repo.ErrNotFound {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	order, err := r.Orders().FindByID(ctx, item.OrderID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if order.UserID != userID {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if order.Status.IsTerminal() {
		return NewHTTPError(http.StatusBadRequest, "order locked")
	}

	_, exists, err := r.CustomImages().FindByOrderItemID(ctx, orderItemID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if exists {
		return NewHTTPError(http.StatusConflict, "duplicate image")
	}
	return nil
}

func toImageOutput(img model.CustomImage) CustomImageOutput {
	return CustomImageOutput{
		ID:              img.ID,
		OrderItemID:     img.OrderItemID,
		ProductID:       img.ProductID,
		UploaderID:      img.UploaderID,
		StorageKey:      img.StorageKey,
		ImageName:       img.ImageName,
		ApprovalStatus:  string(img.ApprovalStatus),
		ApprovedBy:      img.ApprovedBy,
		RejectionReason: img.RejectionReason,
		IsTemporary:     img.IsTemporary,
	}
}
