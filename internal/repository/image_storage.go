package repository

import "context"

// 画像の置き場所。承認前後でnamespaceを分ける。
const (
	StorageNamespacePending  = "pending"
	StorageNamespaceApproved = "approved"
)

// 外部オブジェクトストレージの約束。
// 失敗は必ずerrorで返る（黙って握りつぶさない）。
type ImageStorage interface {
	// 保存してキー（locator）を返す
	Store(ctx context.Context, data []byte, contentType string, namespace string, name string) (string, error)

	// 別namespaceへ移動して新しいキーを返す
	Move(ctx context.Context, key string, namespace string) (string, error)

	Delete(ctx context.Context, key string) error
}
