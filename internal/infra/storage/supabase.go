package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"
)

// Supabase Storageに画像を置く実装。
// キーは "<namespace>/<uuid>_<name>" で、承認時にnamespaceを付け替える。
type SupabaseImageStorage struct {
	client *storage_go.Client
	bucket string
}

func NewSupabaseImageStorage(supabaseURL, serviceRoleKey, bucket string) *SupabaseImageStorage {
	baseURL := strings.TrimSuffix(supabaseURL, "/")
	client := storage_go.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil)

	return &SupabaseImageStorage{
		client: client,
		bucket: bucket,
	}
}

func (s *SupabaseImageStorage) Store(ctx context.Context, data []byte, contentType string, namespace string, name string) (string, error) {
	key := fmt.Sprintf("%s/%s_%s", namespace, uuid.New().String(), name)

	upsert := false
	_, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("storage upload: %w", err)
	}

	return key, nil
}

// namespaceの付け替え。失敗したら呼び出し側のトランザクションごと失敗させる。
func (s *SupabaseImageStorage) Move(ctx context.Context, key string, namespace string) (string, error) {
	base := key
	if i := strings.Index(key, "/"); i >= 0 {
		base = key[i+1:]
	}
	newKey := namespace + "/" + base

	if _, err := s.client.MoveFile(s.bucket, key, newKey); err != nil {
		return "", fmt.Errorf("storage move: %w", err)
	}
	return newKey, nil
}

func (s *SupabaseImageStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.client.RemoveFile(s.bucket, []string{key}); err != nil {
		return fmt.Errorf("storage delete: %w", err)
	}
	return nil
}
