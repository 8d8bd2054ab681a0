package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	JWTSecret string // JWT署名シークレット

	SupabaseURL        string // Supabaseプロジェクトの URL
	SupabaseServiceKey string // service roleキー（画像の保存・移動に使う）
	StorageBucket      string // 画像バケット名

	KafkaBrokers []string // 空なら通知イベントは流さない
	KafkaTopic   string   // イベントのトピック名

	CleanupRetentionDays int // 放置されたpending画像を消すまでの日数

	GoEnv string // dev/prod
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port: os.Getenv("PORT"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
		StorageBucket:      os.Getenv("STORAGE_BUCKET"),

		KafkaTopic: os.Getenv("KAFKA_TOPIC"),

		GoEnv: os.Getenv("GO_ENV"),
	}

	//Kafkaはカンマ区切りで複数ブローカー
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			b = strings.TrimSpace(b)
			if b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "printshop.events"
	}

	cfg.CleanupRetentionDays = 7
	if v := os.Getenv("CLEANUP_RETENTION_DAYS"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("CLEANUP_RETENTION_DAYS must be number: %w", err)
		}
		cfg.CleanupRetentionDays = d
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.SupabaseURL == "" {
		return Config{}, fmt.Errorf("SUPABASE_URL is required")
	}
	if cfg.SupabaseServiceKey == "" {
		return Config{}, fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if cfg.StorageBucket == "" {
		return Config{}, fmt.Errorf("STORAGE_BUCKET is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}

	return cfg, nil
}
