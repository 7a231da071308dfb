package domain

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
)

// Keys the services keep their state under.
const (
	UsersKey       = "task_manager_users"
	SessionKey     = "current_user"
	DepartmentsKey = "departments"
	BoardKey       = "board"
)

// KV is the persisted key-value store backing every service. Values are JSON
// documents. Get reports found=false for a missing key rather than an error.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

func loadRecord(ctx context.Context, kv KV, key string, v any) (bool, error) {
	data, found, err := kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := sonic.ConfigStd.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func saveRecord(ctx context.Context, kv KV, key string, v any) error {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
