package storage

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

// TableStore keeps each value as one Azure Table entity. The namespace is the
// partition key and the store key the row key.
type TableStore struct {
	table     *aztables.Client
	namespace string
}

// TableClientOptions is the retry policy used for every table client.
func TableClientOptions() *aztables.ClientOptions {
	return &aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
}

// NewTableStore opens the named table from a storage account connection string.
// The table must already exist; see cmd/storage-init.
func NewTableStore(connStr, table, namespace string) (*TableStore, error) {
	if table == "" {
		return nil, errors.New("storage: table name is required")
	}
	if namespace == "" {
		return nil, ErrNoNamespace
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, TableClientOptions())
	if err != nil {
		return nil, err
	}
	return &TableStore{table: svc.NewClient(table), namespace: namespace}, nil
}

type valueEntity struct {
	aztables.Entity
	Value string `json:"Value"`
}

func (s *TableStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := s.table.GetEntity(ctx, s.namespace, key, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	value, err := decodeValueEntity(resp.Value)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *TableStore) Set(ctx context.Context, key string, value []byte) error {
	payload, err := encodeValueEntity(s.namespace, key, value)
	if err != nil {
		return err
	}
	_, err = s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (s *TableStore) Delete(ctx context.Context, key string) error {
	_, err := s.table.DeleteEntity(ctx, s.namespace, key, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

func (s *TableStore) Ping(ctx context.Context) error {
	top := int32(1)
	filter := "PartitionKey eq '" + s.namespace + "'"
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	_, err := pager.NextPage(ctx)
	return err
}

func encodeValueEntity(partition, row string, value []byte) ([]byte, error) {
	return sonic.ConfigStd.Marshal(valueEntity{
		Entity: aztables.Entity{PartitionKey: partition, RowKey: row},
		Value:  string(value),
	})
}

func decodeValueEntity(data []byte) ([]byte, error) {
	var ent valueEntity
	if err := sonic.ConfigStd.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	return []byte(ent.Value), nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
