// Package kvactions provides the built-in "kv" manager: key/value actions
// over a shared Postgres-backed store.
package kvactions

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/morezero/action-gateway/pkg/action"
	"github.com/morezero/action-gateway/pkg/manager"
	"github.com/morezero/action-gateway/pkg/store"
)

// ManagerName is the registry name of the kv manager.
const ManagerName = "kv"

type keyQuery struct {
	Key string `json:"key"`
}

type putInput struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type listInput struct {
	Limit int `json:"limit"`
}

// NewManager builds the kv manager in shared mode over one store instance.
// The pgx pool handles its own synchronization across concurrent dispatches.
func NewManager(kv *store.KV, opts ...manager.Option[*store.KV]) *manager.Manager[*store.KV] {
	m := manager.New[*store.KV](ManagerName, kv, opts...)

	m.Register("get", func(kv *store.KV, act *action.Action) (any, error) {
		q, err := action.FromPayload[keyQuery](act)
		if err != nil {
			return nil, err
		}
		if q.Key == "" {
			return nil, action.NewError("KeyError", "key is required")
		}
		value, err := kv.Get(context.Background(), q.Key)
		if errors.Is(err, store.ErrNotFound) {
			return nil, action.Errorf("NotFound", "no value for key %q", q.Key)
		}
		if err != nil {
			return action.Err("StoreError", err)
		}
		return map[string]json.RawMessage{"key": mustQuote(q.Key), "value": value}, nil
	})

	m.Register("put", func(kv *store.KV, act *action.Action) (any, error) {
		in, err := action.FromPayload[putInput](act)
		if err != nil {
			return nil, err
		}
		if in.Key == "" {
			return nil, action.NewError("KeyError", "key is required")
		}
		if len(in.Value) == 0 {
			return nil, action.NewError("KeyError", "value is required")
		}
		if err := kv.Put(context.Background(), in.Key, in.Value); err != nil {
			return action.Err("StoreError", err)
		}
		return action.Done(), nil
	})

	m.Register("delete", func(kv *store.KV, act *action.Action) (any, error) {
		q, err := action.FromPayload[keyQuery](act)
		if err != nil {
			return nil, err
		}
		if q.Key == "" {
			return nil, action.NewError("KeyError", "key is required")
		}
		removed, err := kv.Delete(context.Background(), q.Key)
		if err != nil {
			return action.Err("StoreError", err)
		}
		return map[string]bool{"deleted": removed}, nil
	})

	m.Register("list", func(kv *store.KV, act *action.Action) (any, error) {
		in, err := action.FromPayload[listInput](act)
		if err != nil {
			return nil, err
		}
		keys, err := kv.List(context.Background(), in.Limit)
		if err != nil {
			return action.Err("StoreError", err)
		}
		return map[string][]string{"keys": keys}, nil
	})

	return m
}

// InitSchema is the manager's init hook: it ensures the backing table exists.
// A failure here is fatal to startup.
func InitSchema(ctx context.Context) manager.InitHandler[*store.KV] {
	return func(kv *store.KV) error {
		return kv.EnsureSchema(ctx)
	}
}

func mustQuote(s string) json.RawMessage {
	raw, err := json.Marshal(s)
	if err != nil {
		// Strings always marshal.
		panic(err)
	}
	return raw
}
