package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore keeps job records under <namespace>/jobs/<id>. Transitions are
// guarded with a compare-and-swap on the key's mod revision.
type EtcdStore struct {
	client *clientv3.Client
	prefix string
}

func NewEtcdStore(endpoints []string, namespace string, dialTimeout time.Duration) (*EtcdStore, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	return &EtcdStore{client: cli, prefix: "/" + namespace + "/jobs/"}, nil
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}

func (s *EtcdStore) key(id string) string {
	return s.prefix + id
}

func (s *EtcdStore) Put(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := s.key(rec.ID)

	for attempt := 0; attempt < 3; attempt++ {
		resp, err := s.client.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("etcd get %s: %w", key, err)
		}

		var from Status
		var rev int64
		if len(resp.Kvs) > 0 {
			var cur Record
			if err := json.Unmarshal(resp.Kvs[0].Value, &cur); err != nil {
				return fmt.Errorf("decode job %s: %w", rec.ID, err)
			}
			from, rev = cur.Status, resp.Kvs[0].ModRevision
		}
		if err := checkTransition(rec.ID, from, rec.Status); err != nil {
			return err
		}

		txn, err := s.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
			Then(clientv3.OpPut(key, string(data))).
			Commit()
		if err != nil {
			return fmt.Errorf("etcd put %s: %w", key, err)
		}
		if txn.Succeeded {
			return nil
		}
	}
	return fmt.Errorf("etcd put %s: concurrent updates", key)
}

func (s *EtcdStore) Get(ctx context.Context, id string) (Record, error) {
	resp, err := s.client.Get(ctx, s.key(id))
	if err != nil {
		return Record{}, fmt.Errorf("etcd get %s: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var rec Record
	if err := json.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		return Record{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return rec, nil
}

func (s *EtcdStore) List(ctx context.Context) ([]Record, error) {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd list: %w", err)
	}
	recs := make([]Record, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec Record
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	sortNewestFirst(recs)
	return recs, nil
}
