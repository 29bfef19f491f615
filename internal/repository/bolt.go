package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
)

var (
	ordersBucket   = []byte("orders")
	webhooksBucket = []byte("webhooks")
	digestsBucket  = []byte("webhook_digests")
)

// BoltStore is the embedded Store. Bolt serializes write transactions, so the
// read-check-write inside one Update is the PENDING compare-and-set.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{ordersBucket, webhooksBucket, digestsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func getOrder(b *bolt.Bucket, ref string) (*domain.Order, error) {
	v := b.Get([]byte(ref))
	if v == nil {
		return nil, domain.ErrOrderNotFound
	}
	var o domain.Order
	if err := json.Unmarshal(v, &o); err != nil {
		return nil, fmt.Errorf("order %s: %w", ref, err)
	}
	return &o, nil
}

func putOrder(b *bolt.Bucket, o *domain.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return b.Put([]byte(o.ReferenceCode), data)
}

func (s *BoltStore) AddOrder(_ context.Context, o *domain.Order) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ordersBucket)
		if b.Get([]byte(o.ReferenceCode)) != nil {
			return domain.ErrOrderAlreadyExists
		}
		return putOrder(b, o)
	})
}

func (s *BoltStore) GetOrder(_ context.Context, referenceCode string) (*domain.Order, error) {
	var o *domain.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		o, err = getOrder(tx.Bucket(ordersBucket), referenceCode)
		return err
	})
	return o, err
}

func (s *BoltStore) SetProviderOrderID(_ context.Context, referenceCode string, remote domain.RemoteOrder) (*domain.Order, error) {
	var o *domain.Order
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ordersBucket)
		var err error
		if o, err = getOrder(b, referenceCode); err != nil {
			return err
		}
		if o.ProviderOrderID != "" {
			return nil
		}
		o.ProviderOrderID = remote.ID
		o.ApproveURL = remote.ApproveURL
		o.UpdatedAt = time.Now().UTC()
		return putOrder(b, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *BoltStore) Transition(_ context.Context, t domain.Transition) (*domain.Order, error) {
	if !t.To.Terminal() {
		return nil, fmt.Errorf("%w: target %s is not terminal", domain.ErrIllegalTransition, t.To)
	}
	var (
		o       *domain.Order
		illegal bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ordersBucket)
		var err error
		if o, err = getOrder(b, t.ReferenceCode); err != nil {
			return err
		}
		if o.Status != domain.StatusPending {
			illegal = true
			return nil
		}
		o.Status = t.To
		o.ProviderTransactionID = t.ProviderTransactionID
		o.StatusReason = t.Reason
		o.UpdatedAt = time.Now().UTC()
		return putOrder(b, o)
	})
	if err != nil {
		return nil, err
	}
	if illegal {
		return o, domain.ErrIllegalTransition
	}
	return o, nil
}

func (s *BoltStore) AppendWebhook(_ context.Context, rec *domain.WebhookRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.PayloadDigest == "" {
		rec.PayloadDigest = PayloadDigest(rec.Provider, rec.Payload)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}

	duplicate := false
	err = s.db.Update(func(tx *bolt.Tx) error {
		digests := tx.Bucket(digestsBucket)
		var n uint64
		if v := digests.Get([]byte(rec.PayloadDigest)); v != nil {
			n = binary.BigEndian.Uint64(v)
			duplicate = true
		}
		cnt := make([]byte, 8)
		binary.BigEndian.PutUint64(cnt, n+1)
		if err := digests.Put([]byte(rec.PayloadDigest), cnt); err != nil {
			return err
		}

		// keys sort by receipt time
		key := make([]byte, 8, 8+len(rec.ID))
		binary.BigEndian.PutUint64(key, uint64(rec.ReceivedAt.UnixNano()))
		key = append(key, rec.ID...)
		return tx.Bucket(webhooksBucket).Put(key, data)
	})
	return duplicate, err
}

// Webhooks returns the log in receipt order.
func (s *BoltStore) Webhooks() ([]domain.WebhookRecord, error) {
	out := []domain.WebhookRecord{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(webhooksBucket).ForEach(func(_, v []byte) error {
			var r domain.WebhookRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}
