package repository_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/migrate"
	"github.com/josepro66/CONFIGURATOR-sub000/internal/repository"
)

// newPostgresStore runs the migrations against TEST_DB_STRING and returns a
// store on it. Tests share the database, so every test uses fresh references.
func newPostgresStore(t *testing.T) *repository.OrderRepository {
	t.Helper()
	dsn := os.Getenv("TEST_DB_STRING")
	if dsn == "" {
		t.Skip("TEST_DB_STRING is not set")
	}
	ctx := context.Background()
	require.NoError(t, migrate.Up(ctx, dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return repository.NewOrderRepository(pool)
}

func freshRef() string {
	return "pg-" + uuid.NewString()
}

func TestPostgres_AddOrder_Conflict(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	ref := freshRef()

	require.NoError(t, s.AddOrder(ctx, pendingOrder(ref)))
	err := s.AddOrder(ctx, pendingOrder(ref))
	assert.True(t, errors.Is(err, domain.ErrOrderAlreadyExists))

	got, err := s.GetOrder(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "320.00", got.Amount.StringFixed(2))
	assert.JSONEq(t, `{"color":"red"}`, string(got.Customization))
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, domain.ProviderPayU, got.Provider)

	_, err = s.GetOrder(ctx, freshRef())
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
}

func TestPostgres_Transition_OnlyFromPending(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	ref := freshRef()
	require.NoError(t, s.AddOrder(ctx, pendingOrder(ref)))

	o, err := s.Transition(ctx, domain.Transition{ReferenceCode: ref, To: domain.StatusApproved, ProviderTransactionID: "tx-1", Reason: "4"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, o.Status)
	assert.Equal(t, "tx-1", o.ProviderTransactionID)
	assert.Equal(t, "4", o.StatusReason)

	o, err = s.Transition(ctx, domain.Transition{ReferenceCode: ref, To: domain.StatusRejected, ProviderTransactionID: "tx-2"})
	assert.True(t, errors.Is(err, domain.ErrIllegalTransition))
	require.NotNil(t, o)
	assert.Equal(t, domain.StatusApproved, o.Status)
	assert.Equal(t, "tx-1", o.ProviderTransactionID)

	_, err = s.Transition(ctx, domain.Transition{ReferenceCode: freshRef(), To: domain.StatusApproved})
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))

	_, err = s.Transition(ctx, domain.Transition{ReferenceCode: ref, To: domain.StatusPending})
	assert.True(t, errors.Is(err, domain.ErrIllegalTransition))
}

func TestPostgres_Transition_ConcurrentSingleWinner(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	ref := freshRef()
	require.NoError(t, s.AddOrder(ctx, pendingOrder(ref)))

	targets := []domain.Status{domain.StatusApproved, domain.StatusRejected}
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   []domain.Status
		losers int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(to domain.Status) {
			defer wg.Done()
			_, err := s.Transition(ctx, domain.Transition{ReferenceCode: ref, To: to})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins = append(wins, to)
			case errors.Is(err, domain.ErrIllegalTransition):
				losers++
			}
		}(targets[i%2])
	}
	wg.Wait()

	require.Len(t, wins, 1)
	assert.Equal(t, 9, losers)
	got, err := s.GetOrder(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, wins[0], got.Status)
}

func TestPostgres_SetProviderOrderID_SetOnce(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	ref := freshRef()
	require.NoError(t, s.AddOrder(ctx, pendingOrder(ref)))

	o, err := s.SetProviderOrderID(ctx, ref, domain.RemoteOrder{ID: "PP-1", ApproveURL: "https://paypal.test/approve/PP-1"})
	require.NoError(t, err)
	assert.Equal(t, "PP-1", o.ProviderOrderID)
	assert.Equal(t, "https://paypal.test/approve/PP-1", o.ApproveURL)

	o, err = s.SetProviderOrderID(ctx, ref, domain.RemoteOrder{ID: "PP-2", ApproveURL: "https://paypal.test/approve/PP-2"})
	require.NoError(t, err)
	assert.Equal(t, "PP-1", o.ProviderOrderID)
	assert.Equal(t, "https://paypal.test/approve/PP-1", o.ApproveURL)

	_, err = s.SetProviderOrderID(ctx, freshRef(), domain.RemoteOrder{ID: "PP-3"})
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
}

func TestPostgres_AppendWebhook_Duplicates(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	ref := freshRef()

	rec := func(payload string) *domain.WebhookRecord {
		return &domain.WebhookRecord{
			Provider:      domain.ProviderPayU,
			EventType:     "4",
			ReferenceCode: ref,
			Payload:       []byte(payload),
			Verdict:       domain.VerdictTrusted,
			ReceivedAt:    time.Now().UTC(),
		}
	}
	body := "reference_sale=" + ref + "&state_pol=4"

	first := rec(body)
	dup, err := s.AppendWebhook(ctx, first)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, repository.PayloadDigest(domain.ProviderPayU, []byte(body)), first.PayloadDigest)

	dup, err = s.AppendWebhook(ctx, rec(body))
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = s.AppendWebhook(ctx, rec("reference_sale="+ref+"&state_pol=6"))
	require.NoError(t, err)
	assert.False(t, dup)

	// same bytes from another provider are not a duplicate
	pp := rec(body)
	pp.Provider = domain.ProviderPayPal
	dup, err = s.AppendWebhook(ctx, pp)
	require.NoError(t, err)
	assert.False(t, dup)
}
