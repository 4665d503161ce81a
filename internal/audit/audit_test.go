package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/hospital-bed-platform/internal/scoring"
	"github.com/wolfman30/hospital-bed-platform/internal/workflow"
)

type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	id := in.Item["recommendationId"].(*types.AttributeValueMemberS).Value
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	id := in.Key["recommendationId"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[id]}, nil
}

func sampleResult() scoring.Result {
	return scoring.Result{
		PatientID: "p-1",
		Reason:    "bed ICU-01 in ICU ranked best with 96.3% confidence",
		Candidates: []scoring.CandidateScore{
			{BedID: "ICU-01", Ward: "ICU", Aggregate: 0.9625, Confidence: 96.3, Reasons: []string{"matches ICU"}},
			{BedID: "GEN-01", Ward: "General", Aggregate: 0.41, Confidence: 41},
		},
	}
}

func TestRecommendationStoreRoundTripWithTTL(t *testing.T) {
	dynamo := newFakeDynamo()
	store := NewRecommendationStore(dynamo, "recommendations", nil)
	now := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	rec := NewRecommendationRecord(sampleResult(), "ICU policy applies.", now)
	require.NoError(t, store.Put(context.Background(), rec))

	var stored RecommendationRecord
	require.NoError(t, attributevalue.UnmarshalMap(dynamo.items[rec.RecommendationID], &stored))
	assert.Equal(t, now.Add(recommendationTTL).Unix(), stored.ExpiresAt)

	got, err := store.Get(context.Background(), rec.RecommendationID)
	require.NoError(t, err)
	assert.Equal(t, "p-1", got.PatientID)
	require.Len(t, got.Candidates, 2)
	assert.Equal(t, "ICU-01", got.Candidates[0].BedID)
	assert.Equal(t, "ICU policy applies.", got.Justification)

	now = now.Add(recommendationTTL + time.Second)
	_, err = store.Get(context.Background(), rec.RecommendationID)
	assert.ErrorIs(t, err, ErrRecommendationNotFound)
}

func TestRecommendationStoreErrors(t *testing.T) {
	dynamo := newFakeDynamo()
	store := NewRecommendationStore(dynamo, "recommendations", nil)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRecommendationNotFound)

	assert.Error(t, store.Put(context.Background(), RecommendationRecord{}))

	dynamo.err = errors.New("throttled")
	err = store.Put(context.Background(), NewRecommendationRecord(sampleResult(), "", time.Now()))
	assert.ErrorContains(t, err, "throttled")
}

func TestLedgerRecordOutcome(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	wf := workflow.Workflow{
		ID: "wf-1", PatientID: "p-1", BedID: "ICU-02", State: workflow.StateCommitted,
		RetryCount: 1, Reason: "patient p-1 admitted to bed ICU-02 in ICU",
		Attempts:  []workflow.Attempt{{BedID: "ICU-01", Reason: "bed was no longer vacant"}},
		CreatedAt: now.Add(-time.Second), UpdatedAt: now,
	}
	mock.ExpectExec("INSERT INTO assignment_ledger").
		WithArgs("wf-1", "p-1", "ICU-02", "committed", "", wf.Reason, 1, sqlmock.AnyArg(), wf.CreatedAt, wf.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewLedger(db).RecordOutcome(context.Background(), wf))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRejectsRunningWorkflow(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = NewLedger(db).RecordOutcome(context.Background(), workflow.Workflow{ID: "wf-1", State: workflow.StateReserved})
	assert.Error(t, err)
}

func TestLedgerRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"workflow_id", "patient_id", "bed_id", "state", "failure_kind", "reason", "retry_count", "attempted_beds", "started_at", "finished_at"}).
		AddRow("wf-2", "p-2", "", "failed", "no_available_bed", "all 2 candidate bed(s) were taken", 1, "{ICU-01,ICU-02}", now, now).
		AddRow("wf-1", "p-1", "ICU-02", "committed", "", "ok", 0, "{}", now, now)
	mock.ExpectQuery("SELECT workflow_id").WithArgs(50).WillReturnRows(rows)

	entries, err := NewLedger(db).Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"ICU-01", "ICU-02"}, entries[0].AttemptedBeds)
	assert.Equal(t, []string{}, entries[1].AttemptedBeds)
	require.NoError(t, mock.ExpectationsWereMet())
}
