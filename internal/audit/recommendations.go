// Package audit keeps short-lived records of recommendations and a durable
// ledger of assignment outcomes.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/wolfman30/hospital-bed-platform/internal/scoring"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

const recommendationTTL = 72 * time.Hour

// ErrRecommendationNotFound indicates the record expired or never existed.
var ErrRecommendationNotFound = errors.New("audit: recommendation not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// CandidateRecord is the audited form of one ranked bed.
type CandidateRecord struct {
	BedID      string   `dynamodbav:"bedId" json:"bed_id"`
	Ward       string   `dynamodbav:"ward" json:"ward"`
	Aggregate  float64  `dynamodbav:"aggregate" json:"aggregate"`
	Confidence float64  `dynamodbav:"confidence" json:"confidence"`
	Reasons    []string `dynamodbav:"reasons,omitempty" json:"reasons,omitempty"`
}

// RecommendationRecord is one audited recommendation.
type RecommendationRecord struct {
	RecommendationID string            `dynamodbav:"recommendationId" json:"recommendation_id"`
	PatientID        string            `dynamodbav:"patientId" json:"patient_id"`
	Candidates       []CandidateRecord `dynamodbav:"candidates" json:"candidates"`
	Reason           string            `dynamodbav:"reason" json:"reason"`
	Justification    string            `dynamodbav:"justification,omitempty" json:"justification,omitempty"`
	CreatedAt        string            `dynamodbav:"createdAt" json:"created_at"`
	ExpiresAt        int64             `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// NewRecommendationRecord builds a record from a ranked result.
func NewRecommendationRecord(result scoring.Result, justification string, now time.Time) RecommendationRecord {
	rec := RecommendationRecord{
		RecommendationID: uuid.NewString(),
		PatientID:        result.PatientID,
		Reason:           result.Reason,
		Justification:    justification,
		CreatedAt:        now.UTC().Format(time.RFC3339Nano),
		Candidates:       make([]CandidateRecord, 0, len(result.Candidates)),
	}
	for _, c := range result.Candidates {
		rec.Candidates = append(rec.Candidates, CandidateRecord{
			BedID:      c.BedID,
			Ward:       c.Ward,
			Aggregate:  c.Aggregate,
			Confidence: c.Confidence,
			Reasons:    append([]string(nil), c.Reasons...),
		})
	}
	return rec
}

// RecommendationStore writes recommendation records to DynamoDB with a TTL
// attribute so the table purges them on its own.
type RecommendationStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

// NewRecommendationStore builds a store backed by the provided DynamoDB client.
func NewRecommendationStore(client dynamoAPI, tableName string, logger *logging.Logger) *RecommendationStore {
	if client == nil {
		panic("audit: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("audit: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RecommendationStore{
		client:    client,
		tableName: tableName,
		ttl:       recommendationTTL,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Put stores rec, filling in the expiry when unset.
func (s *RecommendationStore) Put(ctx context.Context, rec RecommendationRecord) error {
	if rec.RecommendationID == "" {
		return errors.New("audit: recommendation id required")
	}
	if rec.ExpiresAt == 0 {
		rec.ExpiresAt = s.now().Add(s.ttl).Unix()
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal recommendation: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(recommendationId)"),
	})
	if err != nil {
		return fmt.Errorf("audit: failed to persist recommendation: %w", err)
	}
	return nil
}

// Get fetches a record by id. Records past their expiry are reported as not
// found even before DynamoDB deletes them.
func (s *RecommendationStore) Get(ctx context.Context, id string) (RecommendationRecord, error) {
	if id == "" {
		return RecommendationRecord{}, errors.New("audit: recommendation id required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"recommendationId": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return RecommendationRecord{}, fmt.Errorf("audit: failed to fetch recommendation: %w", err)
	}
	if out.Item == nil {
		return RecommendationRecord{}, ErrRecommendationNotFound
	}
	var rec RecommendationRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return RecommendationRecord{}, fmt.Errorf("audit: failed to decode recommendation: %w", err)
	}
	if rec.ExpiresAt > 0 && s.now().Unix() >= rec.ExpiresAt {
		return RecommendationRecord{}, ErrRecommendationNotFound
	}
	return rec, nil
}
