package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"slack-ai-bridge/internal/domain"
	"slack-ai-bridge/internal/logger"
)

const (
	attrEventID     = "event_id"
	attrStatus      = "status"
	attrUserID      = "user_id"
	attrChannelID   = "channel_id"
	attrThreadID    = "thread_id"
	attrUserMessage = "user_message"
	attrAIResponse  = "ai_response"
	attrCreatedAt   = "created_at"
	attrCompletedAt = "completed_at"
	attrTTL         = "ttl"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoLedger.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoLedger stores event records in a DynamoDB table keyed by event_id.
type DynamoLedger struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoLedger creates a ledger on tableName. A positive ttl writes a
// "ttl" attribute for table-level expiry; zero keeps records forever.
func NewDynamoLedger(api dynamodbAPI, tableName string, ttl time.Duration) (*DynamoLedger, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl < 0 {
		return nil, errors.New("repository: ttl must not be negative")
	}
	return &DynamoLedger{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// Claim inserts rec as processing. It returns false without error when the
// event id already exists.
func (l *DynamoLedger) Claim(ctx context.Context, rec domain.EventRecord) (bool, error) {
	if rec.EventID == "" {
		return false, domain.NewError(domain.ErrLedgerUnavailable, "missing_event_id", nil)
	}
	now := l.now()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now.UnixMilli()
	}
	rec.Status = domain.StatusProcessing
	rec.AIResponse = nil

	item := recordItem(rec)
	if l.ttl > 0 {
		item[attrTTL] = numAttr(now.Add(l.ttl).Unix())
	}

	_, err := l.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(event_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, domain.NewError(domain.ErrLedgerUnavailable, "dynamodb_put_item", fmt.Errorf("repository: Claim: %w", err))
	}
	return true, nil
}

// Complete moves a processing record to completed with the reply text.
// A record that is missing or already completed is logged and left alone.
func (l *DynamoLedger) Complete(ctx context.Context, eventID, response string) error {
	_, err := l.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			attrEventID: &types.AttributeValueMemberS{Value: eventID},
		},
		UpdateExpression:    aws.String("SET #s = :completed, ai_response = :resp, completed_at = :now"),
		ConditionExpression: aws.String("#s = :processing"),
		ExpressionAttributeNames: map[string]string{
			"#s": attrStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":completed":  &types.AttributeValueMemberS{Value: string(domain.StatusCompleted)},
			":processing": &types.AttributeValueMemberS{Value: string(domain.StatusProcessing)},
			":resp":       &types.AttributeValueMemberS{Value: response},
			":now":        numAttr(l.now().UnixMilli()),
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			logger.FromContext(ctx).Warn("ledger record not in processing state, completion skipped",
				slog.String("event_id", eventID))
			return nil
		}
		return domain.NewError(domain.ErrLedgerUnavailable, "dynamodb_update_item", fmt.Errorf("repository: Complete: %w", err))
	}
	return nil
}

// Get reads a record with strong consistency.
func (l *DynamoLedger) Get(ctx context.Context, eventID string) (domain.EventRecord, bool, error) {
	out, err := l.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			attrEventID: &types.AttributeValueMemberS{Value: eventID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.EventRecord{}, false, domain.NewError(domain.ErrLedgerUnavailable, "dynamodb_get_item", fmt.Errorf("repository: Get: %w", err))
	}
	if out == nil || len(out.Item) == 0 {
		return domain.EventRecord{}, false, nil
	}
	rec, err := itemToRecord(out.Item)
	if err != nil {
		return domain.EventRecord{}, false, fmt.Errorf("repository: Get decode: %w", err)
	}
	return rec, true, nil
}

func recordItem(rec domain.EventRecord) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrEventID:     &types.AttributeValueMemberS{Value: rec.EventID},
		attrStatus:      &types.AttributeValueMemberS{Value: string(rec.Status)},
		attrUserID:      &types.AttributeValueMemberS{Value: rec.UserID},
		attrChannelID:   &types.AttributeValueMemberS{Value: rec.ChannelID},
		attrThreadID:    &types.AttributeValueMemberS{Value: rec.ThreadID},
		attrUserMessage: &types.AttributeValueMemberS{Value: rec.UserMessage},
		attrCreatedAt:   numAttr(rec.CreatedAt),
	}
}

func itemToRecord(item map[string]types.AttributeValue) (domain.EventRecord, error) {
	id, err := strAttr(item, attrEventID)
	if err != nil {
		return domain.EventRecord{}, err
	}
	status, err := strAttr(item, attrStatus)
	if err != nil {
		return domain.EventRecord{}, err
	}
	created, err := int64Attr(item, attrCreatedAt)
	if err != nil {
		return domain.EventRecord{}, err
	}
	rec := domain.EventRecord{
		EventID:   id,
		Status:    domain.EventStatus(status),
		CreatedAt: created,
	}
	rec.UserID, _ = strAttr(item, attrUserID) // allow empty
	rec.ChannelID, _ = strAttr(item, attrChannelID)
	rec.ThreadID, _ = strAttr(item, attrThreadID)
	rec.UserMessage, _ = strAttr(item, attrUserMessage)
	if resp, err := strAttr(item, attrAIResponse); err == nil {
		rec.AIResponse = &resp
	}
	return rec, nil
}

func numAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
