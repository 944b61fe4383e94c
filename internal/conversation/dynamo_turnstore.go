package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/practice-concierge/internal/messaging"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoTurnStore persists turn records in a DynamoDB table keyed by messageSid.
// Items expire through the table's TTL on expiresAt.
type DynamoTurnStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

var _ TurnStore = (*DynamoTurnStore)(nil)

func NewDynamoTurnStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoTurnStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoTurnStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
		tracer:    otel.Tracer("concierge.internal.conversation.turnstore"),
		now:       time.Now,
	}
}

// PutPending conditionally inserts the record. A conditional check failure
// means Twilio redelivered a sid we already accepted.
func (s *DynamoTurnStore) PutPending(ctx context.Context, job messaging.InboundJob) (bool, error) {
	if job.MessageSid == "" {
		return false, errors.New("conversation: message sid required")
	}
	ctx, span := s.tracer.Start(ctx, "turnstore.put_pending", trace.WithAttributes(
		attribute.String("concierge.practice_id", job.PracticeID),
		attribute.String("concierge.message_sid", job.MessageSid),
	))
	defer span.End()

	item, err := attributevalue.MarshalMap(newPendingRecord(job, s.now()))
	if err != nil {
		return false, fmt.Errorf("conversation: failed to marshal turn: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(messageSid)"),
	})
	if err != nil {
		var conditional *types.ConditionalCheckFailedException
		if errors.As(err, &conditional) {
			span.SetAttributes(attribute.Bool("concierge.duplicate", true))
			return false, nil
		}
		span.RecordError(err)
		return false, fmt.Errorf("conversation: failed to persist turn: %w", err)
	}
	return true, nil
}

func (s *DynamoTurnStore) Forget(ctx context.Context, messageSid string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(messageSid),
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to delete turn: %w", err)
	}
	return nil
}

func (s *DynamoTurnStore) MarkCompleted(ctx context.Context, messageSid string, outcome Outcome) error {
	return s.update(ctx, messageSid,
		"SET #status = :status, intent = :intent, #action = :action, reply = :reply, appointmentId = :appt, errorMessage = :error, updatedAt = :updated",
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(TurnStatusCompleted)},
			":intent":  &types.AttributeValueMemberS{Value: string(outcome.Intent)},
			":action":  &types.AttributeValueMemberS{Value: outcome.Action},
			":reply":   &types.AttributeValueMemberS{Value: outcome.Reply},
			":appt":    &types.AttributeValueMemberS{Value: outcome.AppointmentID},
			":error":   &types.AttributeValueMemberS{Value: ""},
			":updated": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)},
		},
	)
}

func (s *DynamoTurnStore) MarkFailed(ctx context.Context, messageSid, errMsg string) error {
	return s.update(ctx, messageSid,
		"SET #status = :status, errorMessage = :error, updatedAt = :updated",
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(TurnStatusFailed)},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)},
		},
	)
}

func (s *DynamoTurnStore) Get(ctx context.Context, messageSid string) (*TurnRecord, error) {
	ctx, span := s.tracer.Start(ctx, "turnstore.get")
	defer span.End()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(messageSid),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to fetch turn: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrTurnNotFound
	}
	var rec TurnRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode turn: %w", err)
	}
	return &rec, nil
}

func (s *DynamoTurnStore) update(ctx context.Context, messageSid, expr string, values map[string]types.AttributeValue) error {
	if messageSid == "" {
		return errors.New("conversation: message sid required")
	}
	names := map[string]string{"#status": "status"}
	if _, ok := values[":action"]; ok {
		names["#action"] = "action"
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(messageSid),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(messageSid)"),
		ExpressionAttributeValues: values,
		ExpressionAttributeNames:  names,
	})
	if err != nil {
		var conditional *types.ConditionalCheckFailedException
		if errors.As(err, &conditional) {
			return ErrTurnNotFound
		}
		return fmt.Errorf("conversation: failed to update turn: %w", err)
	}
	return nil
}

func (s *DynamoTurnStore) key(messageSid string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"messageSid": &types.AttributeValueMemberS{Value: messageSid},
	}
}
