package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goaltrack-api/internal/domain"
)

// VerificationRepo manages one-time SMS codes.
// PK: user_id, SK: type. GSI phone_number-created_at-index (newest first).
type VerificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewVerificationRepo(client *dynamodb.Client, tableName string) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName}
}

// Put writes the code, replacing any row with the same (user_id, type).
func (r *VerificationRepo) Put(ctx context.Context, v *domain.VerificationCode) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *VerificationRepo) Get(ctx context.Context, userID string, t domain.OTPType) (*domain.VerificationCode, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey("user_id", userID, "type", string(t)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	var v domain.VerificationCode
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VerificationRepo) Delete(ctx context.Context, userID string, t domain.OTPType) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("user_id", userID, "type", string(t)),
	})
	return err
}

// LatestPendingByPhone returns the newest unverified, unexpired code sent to
// phone. An empty t matches any type. Expired rows awaiting TTL deletion are
// filtered out here.
func (r *VerificationRepo) LatestPendingByPhone(ctx context.Context, phone string, t domain.OTPType, now time.Time) (*domain.VerificationCode, error) {
	filter := "#v = :f AND #e > :now"
	names := map[string]string{"#v": fieldVerified, "#e": "expires_at"}
	values := map[string]types.AttributeValue{
		":p":   &types.AttributeValueMemberS{Value: phone},
		":f":   &types.AttributeValueMemberBOOL{Value: false},
		":now": numValue(now.Unix()),
	}
	if t != "" {
		filter += " AND #t = :t"
		names["#t"] = "type"
		values[":t"] = &types.AttributeValueMemberS{Value: string(t)}
	}

	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String("phone_number-created_at-index"),
		KeyConditionExpression:    aws.String("phone_number = :p"),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false),
	})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if len(out.Items) == 0 {
			continue
		}
		var v domain.VerificationCode
		if err := attributevalue.UnmarshalMap(out.Items[0], &v); err != nil {
			return nil, err
		}
		return &v, nil
	}
	return nil, fmt.Errorf("no pending code for phone: %w", domain.ErrNotFound)
}

// IncrementAttempts atomically bumps the wrong-code counter and returns the new value.
func (r *VerificationRepo) IncrementAttempts(ctx context.Context, userID string, t domain.OTPType) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey("user_id", userID, "type", string(t)),
		UpdateExpression:          aws.String("ADD #a :one"),
		ConditionExpression:       aws.String("attribute_exists(user_id)"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldAttempts},
		ExpressionAttributeValues: map[string]types.AttributeValue{":one": numValue(1)},
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		return 0, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return attrInt(out.Attributes, fieldAttempts)
}

func attrInt(attrs map[string]types.AttributeValue, name string) (int, error) {
	n, ok := attrs[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %s missing from update result", name)
	}
	return strconv.Atoi(n.Value)
}
