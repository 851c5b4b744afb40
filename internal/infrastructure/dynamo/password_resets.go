package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goaltrack-api/internal/domain"
)

// PasswordResetRepo stores one reset cycle per user.
// PK: user_id. GSI reset_token-index (sparse: only rows holding a token).
type PasswordResetRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewPasswordResetRepo(client *dynamodb.Client, tableName string) *PasswordResetRepo {
	return &PasswordResetRepo{client: client, tableName: tableName}
}

// Put upserts the whole state row. Nil optional fields are omitted, which
// clears them.
func (r *PasswordResetRepo) Put(ctx context.Context, s *domain.PasswordResetState) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal password reset: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *PasswordResetRepo) Get(ctx context.Context, userID string) (*domain.PasswordResetState, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("user_id", userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("password reset not found: %w", domain.ErrNotFound)
	}
	var s domain.PasswordResetState
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PasswordResetRepo) GetByResetToken(ctx context.Context, token string) (*domain.PasswordResetState, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("reset_token-index"),
		KeyConditionExpression: aws.String("reset_token = :rt"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rt": &types.AttributeValueMemberS{Value: token},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("reset token not found: %w", domain.ErrNotFound)
	}
	var s domain.PasswordResetState
	if err := attributevalue.UnmarshalMap(out.Items[0], &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// IncrementOTPAttempts atomically bumps the wrong-code counter and returns the new value.
func (r *PasswordResetRepo) IncrementOTPAttempts(ctx context.Context, userID string) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("user_id", userID),
		UpdateExpression:          aws.String("ADD #a :one"),
		ConditionExpression:       aws.String("attribute_exists(user_id)"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldOTPAttempts},
		ExpressionAttributeValues: map[string]types.AttributeValue{":one": numValue(1)},
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		return 0, fmt.Errorf("password reset not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return attrInt(out.Attributes, fieldOTPAttempts)
}

func (r *PasswordResetRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("user_id", userID),
	})
	return err
}

// DeleteWithToken removes the row only if it still holds token, so a token
// can be consumed exactly once. A lost race is reported as ErrNotFound.
func (r *PasswordResetRepo) DeleteWithToken(ctx context.Context, userID, token string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("user_id", userID),
		ConditionExpression:       aws.String("#rt = :rt"),
		ExpressionAttributeNames:  map[string]string{"#rt": fieldResetToken},
		ExpressionAttributeValues: map[string]types.AttributeValue{":rt": &types.AttributeValueMemberS{Value: token}},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("reset token already used: %w", domain.ErrNotFound)
	}
	return err
}
