package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goaltrack-api/internal/domain"
)

// BalanceRepo stores the derived token balance. PK: user_id.
type BalanceRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewBalanceRepo(client *dynamodb.Client, tableName string) *BalanceRepo {
	return &BalanceRepo{client: client, tableName: tableName}
}

func (r *BalanceRepo) Get(ctx context.Context, userID string) (*domain.TokenBalance, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("user_id", userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("balance not found: %w", domain.ErrNotFound)
	}
	var b domain.TokenBalance
	if err := attributevalue.UnmarshalMap(out.Item, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Apply performs change as one UpdateItem: token grants are ADD increments
// and the subscription flags are SET alongside them. The row is created on
// first use. Returns the balance after the update.
func (r *BalanceRepo) Apply(ctx context.Context, userID string, change domain.BalanceChange) (*domain.TokenBalance, error) {
	in := r.updateInput(userID, change, time.Now().UTC().Format(time.RFC3339))
	out, err := r.client.UpdateItem(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("apply balance change: %w", err)
	}
	var b domain.TokenBalance
	if err := attributevalue.UnmarshalMap(out.Attributes, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BalanceRepo) updateInput(userID string, change domain.BalanceChange, now string) *dynamodb.UpdateItemInput {
	expr := "ADD #tr :add SET #ua = :ua"
	names := map[string]string{"#tr": fieldTokensRemaining, "#ua": fieldUpdatedAt}
	values := map[string]types.AttributeValue{
		":add": numValue(change.AddTokens),
		":ua":  &types.AttributeValueMemberS{Value: now},
	}
	if change.Subscribed != nil {
		expr += ", #sub = :sub"
		names["#sub"] = fieldIsSubscribed
		values[":sub"] = &types.AttributeValueMemberBOOL{Value: *change.Subscribed}
	}
	if change.MonthlyTokens != nil {
		expr += ", #mt = :mt"
		names["#mt"] = fieldMonthlyTokens
		values[":mt"] = numValue(*change.MonthlyTokens)
	}
	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("user_id", userID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
}
