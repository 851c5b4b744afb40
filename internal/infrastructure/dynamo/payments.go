package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/goaltrack-api/internal/domain"
)

// PaymentRepo is the append-only payment log. PK: external_transaction_id.
type PaymentRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewPaymentRepo(client *dynamodb.Client, tableName string) *PaymentRepo {
	return &PaymentRepo{client: client, tableName: tableName}
}

// Create inserts p if no payment with the same transaction id exists.
// created is false when the transaction was already recorded.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) (created bool, err error) {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return false, fmt.Errorf("marshal payment: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(external_transaction_id)"),
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PaymentRepo) Get(ctx context.Context, transactionID string) (*domain.Payment, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("external_transaction_id", transactionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("payment not found: %w", domain.ErrNotFound)
	}
	var p domain.Payment
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes a payment whose grant could not be applied, so a retry of
// the same transaction is not mistaken for a duplicate.
func (r *PaymentRepo) Delete(ctx context.Context, transactionID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("external_transaction_id", transactionID),
	})
	return err
}
