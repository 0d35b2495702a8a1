package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/portfolio-contact/internal/domain"
)

// API is the subset of the DynamoDB client the verification store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// verificationItem is the stored shape of a domain.VerificationEntry.
// PK: identity. expires_at is in epoch seconds for DynamoDB TTL, which deletes
// lazily; expires_at_ms carries the exact expiry the flow compares against.
type verificationItem struct {
	Identity    string `dynamodbav:"identity"`
	ChallengeID string `dynamodbav:"challenge_id"`
	CodeHash    string `dynamodbav:"code_hash"`
	IssuedAtMs  int64  `dynamodbav:"issued_at_ms"`
	ExpiresAtMs int64  `dynamodbav:"expires_at_ms"`
	ExpiresAt   int64  `dynamodbav:"expires_at"`
	Consumed    bool   `dynamodbav:"consumed"`
	Claimed     bool   `dynamodbav:"claimed"`
}

// VerificationRepo keeps one verification entry per identity.
type VerificationRepo struct {
	client    API
	tableName string
	grace     time.Duration
}

// NewVerificationRepo returns a repo on tableName. Items are marked for TTL deletion
// grace after they lapse so a late submission still reads as expired.
func NewVerificationRepo(client API, tableName string, grace time.Duration) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName, grace: grace}
}

func (r *VerificationRepo) toItem(e *domain.VerificationEntry) verificationItem {
	return verificationItem{
		Identity:    e.Identity,
		ChallengeID: e.ChallengeID,
		CodeHash:    e.CodeHash,
		IssuedAtMs:  e.IssuedAt.UnixMilli(),
		ExpiresAtMs: e.ExpiresAt.UnixMilli(),
		ExpiresAt:   r.ttl(e.ExpiresAt),
		Consumed:    e.Consumed,
		Claimed:     e.Claimed,
	}
}

func (r *VerificationRepo) ttl(expiresAt time.Time) int64 {
	return expiresAt.Add(r.grace).Unix()
}

func fromItem(it verificationItem) *domain.VerificationEntry {
	return &domain.VerificationEntry{
		Identity:    it.Identity,
		ChallengeID: it.ChallengeID,
		CodeHash:    it.CodeHash,
		IssuedAt:    time.UnixMilli(it.IssuedAtMs).UTC(),
		ExpiresAt:   time.UnixMilli(it.ExpiresAtMs).UTC(),
		Consumed:    it.Consumed,
		Claimed:     it.Claimed,
	}
}

func (r *VerificationRepo) Put(ctx context.Context, e *domain.VerificationEntry) error {
	item, err := attributevalue.MarshalMap(r.toItem(e))
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *VerificationRepo) Get(ctx context.Context, identity string) (*domain.VerificationEntry, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldIdentity, identity),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	var it verificationItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, err
	}
	return fromItem(it), nil
}

func (r *VerificationRepo) Remove(ctx context.Context, identity string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldIdentity, identity),
	})
	return err
}

// Consume is a conditional update: it only applies while the stored item still
// carries challengeID and is unconsumed.
func (r *VerificationRepo) Consume(ctx context.Context, identity, challengeID string, verifiedUntil time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldConsumed:    true,
		fieldExpiresAtMs: verifiedUntil.UnixMilli(),
		fieldExpiresAt:   r.ttl(verifiedUntil),
	})
	if err != nil {
		return err
	}
	ue.Names["#cid"] = fieldChallengeID
	ue.Names["#con"] = fieldConsumed
	ue.Values[":cid"] = &types.AttributeValueMemberS{Value: challengeID}
	ue.Values[":no"] = &types.AttributeValueMemberBOOL{Value: false}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldIdentity, identity),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#cid = :cid AND #con = :no"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("challenge %s no longer current: %w", challengeID, domain.ErrNotFound)
	}
	return err
}

// RemoveIf deletes the item only while it still carries challengeID.
func (r *VerificationRepo) RemoveIf(ctx context.Context, identity, challengeID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldIdentity, identity),
		ConditionExpression:      aws.String("#cid = :cid"),
		ExpressionAttributeNames: map[string]string{"#cid": fieldChallengeID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: challengeID},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("challenge %s no longer current: %w", challengeID, domain.ErrNotFound)
	}
	return err
}

// SetClaimed flips the claim on a consumed item that still carries challengeID.
// A missing claimed attribute counts as unclaimed.
func (r *VerificationRepo) SetClaimed(ctx context.Context, identity, challengeID string, claimed bool) error {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldClaimed: claimed})
	if err != nil {
		return err
	}
	ue.Names["#cid"] = fieldChallengeID
	ue.Names["#con"] = fieldConsumed
	ue.Names["#clm"] = fieldClaimed
	ue.Values[":cid"] = &types.AttributeValueMemberS{Value: challengeID}
	ue.Values[":yes"] = &types.AttributeValueMemberBOOL{Value: true}
	ue.Values[":was"] = &types.AttributeValueMemberBOOL{Value: !claimed}

	cond := "#cid = :cid AND #con = :yes AND #clm = :was"
	if claimed {
		cond = "#cid = :cid AND #con = :yes AND (attribute_not_exists(#clm) OR #clm = :was)"
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldIdentity, identity),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("challenge %s not claimable: %w", challengeID, domain.ErrNotFound)
	}
	return err
}

// SweepExpired scans for lapsed items and deletes each one conditionally, so an
// item refreshed between the scan and the delete is kept.
func (r *VerificationRepo) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	nowMs := &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.UnixMilli())}
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		FilterExpression:         aws.String("#exp < :now"),
		ProjectionExpression:     aws.String("#id, #cid"),
		ExpressionAttributeNames: map[string]string{"#exp": fieldExpiresAtMs, "#id": fieldIdentity, "#cid": fieldChallengeID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": nowMs,
		},
	})

	n := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return n, fmt.Errorf("scan expired verifications: %w", err)
		}
		var items []verificationItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return n, err
		}
		for _, it := range items {
			_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName:                aws.String(r.tableName),
				Key:                      strKey(fieldIdentity, it.Identity),
				ConditionExpression:      aws.String("#cid = :cid AND #exp < :now"),
				ExpressionAttributeNames: map[string]string{"#cid": fieldChallengeID, "#exp": fieldExpiresAtMs},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":cid": &types.AttributeValueMemberS{Value: it.ChallengeID},
					":now": nowMs,
				},
			})
			var ccf *types.ConditionalCheckFailedException
			switch {
			case err == nil:
				n++
			case errors.As(err, &ccf):
			default:
				return n, fmt.Errorf("delete expired verification %s: %w", it.Identity, err)
			}
		}
	}
	return n, nil
}

// Ping checks the table is reachable.
func (r *VerificationRepo) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)})
	return err
}
