package ddb

import (
	"context"
	"time"
	"whitelistbot/internal/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// UserStore keeps one item per user in a single PK/SK table:
// PK = "USER#<external id>", SK = "PROFILE".
type UserStore struct {
	table string
	cli   *dynamodb.Client
}

type userItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	types.UserRecord
}

func NewUserStore(table string, cli *dynamodb.Client) *UserStore {
	// Creates the table only if it doesn't exist.
	createTableIfNotExists(cli, table)
	return &UserStore{table: table, cli: cli}
}

func (s *UserStore) FindUser(ctx context.Context, externalID string) (*types.UserRecord, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            userKey(externalID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "get user %s", externalID)
	}
	if out.Item == nil {
		return nil, nil
	}
	return decodeUser(out.Item)
}

// ListAllUsers scans the table for profile items. Pages are followed until exhausted.
func (s *UserStore) ListAllUsers(ctx context.Context) ([]types.UserRecord, error) {
	p := dynamodb.NewScanPaginator(s.cli, &dynamodb.ScanInput{
		TableName:        &s.table,
		ConsistentRead:   awsBool(true),
		FilterExpression: awsString("begins_with(PK, :pk) AND SK = :sk"),
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":pk": &ddbTypes.AttributeValueMemberS{Value: SUser + "#"},
			":sk": &ddbTypes.AttributeValueMemberS{Value: skProfile()},
		},
	})
	var users []types.UserRecord
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, types.Err(types.ErrDataStoreAccess, err, "scan users")
		}
		for _, item := range page.Items {
			u, err := decodeUser(item)
			if err != nil {
				return nil, err
			}
			users = append(users, *u)
		}
	}
	return users, nil
}

// UpdateWhitelist replaces the whitelist attribute under attribute_exists(PK), so a missing
// user is reported as (nil,nil) instead of creating a partial item.
func (s *UserStore) UpdateWhitelist(ctx context.Context, externalID string, entries []types.WhitelistEntry) (*types.UserRecord, error) {
	if entries == nil {
		entries = []types.WhitelistEntry{}
	}
	wl, err := attributevalue.Marshal(entries)
	if err != nil {
		return nil, err
	}
	out, err := s.cli.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.table,
		Key:              userKey(externalID),
		UpdateExpression: awsString("SET #wl = :wl"),
		ExpressionAttributeNames: map[string]string{
			"#wl": "whitelist",
		},
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":wl": wl,
		},
		ConditionExpression: awsString("attribute_exists(PK)"),
		ReturnValues:        ddbTypes.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, nil
		}
		return nil, types.Err(types.ErrDataStoreAccess, err, "update whitelist of %s", externalID)
	}
	return decodeUser(out.Attributes)
}

func (s *UserStore) CreateUser(ctx context.Context, rec types.UserRecord) (*types.UserRecord, error) {
	if rec.WhitelistEntries == nil {
		rec.WhitelistEntries = []types.WhitelistEntry{}
	}
	item, err := attributevalue.MarshalMap(userItem{
		PK:         pkUser(rec.ExternalID),
		SK:         skProfile(),
		UserRecord: rec,
	})
	if err != nil {
		return nil, err
	}
	_, err = s.cli.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.table,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return s.FindUser(ctx, rec.ExternalID)
		}
		return nil, types.Err(types.ErrDataStoreAccess, err, "create user %s", rec.ExternalID)
	}
	return &rec, nil
}

func (s *UserStore) ClearAll(ctx context.Context) error {
	_, err := s.cli.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: &s.table,
	})
	if err != nil {
		return err
	}
	// wait until the table is deleted
	err = dynamodb.NewTableNotExistsWaiter(s.cli).Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	}, 30*time.Second)
	if err != nil {
		return err
	}
	createTableIfNotExists(s.cli, s.table)
	return nil
}

func decodeUser(item map[string]ddbTypes.AttributeValue) (*types.UserRecord, error) {
	var it userItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "decode user item")
	}
	if it.ExternalID == "" {
		id, err := parseUserID(it.PK)
		if err != nil {
			return nil, types.Err(types.ErrDataStoreAccess, err, "")
		}
		it.ExternalID = id
	}
	u := it.UserRecord
	return &u, nil
}
