package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/neoKode1/directorchair-core/internal/catalog"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix   = "SESSION#"
	skPref     = "PREF#"
	skDirector = "DIRECTOR"
	skAudit    = "AUDIT#"
)

// SessionTTL bounds how long session records and audits live.
const SessionTTL = 30 * 24 * time.Hour

// DynamoStore implements PreferenceStore on a single DynamoDB table. Audit
// payloads are zstd-compressed JSON so expanded workflows with per-step
// parameter maps stay well under the 400KB item limit.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

var _ PreferenceStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table. The client
// should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) (*DynamoStore, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		enc:       enc,
		dec:       dec,
	}, nil
}

func sessionPK(sessionID string) string {
	return pkPrefix + sessionID
}

func expiresAt() int64 {
	return time.Now().Add(SessionTTL).Unix()
}

// putItem marshals a record and writes it with PK, SK, and TTL attributes.
func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data interface{}) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads one item into out, reporting false when it does not exist.
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

func (s *DynamoStore) GetPreferences(ctx context.Context, sessionID string) (map[catalog.Category]Preference, error) {
	pk := sessionPK(sessionID)
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: pk},
			":skPrefix": &types.AttributeValueMemberS{Value: skPref},
		},
	}

	prefs := make(map[catalog.Category]Preference)
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s SK prefix=%s: %w", pk, skPref, err)
		}
		for _, item := range result.Items {
			var pref Preference
			if err := attributevalue.UnmarshalMap(item, &pref); err != nil {
				log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to unmarshal preference, skipping")
				continue
			}
			skAttr, ok := item["SK"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			cat := catalog.Category(strings.TrimPrefix(skAttr.Value, skPref))
			if !cat.Valid() {
				log.Warn().Str("sk", skAttr.Value).Msg("Preference record with unknown category, skipping")
				continue
			}
			prefs[cat] = pref
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return prefs, nil
}

func (s *DynamoStore) SetPreference(ctx context.Context, sessionID string, cat catalog.Category, pref Preference) error {
	if err := s.putItem(ctx, sessionPK(sessionID), skPref+string(cat), pref); err != nil {
		return fmt.Errorf("put preference %s/%s: %w", sessionID, cat, err)
	}

	log.Debug().
		Str("sessionId", sessionID).
		Str("category", string(cat)).
		Str("model", pref.ModelID).
		Bool("disabled", pref.Disabled).
		Msg("Preference persisted")
	return nil
}

type directorItem struct {
	Name string `dynamodbav:"name"`
}

func (s *DynamoStore) GetActiveDirector(ctx context.Context, sessionID string) (string, error) {
	var item directorItem
	found, err := s.getItem(ctx, sessionPK(sessionID), skDirector, &item)
	if err != nil {
		return "", fmt.Errorf("get active director %s: %w", sessionID, err)
	}
	if !found {
		return "", nil
	}
	return item.Name, nil
}

func (s *DynamoStore) SetActiveDirector(ctx context.Context, sessionID, name string) error {
	if err := s.putItem(ctx, sessionPK(sessionID), skDirector, directorItem{Name: name}); err != nil {
		return fmt.Errorf("put active director %s: %w", sessionID, err)
	}

	log.Debug().Str("sessionId", sessionID).Str("director", name).Msg("Active director persisted")
	return nil
}

type auditItem struct {
	Payload []byte `dynamodbav:"payload"`
}

func (s *DynamoStore) PutWorkflowAudit(ctx context.Context, sessionID, workflowID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	compressed := s.enc.EncodeAll(raw, nil)

	if err := s.putItem(ctx, sessionPK(sessionID), skAudit+workflowID, auditItem{Payload: compressed}); err != nil {
		return fmt.Errorf("put workflow audit %s/%s: %w", sessionID, workflowID, err)
	}

	log.Debug().
		Str("sessionId", sessionID).
		Str("workflowId", workflowID).
		Int("rawBytes", len(raw)).
		Int("storedBytes", len(compressed)).
		Msg("Workflow audit persisted")
	return nil
}

func (s *DynamoStore) GetWorkflowAudit(ctx context.Context, sessionID, workflowID string, out interface{}) error {
	var item auditItem
	found, err := s.getItem(ctx, sessionPK(sessionID), skAudit+workflowID, &item)
	if err != nil {
		return fmt.Errorf("get workflow audit %s/%s: %w", sessionID, workflowID, err)
	}
	if !found {
		return ErrNotFound
	}

	raw, err := s.dec.DecodeAll(item.Payload, nil)
	if err != nil {
		return fmt.Errorf("decompress audit %s/%s: %w", sessionID, workflowID, err)
	}
	return json.Unmarshal(raw, out)
}
