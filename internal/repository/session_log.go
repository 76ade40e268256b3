package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"miprojet-assistant/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"

	// skTimeLayout is fixed width so sort keys order lexically by time.
	skTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

	defaultTTL = 30 * 24 * time.Hour

	// DynamoDB caps a transaction at 100 items; one is reserved for META#.
	maxEntriesPerAppend = 99
)

// dynamodbAPI is the minimal DynamoDB interface required by SessionLog.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// SessionLog stores chat sessions in a single DynamoDB table: one item per
// message under SESSION#<id>, plus a META# item with the running count.
type SessionLog struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

type Option func(*SessionLog)

// WithTTL sets how long session items live after their last write.
func WithTTL(ttl time.Duration) Option {
	return func(s *SessionLog) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(s *SessionLog) { s.now = now }
}

// New creates a new SessionLog.
func New(api dynamodbAPI, tableName string, opts ...Option) (*SessionLog, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	s := &SessionLog{api: api, tableName: tableName, ttl: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// msgSK orders entries by write time, then by position inside one append.
func msgSK(ts time.Time, seq int) string {
	return fmt.Sprintf("%s%s#%03d#%s", skPrefixMsg, ts.UTC().Format(skTimeLayout), seq, uuid.NewString()[:8])
}

// History returns up to limit of the most recent messages in chronological order.
func (s *SessionLog) History(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("repository: History: session id is required")
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: History query: %w", err)
	}

	msgs := make([]domain.ChatMessage, 0, len(out.Items))
	for _, item := range out.Items {
		entry, err := itemToEntry(item)
		if err != nil {
			return nil, fmt.Errorf("repository: History unmarshal: %w", err)
		}
		msgs = append(msgs, domain.ChatMessage{Role: entry.Role, Content: entry.Content})
	}
	// Reverse to chronological order before returning to prompt assembly.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Append writes msgs and bumps the session metadata in one transaction.
func (s *SessionLog) Append(ctx context.Context, sessionID string, msgs ...domain.ChatMessage) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("repository: Append: session id is required")
	}
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) > maxEntriesPerAppend {
		return fmt.Errorf("repository: Append: %d messages exceed the transaction limit", len(msgs))
	}

	now := s.now().UTC()
	ttl := now.Add(s.ttl).Unix()

	items := make([]types.TransactWriteItem, 0, len(msgs)+1)
	for i, m := range msgs {
		entry := domain.SessionEntry{
			PK:        sessionPK(sessionID),
			SK:        msgSK(now, i),
			SessionID: sessionID,
			Role:      m.Role,
			Content:   m.Content,
			TTL:       ttl,
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(s.tableName),
				Item:                entryItem(entry),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			},
		})
	}
	items = append(items, types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
				"SK": &types.AttributeValueMemberS{Value: skMeta},
			},
			UpdateExpression: aws.String("SET lastActivity = :now, #ttl = :ttl, sessionId = :sid ADD messages :n"),
			ExpressionAttributeNames: map[string]string{
				"#ttl": "ttl",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
				":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
				":sid": &types.AttributeValueMemberS{Value: sessionID},
				":n":   &types.AttributeValueMemberN{Value: strconv.Itoa(len(msgs))},
			},
		},
	})

	if _, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

func itemToEntry(item map[string]types.AttributeValue) (domain.SessionEntry, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.SessionEntry{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.SessionEntry{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.SessionEntry{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.SessionEntry{}, err
	}
	sessionID, _ := strAttr(item, "sessionId") // allow empty

	return domain.SessionEntry{
		PK:        pk,
		SK:        sk,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}, nil
}

func entryItem(e domain.SessionEntry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: e.PK},
		"SK":        &types.AttributeValueMemberS{Value: e.SK},
		"sessionId": &types.AttributeValueMemberS{Value: e.SessionID},
		"role":      &types.AttributeValueMemberS{Value: e.Role},
		"content":   &types.AttributeValueMemberS{Value: e.Content},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(e.TTL, 10)},
	}
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
