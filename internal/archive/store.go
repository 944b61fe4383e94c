// Package archive writes finished conversation turns to S3 for operator review.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/practice-concierge/internal/conversation"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// S3API is the subset of the S3 client used by TurnArchive.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchivedTurn is the stored form of a turn. The patient number is hashed and
// free text is scrubbed.
type ArchivedTurn struct {
	MessageSid    string    `json:"message_sid"`
	PracticeID    string    `json:"practice_id"`
	PatientHash   string    `json:"patient_hash"`
	Body          string    `json:"body"`
	Status        string    `json:"status"`
	Intent        string    `json:"intent,omitempty"`
	Action        string    `json:"action,omitempty"`
	Reply         string    `json:"reply,omitempty"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	ReceivedAt    string    `json:"received_at"`
	ArchivedAt    time.Time `json:"archived_at"`
}

// TurnArchive implements conversation.TurnArchiver on S3.
type TurnArchive struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

var _ conversation.TurnArchiver = (*TurnArchive)(nil)

// NewTurnArchive creates an archive. If bucket is empty, Archive is a no-op.
func NewTurnArchive(s3Client S3API, bucket string, logger *logging.Logger) *TurnArchive {
	if logger == nil {
		logger = logging.Default()
	}
	return &TurnArchive{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

// Enabled returns true if archival is configured (bucket is set).
func (a *TurnArchive) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

// Archive writes one turn as JSON under turns/v1/by-date/YYYY/MM/DD/<practice>/<sid>.json.
func (a *TurnArchive) Archive(ctx context.Context, rec conversation.TurnRecord) error {
	if !a.Enabled() {
		return nil
	}
	now := a.now().UTC()
	doc := ArchivedTurn{
		MessageSid:    rec.MessageSid,
		PracticeID:    rec.PracticeID,
		PatientHash:   HashPhone(rec.From),
		Body:          ScrubPII(rec.Body),
		Status:        string(rec.Status),
		Intent:        rec.Intent,
		Action:        rec.Action,
		Reply:         ScrubPII(rec.Reply),
		AppointmentID: rec.AppointmentID,
		Error:         rec.ErrorMessage,
		ReceivedAt:    rec.CreatedAt,
		ArchivedAt:    now,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("archive: marshal turn: %w", err)
	}

	key := fmt.Sprintf("turns/v1/by-date/%d/%02d/%02d/%s/%s.json",
		now.Year(), now.Month(), now.Day(), rec.PracticeID, rec.MessageSid)
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	a.logger.Debug("archived turn", "practice_id", rec.PracticeID, "message_sid", rec.MessageSid, "s3_key", key)
	return nil
}
