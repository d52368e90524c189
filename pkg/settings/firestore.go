package settings

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreLoader reads the settings from a single Firestore document whose
// fields use the settings.json key names.
type FirestoreLoader struct {
	client     *firestore.Client
	collection string
	document   string
	logger     zerolog.Logger
}

// NewFirestoreLoader creates a FirestoreLoader.
func NewFirestoreLoader(client *firestore.Client, collection, document string, logger zerolog.Logger) (*FirestoreLoader, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if collection == "" || document == "" {
		return nil, errors.New("firestore collection and document are required")
	}
	return &FirestoreLoader{
		client:     client,
		collection: collection,
		document:   document,
		logger:     logger.With().Str("component", "FirestoreSettingsLoader").Logger(),
	}, nil
}

func (l *FirestoreLoader) source() string {
	return fmt.Sprintf("firestore://%s/%s", l.collection, l.document)
}

// Load fetches and validates the settings document.
func (l *FirestoreLoader) Load(ctx context.Context) (*Settings, error) {
	snap, err := l.client.Collection(l.collection).Doc(l.document).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, &LoadError{Source: l.source(), Err: fmt.Errorf("settings document not found: %w", err)}
		}
		return nil, &LoadError{Source: l.source(), Err: err}
	}
	var s Settings
	if err := snap.DataTo(&s); err != nil {
		return nil, &LoadError{Source: l.source(), Err: fmt.Errorf("failed to decode settings document: %w", err)}
	}
	if err := s.Validate(); err != nil {
		return nil, &LoadError{Source: l.source(), Err: err}
	}
	l.logger.Info().Str("first_date", s.FirstDay().String()).Msg("Settings loaded from Firestore.")
	return &s, nil
}

// Save writes s to the settings document, used to seed a deployment.
func (l *FirestoreLoader) Save(ctx context.Context, s *Settings) error {
	if _, err := l.client.Collection(l.collection).Doc(l.document).Set(ctx, s); err != nil {
		return fmt.Errorf("failed to write settings document: %w", err)
	}
	return nil
}
