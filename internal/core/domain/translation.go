package domain

import (
	"time"

	"github.com/google/uuid"
)

// UntranslatedProperty is a claimed row awaiting multilingual
// enrichment. SeenUpdatedAt guards the write-back.
type UntranslatedProperty struct {
	ID            uuid.UUID
	ExternalID    string
	SeenUpdatedAt time.Time
}

// Translation holds the localized fields fetched for one locale.
type Translation struct {
	Locale      string
	Title       string
	Description string
	Address     string
}

// TranslationSet is the full per-property enrichment payload keyed by
// locale ("en", "ru").
type TranslationSet map[string]Translation
