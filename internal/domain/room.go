package domain

import (
	"errors"
	"strings"
)

const (
	MaxRoomIDLen   = 64
	MaxLanguageLen = 32
	MaxAgendaLen   = 120
)

var (
	ErrRoomIDEmpty     = errors.New("room id empty")
	ErrRoomIDTooLong   = errors.New("room id too long")
	ErrLanguageEmpty   = errors.New("language empty")
	ErrLanguageTooLong = errors.New("language too long")
	ErrAgendaTooLong   = errors.New("agenda too long")
)

type RoomID string

// ParseRoomID trims raw and checks its bounds.
func ParseRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrRoomIDEmpty
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(raw), nil
}

func NormalizeLanguage(lang string) (string, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return "", ErrLanguageEmpty
	}
	if len(lang) > MaxLanguageLen {
		return "", ErrLanguageTooLong
	}
	return lang, nil
}

// NormalizeAgenda trims the optional room title. Empty is allowed.
func NormalizeAgenda(agenda string) (string, error) {
	agenda = strings.TrimSpace(agenda)
	if len(agenda) > MaxAgendaLen {
		return "", ErrAgendaTooLong
	}
	return agenda, nil
}
