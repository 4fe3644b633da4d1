package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envAccessKey = "UPBIT_ACCESS_KEY"
	envSecretKey = "UPBIT_SECRET_KEY"
	envTGToken   = "TELEGRAM_BOT_TOKEN"
	envTGChat    = "TELEGRAM_CHAT_ID"
)

var ErrMissingCredentials = errors.New("exchange credentials missing")

// Credentials also carries the optional Telegram target, which is loaded
// from the same env file.
type Credentials struct {
	AccessKey      string
	SecretKey      string
	TelegramToken  string
	TelegramChatID string
}

func (c Credentials) HasTelegram() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

func (c Credentials) Empty() bool {
	return c.AccessKey == "" || c.SecretKey == ""
}

// LoadCredentials reads API keys from the environment after merging envFile.
// Variables already set in the environment win over the file.
func LoadCredentials(envFile string) (Credentials, error) {
	if envFile = strings.TrimSpace(envFile); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	creds := Credentials{
		AccessKey: strings.TrimSpace(os.Getenv(envAccessKey)),
		SecretKey: strings.TrimSpace(os.Getenv(envSecretKey)),

		TelegramToken:  strings.TrimSpace(os.Getenv(envTGToken)),
		TelegramChatID: strings.TrimSpace(os.Getenv(envTGChat)),
	}
	if creds.Empty() {
		return creds, fmt.Errorf("%w: set %s and %s", ErrMissingCredentials, envAccessKey, envSecretKey)
	}
	return creds, nil
}
