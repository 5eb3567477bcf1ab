package bot

import "errors"

// Sentinel errors for the bot registry and prompt store.
var (
	ErrBotNotFound  = errors.New("bot not found")
	ErrBotExists    = errors.New("bot already registered")
	ErrEmptyBotName = errors.New("bot name is empty")
	ErrKeyNotFound  = errors.New("key not found")
	ErrLoadFailed   = errors.New("load failed")
)
