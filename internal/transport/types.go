package transport

import "context"

// Message is an incoming chat message.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

// Command is one entry of a bot command menu.
type Command struct {
	Command     string
	Description string
}

// Adapter is a chat transport.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
	SetCommands(ctx context.Context, cmds []Command) error
}
