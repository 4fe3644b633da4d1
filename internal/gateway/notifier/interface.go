// Package notifier pushes short trade notices to a chat. Delivery is best
// effort; nothing in the trading path waits on it.
package notifier

import "context"

// TextNotifier delivers one preformatted message.
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}
