package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dvloznov/invoice-agent/internal/approval"
	"github.com/dvloznov/invoice-agent/internal/intake"
)

// callbackReply answers an approval button press and rewrites the
// approval request it belongs to.
type callbackReply struct {
	api   botAPI
	query *tgbotapi.CallbackQuery
}

// Ack implements approval.Reply.
func (r *callbackReply) Ack(ctx context.Context, text string) error {
	_, err := r.api.Request(tgbotapi.NewCallback(r.query.ID, text))
	return err
}

// Update implements approval.Reply. Editing drops the inline keyboard.
// Requests sent with a file carry the summary as caption.
func (r *callbackReply) Update(ctx context.Context, text string) error {
	m := r.query.Message
	if m == nil || m.Chat == nil {
		return nil
	}
	if len(m.Photo) > 0 || m.Document != nil {
		_, err := r.api.Request(tgbotapi.NewEditMessageCaption(m.Chat.ID, m.MessageID, text))
		return err
	}
	_, err := r.api.Request(tgbotapi.NewEditMessageText(m.Chat.ID, m.MessageID, text))
	return err
}

// chatResponder replies in a private chat.
type chatResponder struct {
	api    botAPI
	chatID int64
}

// Respond implements intake.Responder.
func (r chatResponder) Respond(ctx context.Context, text string) error {
	_, err := r.api.Send(tgbotapi.NewMessage(r.chatID, text))
	return err
}

var (
	_ approval.Reply   = (*callbackReply)(nil)
	_ intake.Responder = chatResponder{}
)
