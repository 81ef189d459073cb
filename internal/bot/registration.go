package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/slip-bot/internal/dialog"
	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/session"
)

func (b *Bot) askToken(ctx context.Context, chatID int64) {
	_ = b.d.States.Set(ctx, chatID, dialog.StateAwaitToken, dialog.Payload{})
	m := tgbotapi.NewMessage(chatID, "Send your lab portal API token to link this chat to your account.")
	m.ReplyMarkup = navKeyboard(false, true)
	b.send(m)
}

// login links the chat to a lab API account. The token message is deleted
// once read.
func (b *Bot) login(ctx context.Context, msg *tgbotapi.Message, token string) {
	chatID := msg.Chat.ID
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, msg.MessageID)); err != nil {
		b.log.Debug("delete token message", "err", err)
	}

	sc, err := b.d.Sessions.Login(ctx, msg.From.ID, token)
	if err != nil {
		b.log.Warn("login failed", "tg_id", msg.From.ID, "err", err)
		text := "Could not log in, please check the token and try again."
		if errors.Is(err, labapi.ErrUnauthorized) {
			text = "The token was rejected. Copy a fresh one from the lab portal and send it again."
		}
		b.send(tgbotapi.NewMessage(chatID, text))
		return
	}
	_ = b.d.States.Reset(ctx, chatID)
	b.greet(chatID, sc)
}

func (b *Bot) greet(chatID int64, sc *session.Context) {
	m := tgbotapi.NewMessage(chatID, fmt.Sprintf("Hello, %s! Press «%s» to create a slip.", sc.Name, btnAddSlip))
	m.ReplyMarkup = userReplyKeyboard(sc.Role == session.RoleLabAdmin)
	b.send(m)
}

// resolve returns the session of a logged-in user and asks everyone else
// to log in.
func (b *Bot) resolve(ctx context.Context, chatID, tgID int64) *session.Context {
	sc, err := b.d.Sessions.Resolve(ctx, tgID)
	if err == nil {
		return sc
	}
	if !errors.Is(err, session.ErrNotLoggedIn) {
		b.log.Error("resolve session", "tg_id", tgID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Something went wrong, please try again."))
		return nil
	}
	b.askToken(ctx, chatID)
	return nil
}
