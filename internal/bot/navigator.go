package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/slip-bot/internal/slip"
)

// The bot is the wizard's navigator: "opening the case-design page" posts
// the slip summary with its sheet, and reloading it edits the summary in
// place.

func (b *Bot) OnCaseDesign(owner int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.caseDesign[owner]
	return ok
}

func (b *Bot) Open(ctx context.Context, owner int64, p *slip.Payload, reload bool) error {
	text := slipSummary(p, reload)

	b.mu.Lock()
	mid, onPage := b.caseDesign[owner]
	b.mu.Unlock()

	if reload && onPage {
		edit := tgbotapi.NewEditMessageTextAndMarkup(owner, mid, text, caseDesignKeyboard())
		if _, err := b.api.Send(edit); err != nil {
			return fmt.Errorf("reload case design: %w", err)
		}
	} else {
		m := tgbotapi.NewMessage(owner, text)
		m.ReplyMarkup = caseDesignKeyboard()
		sent, err := b.api.Send(m)
		if err != nil {
			return fmt.Errorf("open case design: %w", err)
		}
		mid = sent.MessageID
	}

	b.mu.Lock()
	b.caseDesign[owner] = mid
	b.mu.Unlock()

	b.sendSheet(owner, p)
	return nil
}

// sendSheet attaches the slip as an xlsx file.
func (b *Bot) sendSheet(chatID int64, p *slip.Payload) {
	data, err := slip.Sheet(p)
	if err != nil {
		b.log.Warn("build slip sheet", "chat_id", chatID, "err", err)
		return
	}
	name := "slip.xlsx"
	if p.FormData.PatientLastName != "" {
		name = fmt.Sprintf("slip_%s.xlsx", p.FormData.PatientLastName)
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	b.send(doc)
}

func (b *Bot) showMySlip(ctx context.Context, chatID int64) {
	p, err := b.d.Slips.Get(ctx, chatID)
	if err != nil {
		b.log.Warn("read slip", "chat_id", chatID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Could not load your slip, please try again."))
		return
	}
	if p == nil || len(p.Products) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "No slip yet. Press «"+btnAddSlip+"» to start one."))
		return
	}
	m := tgbotapi.NewMessage(chatID, slipSummary(p, false))
	m.ReplyMarkup = caseDesignKeyboard()
	sent, err := b.api.Send(m)
	if err != nil {
		b.log.Error("send failed", "err", err)
		return
	}
	b.mu.Lock()
	b.caseDesign[chatID] = sent.MessageID
	b.mu.Unlock()
	b.sendSheet(chatID, p)
}
