package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/slip-bot/internal/dialog"
	"github.com/Spok95/slip-bot/internal/metrics"
	"github.com/Spok95/slip-bot/internal/session"
	"github.com/Spok95/slip-bot/internal/slip"
	"github.com/Spok95/slip-bot/internal/wizard"
)

// chatWizard is a wizard rendered into one Telegram message.
type chatWizard struct {
	chatID int64
	m      *wizard.Machine

	mu       sync.Mutex // serializes render and persist
	mid      int
	lastText string
	lastKB   string
	lastSess []byte
	done     bool
}

// openWizard starts a fresh wizard, replacing any running one. keepCase
// leaves the case-design marker in place so the finished slip reloads it.
func (b *Bot) openWizard(ctx context.Context, chatID int64, sc *session.Context, keepCase bool) {
	b.dropWizard(chatID)
	if !keepCase {
		b.mu.Lock()
		delete(b.caseDesign, chatID)
		b.mu.Unlock()
	}

	msg, err := b.api.Send(tgbotapi.NewMessage(chatID, "Add Slip · loading…"))
	if err != nil {
		b.log.Error("send failed", "err", err)
		return
	}
	cw := &chatWizard{chatID: chatID, mid: msg.MessageID}
	cw.m = wizard.New(*sc, b.wizardDeps(sc, cw), b.d.Wizard)
	b.track(cw)
	cw.m.Start(ctx)
	b.refresh(cw)
}

// wizardFor returns the running wizard of chatID, rebuilding it from the
// dialog store after a restart. It returns nil when the chat has none.
func (b *Bot) wizardFor(ctx context.Context, chatID int64) *chatWizard {
	b.mu.Lock()
	cw := b.wizards[chatID]
	b.mu.Unlock()
	if cw != nil {
		return cw
	}

	st, err := b.d.States.Get(ctx, chatID)
	if err != nil || st == nil || !st.State.IsWizard() {
		return nil
	}
	var s wizard.Session
	if ok, err := dialog.GetJSON(st.Payload, dialog.KeySession, &s); !ok || err != nil {
		b.log.Warn("wizard session unreadable", "chat_id", chatID, "err", err)
		_ = b.d.States.Reset(ctx, chatID)
		return nil
	}
	sc, err := b.d.Sessions.Resolve(ctx, chatID)
	if err != nil {
		b.log.Warn("wizard restore: resolve session", "chat_id", chatID, "err", err)
		return nil
	}
	mid, _ := dialog.GetInt(st.Payload, dialog.KeyLastMID)

	cw = &chatWizard{chatID: chatID, mid: int(mid)}
	cw.m = wizard.Restore(*sc, b.wizardDeps(sc, cw), b.d.Wizard, s)
	b.track(cw)
	cw.m.Start(ctx)
	b.log.Info("wizard restored", "chat_id", chatID, "step", s.Step)
	return cw
}

func (b *Bot) wizardDeps(sc *session.Context, cw *chatWizard) wizard.Deps {
	return wizard.Deps{
		Source:      b.d.Lab.WithToken(sc.Token),
		Prefs:       b.d.Sessions,
		Store:       b.d.Slips,
		Cache:       b.d.Pages,
		Nav:         b,
		Extractions: b.d.Extractions,
		Observer:    wizard.ObserverFunc(func(wizard.View) { b.refresh(cw) }),
		OnComplete:  func(owner int64, p *slip.Payload) { b.slipSaved(owner, sc, p) },
		Log:         b.log,
	}
}

func (b *Bot) track(cw *chatWizard) {
	b.mu.Lock()
	b.wizards[cw.chatID] = cw
	metrics.ActiveWizards.Set(float64(len(b.wizards)))
	b.mu.Unlock()
}

func (b *Bot) untrack(cw *chatWizard) {
	b.mu.Lock()
	if b.wizards[cw.chatID] == cw {
		delete(b.wizards, cw.chatID)
	}
	metrics.ActiveWizards.Set(float64(len(b.wizards)))
	b.mu.Unlock()
}

// dropWizard cancels the running wizard of chatID and strips its buttons.
func (b *Bot) dropWizard(chatID int64) {
	b.mu.Lock()
	cw := b.wizards[chatID]
	b.mu.Unlock()
	if cw == nil {
		return
	}
	cw.m.Cancel()
	b.untrack(cw)
	cw.mu.Lock()
	cw.done = true
	mid := cw.mid
	cw.mu.Unlock()
	b.editTextAndClear(chatID, mid, "Slip discarded.")
}

// Forget drops the in-memory wizards of chats whose stored session expired.
func (b *Bot) Forget(owners []int64) {
	for _, id := range owners {
		b.dropWizard(id)
	}
}

func (b *Bot) closeAll() {
	b.mu.Lock()
	all := make([]*chatWizard, 0, len(b.wizards))
	for _, cw := range b.wizards {
		all = append(all, cw)
	}
	b.mu.Unlock()
	for _, cw := range all {
		cw.m.Cancel()
		b.untrack(cw)
	}
}

// refresh re-renders the wizard message from the latest snapshot and
// persists the session when it changed.
func (b *Bot) refresh(cw *chatWizard) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.done {
		return
	}
	v := cw.m.Snapshot()
	if v.Closed {
		return
	}

	text, kb := wizardText(v), wizardKeyboard(v)
	if v.Step() == wizard.StepComplete {
		kb = tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	}
	rawKB, _ := json.Marshal(kb)
	if text != cw.lastText || string(rawKB) != cw.lastKB {
		b.send(tgbotapi.NewEditMessageTextAndMarkup(cw.chatID, cw.mid, text, kb))
		cw.lastText, cw.lastKB = text, string(rawKB)
	}

	if v.Step() == wizard.StepComplete {
		cw.done = true
		b.untrack(cw)
		if err := b.d.States.Reset(b.ctx, cw.chatID); err != nil {
			b.log.Warn("reset dialog state", "chat_id", cw.chatID, "err", err)
		}
		return
	}
	b.persist(cw, v.Session)
}

// persist stores the session when it differs from what was stored last.
// Caller holds cw.mu.
func (b *Bot) persist(cw *chatWizard, s wizard.Session) {
	raw, err := json.Marshal(s)
	if err != nil {
		b.log.Error("encode wizard session", "err", err)
		return
	}
	if bytes.Equal(raw, cw.lastSess) {
		return
	}
	p := dialog.Payload{dialog.KeyLastMID: cw.mid}
	if err := dialog.PutJSON(p, dialog.KeySession, s); err != nil {
		b.log.Error("encode wizard session", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, 5*time.Second)
	defer cancel()
	if err := b.d.States.Set(ctx, cw.chatID, dialog.StateWizard, p); err != nil {
		b.log.Warn("persist wizard session", "chat_id", cw.chatID, "err", err)
		return
	}
	cw.lastSess = raw
}

// repost moves the wizard message below the user's latest text message.
func (b *Bot) repost(cw *chatWizard) {
	cw.mu.Lock()
	old := cw.mid
	msg, err := b.api.Send(tgbotapi.NewMessage(cw.chatID, "…"))
	if err != nil {
		cw.mu.Unlock()
		b.log.Error("send failed", "err", err)
		return
	}
	cw.mid = msg.MessageID
	cw.lastText, cw.lastKB, cw.lastSess = "", "", nil
	cw.mu.Unlock()
	b.send(tgbotapi.NewEditMessageReplyMarkup(cw.chatID, old,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}))
	b.refresh(cw)
}

func (b *Bot) slipSaved(owner int64, sc *session.Context, p *slip.Payload) {
	b.log.Info("slip saved", "chat_id", owner, "api_user_id", sc.UserID,
		"lab_id", p.FormData.LabID, "products", len(p.Products))
	if b.d.AdminChat == 0 || b.d.AdminChat == owner {
		return
	}
	b.send(tgbotapi.NewMessage(b.d.AdminChat, fmt.Sprintf(
		"New slip from %s\nPatient: %s\nDoctor: %s\nLab: %s",
		sc.Name, p.FormData.Patient, p.FormData.Doctor, p.FormData.Lab)))
}

// wizardError turns a wizard failure into a short callback answer.
func wizardError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, wizard.ErrClosed):
		return "This slip is already closed."
	case errors.Is(err, wizard.ErrNotAllowed):
		return "This button is no longer active."
	case errors.Is(err, slip.ErrValidation):
		return err.Error()
	case errors.Is(err, wizard.ErrInvalidInput):
		return "That choice is not available."
	}
	return "Something went wrong, please retry."
}
