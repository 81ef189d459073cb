package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/slip-bot/internal/dialog"
	"github.com/Spok95/slip-bot/internal/domain/users"
	"github.com/Spok95/slip-bot/internal/slip"
	"github.com/Spok95/slip-bot/internal/wizard"
)

const helpText = `Commands:
/start - link this chat and show the menu
/login <token> - link your lab portal account
/logout - unlink your account
/slip - create a new slip
/myslip - show the last saved slip
/cancel - discard what you are doing
/admin - reference lists (lab admins)
/help - this help`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	tgID := msg.From.ID
	switch msg.Command() {
	case "start":
		if _, err := b.d.Users.UpsertFromTelegram(ctx, users.Telegram{
			ID: tgID, Username: msg.From.UserName, FirstName: msg.From.FirstName, LastName: msg.From.LastName,
		}); err != nil {
			b.log.Error("upsert user", "tg_id", tgID, "err", err)
			b.send(tgbotapi.NewMessage(chatID, "Error: could not save your profile"))
			return
		}
		if sc := b.resolve(ctx, chatID, tgID); sc != nil {
			b.greet(chatID, sc)
		}
		return

	case "login":
		if token := strings.TrimSpace(msg.CommandArguments()); token != "" {
			b.login(ctx, msg, token)
			return
		}
		b.askToken(ctx, chatID)
		return

	case "logout":
		b.dropWizard(chatID)
		if err := b.d.Sessions.Logout(ctx, tgID); err != nil {
			b.log.Error("logout", "tg_id", tgID, "err", err)
		}
		_ = b.d.States.Reset(ctx, chatID)
		m := tgbotapi.NewMessage(chatID, "You are logged out.")
		m.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		b.send(m)
		return

	case "slip":
		if sc := b.resolve(ctx, chatID, tgID); sc != nil {
			b.openWizard(ctx, chatID, sc, false)
		}
		return

	case "myslip":
		if sc := b.resolve(ctx, chatID, tgID); sc != nil {
			b.showMySlip(ctx, chatID)
		}
		return

	case "cancel":
		b.dropWizard(chatID)
		_ = b.d.States.Reset(ctx, chatID)
		b.send(tgbotapi.NewMessage(chatID, "Cancelled."))
		return

	case "admin":
		if b.refClient(ctx, chatID, tgID) == nil {
			return
		}
		_ = b.d.States.Set(ctx, chatID, dialog.StateAdmRefMenu, dialog.Payload{})
		b.showRefMenu(chatID, nil)
		return

	case "help":
		b.send(tgbotapi.NewMessage(chatID, helpText))
		return

	default:
		b.send(tgbotapi.NewMessage(chatID, "Unknown command. Send /help"))
		return
	}
}

func (b *Bot) handleStateMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	tgID := msg.From.ID
	text := strings.TrimSpace(msg.Text)

	// Reply keyboard
	switch text {
	case btnAddSlip:
		if sc := b.resolve(ctx, chatID, tgID); sc != nil {
			b.openWizard(ctx, chatID, sc, false)
		}
		return
	case btnMySlip:
		if sc := b.resolve(ctx, chatID, tgID); sc != nil {
			b.showMySlip(ctx, chatID)
		}
		return
	case btnAdmin:
		if b.refClient(ctx, chatID, tgID) != nil {
			_ = b.d.States.Set(ctx, chatID, dialog.StateAdmRefMenu, dialog.Payload{})
			b.showRefMenu(chatID, nil)
		}
		return
	}

	st, err := b.d.States.Get(ctx, chatID)
	if err != nil {
		b.log.Error("load dialog state", "chat_id", chatID, "err", err)
		return
	}
	switch {
	case st.State == dialog.StateAwaitToken:
		b.login(ctx, msg, text)
	case st.State == dialog.StateAdmRefSearch:
		b.refSearch(ctx, msg, st)
	case st.State.IsWizard():
		b.wizardText(ctx, msg)
	default:
		b.send(tgbotapi.NewMessage(chatID, "Use the menu buttons or send /help"))
	}
}

// wizardText feeds a typed message to the wizard: the patient name on the
// patient step, a product search on the product step.
func (b *Bot) wizardText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	cw := b.wizardFor(ctx, chatID)
	if cw == nil {
		_ = b.d.States.Reset(ctx, chatID)
		b.send(tgbotapi.NewMessage(chatID, "This slip has expired. Press «"+btnAddSlip+"» to start again."))
		return
	}
	var err error
	switch cw.m.Snapshot().Step() {
	case wizard.StepPatient:
		err = cw.m.SubmitPatient(ctx, msg.Text)
		if errors.Is(err, wizard.ErrInvalidInput) {
			b.send(tgbotapi.NewMessage(chatID, "Please enter the patient's first and last name, e.g. Jane Doe."))
			return
		}
	case wizard.StepProduct:
		err = cw.m.SearchProducts(ctx, msg.Text)
	default:
		b.send(tgbotapi.NewMessage(chatID, "Use the buttons above to continue."))
		return
	}
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, wizardError(err)))
		return
	}
	b.repost(cw)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	fromChat := cb.Message.Chat.ID

	switch {
	case strings.HasPrefix(data, "nav:"):
		b.onNavCallback(ctx, cb)
	case strings.HasPrefix(data, "wz:"):
		b.onWizardCallback(ctx, cb)
	case data == "cd:add":
		sc := b.resolve(ctx, fromChat, cb.From.ID)
		_ = b.answerCallback(cb, "", false)
		if sc != nil {
			b.openWizard(ctx, fromChat, sc, true)
		}
	case strings.HasPrefix(data, "ref:"):
		b.onRefCallback(ctx, cb)
	default:
		_ = b.answerCallback(cb, "Unknown action", false)
	}
}

// onNavCallback handles the shared Back and Cancel buttons.
func (b *Bot) onNavCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID, mid := cb.Message.Chat.ID, cb.Message.MessageID

	if cw := b.wizardFor(ctx, chatID); cw != nil && cw.mid == mid {
		var err error
		switch cb.Data {
		case "nav:back":
			err = cw.m.Back(ctx)
		case "nav:cancel":
			cw.m.RequestCancel()
		case "nav:cancel:no":
			cw.m.DismissCancel()
		case "nav:cancel:yes":
			b.dropWizard(chatID)
			_ = b.d.States.Reset(ctx, chatID)
			b.editTextAndClear(chatID, mid, "Slip cancelled.")
			_ = b.answerCallback(cb, "Cancelled", false)
			return
		}
		_ = b.answerCallback(cb, wizardError(err), false)
		return
	}

	st, _ := b.d.States.Get(ctx, chatID)
	switch {
	case cb.Data == "nav:back" && st != nil &&
		(st.State == dialog.StateAdmRefList || st.State == dialog.StateAdmRefItem || st.State == dialog.StateAdmRefSearch):
		b.refBack(ctx, cb, st)
		_ = b.answerCallback(cb, "", false)
	case strings.HasPrefix(cb.Data, "nav:cancel"):
		_ = b.d.States.Reset(ctx, chatID)
		b.editTextAndClear(chatID, mid, "Cancelled.")
		_ = b.answerCallback(cb, "Cancelled", false)
	default:
		b.editTextAndClear(chatID, mid, "This menu is no longer active.")
		_ = b.answerCallback(cb, "", false)
	}
}

// onWizardCallback handles "wz:<action>[:<arg>]" from the live wizard
// message. Buttons of older messages are ignored.
func (b *Bot) onWizardCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	cw := b.wizardFor(ctx, chatID)
	if cw == nil || cw.mid != cb.Message.MessageID {
		_ = b.answerCallback(cb, "This slip is no longer active.", false)
		b.editTextAndClear(chatID, cb.Message.MessageID, "This slip is no longer active.")
		return
	}

	parts := splitData(cb.Data, 3)
	action, arg := parts[1], parts[2]
	id, _ := strconv.ParseInt(arg, 10, 64)
	m := cw.m

	var err error
	switch action {
	case "lab":
		err = m.SelectLab(ctx, id)
	case "doc":
		err = m.SelectDoctor(ctx, id)
	case "cat":
		err = m.SelectCategory(ctx, id)
	case "sub":
		err = m.SelectSubcategory(ctx, id)
	case "prod":
		err = m.SelectProduct(ctx, id)
	case "stage":
		err = m.SelectStage(ctx, arg)
	case "arch":
		a, ok := slip.ParseArch(arg)
		if !ok {
			err = wizard.ErrInvalidInput
			break
		}
		err = m.SelectArch(a)
	case "change":
		err = m.ChangeProduct(ctx)
	case "confirm":
		// assembly talks to the lab and the stores; keep the update loop free
		_ = b.answerCallback(cb, "Saving…", false)
		b.bg.Add(1)
		go func() {
			defer b.bg.Done()
			_, err := m.ConfirmArch(ctx)
			switch {
			case err == nil, errors.Is(err, slip.ErrValidation),
				errors.Is(err, wizard.ErrNotAllowed), errors.Is(err, wizard.ErrClosed):
			default:
				b.log.Warn("confirm arch", "chat_id", chatID, "err", err)
			}
		}()
		return
	case "next":
		err = m.Next(ctx)
	case "clr":
		step := map[string]wizard.Step{
			"cat":  wizard.StepCategory,
			"sub":  wizard.StepSubcategory,
			"prod": wizard.StepProduct,
		}[arg]
		err = m.Clear(ctx, step)
	case "page":
		err = m.ProductPage(ctx, int(id))
	case "sort":
		err = m.ToggleSort(ctx)
	case "retry":
		err = m.Retry(ctx)
	default:
		err = wizard.ErrInvalidInput
	}
	_ = b.answerCallback(cb, wizardError(err), false)
}
