package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/slip-bot/internal/dialog"
	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/session"
)

const refsPerPage = 10

// refClient returns the lab API client of a lab admin, or nil after telling
// everyone else the section is closed to them.
func (b *Bot) refClient(ctx context.Context, chatID, tgID int64) *labapi.Client {
	sc := b.resolve(ctx, chatID, tgID)
	if sc == nil {
		return nil
	}
	if sc.Role != session.RoleLabAdmin {
		b.send(tgbotapi.NewMessage(chatID, "Reference lists are available to lab admins only."))
		return nil
	}
	return b.d.Lab.WithToken(sc.Token)
}

func (b *Bot) showRefMenu(chatID int64, editMsgID *int) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, r := range labapi.Resources {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(r.Title(), fmt.Sprintf("ref:list:%s:1", r)),
		))
	}
	rows = append(rows, navKeyboard(false, true).InlineKeyboard[0])
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	if editMsgID != nil {
		b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, *editMsgID, "Reference lists: choose one", kb))
	} else {
		m := tgbotapi.NewMessage(chatID, "Reference lists: choose one")
		m.ReplyMarkup = kb
		b.send(m)
	}
}

func (b *Bot) showRefList(ctx context.Context, c *labapi.Client, chatID int64, editMsgID int, res labapi.Resource, page int, search string) {
	p, err := c.List(ctx, res, labapi.ListParams{Page: page, PerPage: refsPerPage, Search: search})
	if err != nil {
		b.log.Warn("list reference", "res", res, "err", err)
		b.editTextWithNav(chatID, editMsgID, "Could not load "+strings.ToLower(res.Title())+".")
		return
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, r := range p.Items {
		label := fmt.Sprintf("%s %s", badge(r.Active()), r.Name)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("ref:item:%s:%d", res, r.ID)),
		))
	}
	var paging []tgbotapi.InlineKeyboardButton
	if p.Page > 1 {
		paging = append(paging, tgbotapi.NewInlineKeyboardButtonData("◀️", fmt.Sprintf("ref:list:%s:%d", res, p.Page-1)))
	}
	paging = append(paging, tgbotapi.NewInlineKeyboardButtonData("🔍 Search", "ref:search:"+string(res)))
	if p.Page < p.LastPage {
		paging = append(paging, tgbotapi.NewInlineKeyboardButtonData("▶️", fmt.Sprintf("ref:list:%s:%d", res, p.Page+1)))
	}
	rows = append(rows, paging, navKeyboard(true, true).InlineKeyboard[0])

	text := fmt.Sprintf("%s · page %d of %d", res.Title(), p.Page, max(p.LastPage, 1))
	if search != "" {
		text += fmt.Sprintf("\nSearch: %q", search)
	}
	if len(p.Items) == 0 {
		text += "\nNothing found."
	}
	b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, editMsgID, text, tgbotapi.NewInlineKeyboardMarkup(rows...)))
	_ = b.d.States.Set(ctx, chatID, dialog.StateAdmRefList, dialog.Payload{
		dialog.KeyResource: string(res), dialog.KeyPage: p.Page, dialog.KeySearch: search, dialog.KeyLastMID: editMsgID,
	})
}

func (b *Bot) showRefItem(ctx context.Context, c *labapi.Client, chatID int64, editMsgID int, res labapi.Resource, id int64) {
	r, err := c.Get(ctx, res, id)
	if err != nil || r == nil {
		b.editTextWithNav(chatID, editMsgID, "Record not found.")
		return
	}
	toggle := "🙈 Deactivate"
	if !r.Active() {
		toggle = "👁 Activate"
	}
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(toggle, fmt.Sprintf("ref:tg:%s:%d", res, id)),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", fmt.Sprintf("ref:del:%s:%d", res, id)),
		),
		navKeyboard(true, true).InlineKeyboard[0],
	}
	b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, editMsgID, recordCard(res, r), tgbotapi.NewInlineKeyboardMarkup(rows...)))

	st, _ := b.d.States.Get(ctx, chatID)
	p := dialog.Payload{}
	if st != nil && st.Payload != nil {
		p = st.Payload
	}
	p[dialog.KeyResource] = string(res)
	p[dialog.KeyRecord] = id
	p[dialog.KeyLastMID] = editMsgID
	_ = b.d.States.Set(ctx, chatID, dialog.StateAdmRefItem, p)
}

func (b *Bot) confirmRefDelete(chatID int64, editMsgID int, res labapi.Resource, id int64) {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, delete", fmt.Sprintf("ref:delok:%s:%d", res, id)),
			tgbotapi.NewInlineKeyboardButtonData("No", fmt.Sprintf("ref:item:%s:%d", res, id)),
		),
	)
	b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, editMsgID, "Delete this record? This cannot be undone.", kb))
}

// onRefCallback handles "ref:<action>:<resource>:<arg>".
func (b *Bot) onRefCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID, mid := cb.Message.Chat.ID, cb.Message.MessageID
	c := b.refClient(ctx, chatID, cb.From.ID)
	if c == nil {
		_ = b.answerCallback(cb, "", false)
		return
	}
	parts := splitData(cb.Data, 4)
	action := parts[1]
	if action == "menu" {
		b.showRefMenu(chatID, &mid)
		_ = b.d.States.Set(ctx, chatID, dialog.StateAdmRefMenu, dialog.Payload{})
		_ = b.answerCallback(cb, "", false)
		return
	}
	res, ok := labapi.ParseResource(parts[2])
	if !ok {
		_ = b.answerCallback(cb, "Unknown list", false)
		return
	}

	switch action {
	case "list":
		page, _ := parseID(parts[3])
		st, _ := b.d.States.Get(ctx, chatID)
		search := ""
		if st != nil {
			if r, _ := dialog.GetString(st.Payload, dialog.KeyResource); r == string(res) {
				search, _ = dialog.GetString(st.Payload, dialog.KeySearch)
			}
		}
		b.showRefList(ctx, c, chatID, mid, res, max(int(page), 1), search)
	case "item":
		if id, ok := parseID(parts[3]); ok {
			b.showRefItem(ctx, c, chatID, mid, res, id)
		}
	case "tg":
		id, ok := parseID(parts[3])
		if !ok {
			break
		}
		if _, err := c.ToggleStatus(ctx, res, id); err != nil {
			b.log.Warn("toggle reference", "res", res, "id", id, "err", err)
			_ = b.answerCallback(cb, "Could not change the status", true)
			return
		}
		b.showRefItem(ctx, c, chatID, mid, res, id)
	case "del":
		if id, ok := parseID(parts[3]); ok {
			b.confirmRefDelete(chatID, mid, res, id)
		}
	case "delok":
		id, ok := parseID(parts[3])
		if !ok {
			break
		}
		if err := c.Delete(ctx, res, id); err != nil {
			b.log.Warn("delete reference", "res", res, "id", id, "err", err)
			_ = b.answerCallback(cb, "Could not delete the record", true)
			return
		}
		b.showRefList(ctx, c, chatID, mid, res, 1, "")
		_ = b.answerCallback(cb, "Deleted", false)
		return
	case "search":
		_ = b.d.States.Set(ctx, chatID, dialog.StateAdmRefSearch, dialog.Payload{
			dialog.KeyResource: string(res), dialog.KeyLastMID: mid,
		})
		b.editTextWithNav(chatID, mid, "Send the text to search "+strings.ToLower(res.Title())+" for.")
	}
	_ = b.answerCallback(cb, "", false)
}

// refSearch runs a search typed while a list waits for one.
func (b *Bot) refSearch(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	chatID := msg.Chat.ID
	c := b.refClient(ctx, chatID, msg.From.ID)
	if c == nil {
		return
	}
	rs, _ := dialog.GetString(st.Payload, dialog.KeyResource)
	res, ok := labapi.ParseResource(rs)
	if !ok {
		_ = b.d.States.Reset(ctx, chatID)
		return
	}
	m := tgbotapi.NewMessage(chatID, "Searching…")
	sent, err := b.api.Send(m)
	if err != nil {
		b.log.Error("send failed", "err", err)
		return
	}
	if old, ok := dialog.GetInt(st.Payload, dialog.KeyLastMID); ok {
		b.editTextAndClear(chatID, int(old), res.Title())
	}
	b.showRefList(ctx, c, chatID, sent.MessageID, res, 1, strings.TrimSpace(msg.Text))
}

// refBack steps back through the reference screens.
func (b *Bot) refBack(ctx context.Context, cb *tgbotapi.CallbackQuery, st *dialog.Item) {
	chatID, mid := cb.Message.Chat.ID, cb.Message.MessageID
	c := b.refClient(ctx, chatID, cb.From.ID)
	if c == nil {
		return
	}
	rs, _ := dialog.GetString(st.Payload, dialog.KeyResource)
	res, ok := labapi.ParseResource(rs)
	switch {
	case st.State == dialog.StateAdmRefItem && ok:
		page, _ := dialog.GetInt(st.Payload, dialog.KeyPage)
		search, _ := dialog.GetString(st.Payload, dialog.KeySearch)
		b.showRefList(ctx, c, chatID, mid, res, max(int(page), 1), search)
	case st.State == dialog.StateAdmRefSearch && ok:
		b.showRefList(ctx, c, chatID, mid, res, 1, "")
	default:
		b.showRefMenu(chatID, &mid)
		_ = b.d.States.Set(ctx, chatID, dialog.StateAdmRefMenu, dialog.Payload{})
	}
}

// recordCard prints a record's name, status and remaining scalar fields.
func recordCard(res labapi.Resource, r *labapi.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n%s %s\nStatus: %s\n", res.Title(), badge(r.Active()), r.Name, orDash(r.Status))
	keys := make([]string, 0, len(r.Fields))
	for k, v := range r.Fields {
		switch v.(type) {
		case string, float64, bool:
			if k != "id" && k != "status" && k != "name" {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %v\n", k, r.Fields[k])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
