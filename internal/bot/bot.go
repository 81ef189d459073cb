package bot

import (
	"context"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/slip-bot/internal/dialog"
	"github.com/Spok95/slip-bot/internal/domain/users"
	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/session"
	"github.com/Spok95/slip-bot/internal/slip"
	"github.com/Spok95/slip-bot/internal/wizard"
)

// API is the part of tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
}

type UserStore interface {
	UpsertFromTelegram(ctx context.Context, tg users.Telegram) (*users.User, error)
}

// StateStore keeps the per-chat dialog state; dialog.Repo in production.
type StateStore interface {
	Get(ctx context.Context, chatID int64) (*dialog.Item, error)
	Set(ctx context.Context, chatID int64, state dialog.State, payload dialog.Payload) error
	Reset(ctx context.Context, chatID int64) error
}

// SlipStore is the durable slip record.
type SlipStore interface {
	slip.Store
	Get(ctx context.Context, owner int64) (*slip.Payload, error)
}

type Deps struct {
	Users       UserStore
	Sessions    *session.Resolver
	States      StateStore
	Lab         *labapi.Client
	Slips       SlipStore
	Pages       slip.PageCache
	Extractions *slip.ExtractionCache
	Wizard      wizard.Options
	// AdminChat is told about every saved slip when set.
	AdminChat int64
}

type Bot struct {
	api API
	log *slog.Logger
	d   Deps
	ctx context.Context
	bg  sync.WaitGroup // work started off the update loop

	mu         sync.Mutex
	wizards    map[int64]*chatWizard
	caseDesign map[int64]int // chat -> message id of the case-design summary
}

func New(api API, log *slog.Logger, d Deps) *Bot {
	if d.Extractions == nil {
		d.Extractions = slip.NewExtractionCache()
	}
	return &Bot{
		api:        api,
		log:        log.With("component", "bot"),
		d:          d,
		ctx:        context.Background(),
		wizards:    map[int64]*chatWizard{},
		caseDesign: map[int64]int{},
	}
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	b.ctx = ctx
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			b.bg.Wait()
			return ctx.Err()
		case upd := <-updates:
			if upd.Message != nil {
				b.onMessage(ctx, upd)
			} else if upd.CallbackQuery != nil {
				b.onCallback(ctx, upd)
			}
		}
	}
}

func (b *Bot) onMessage(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleStateMessage(ctx, msg)
}

func (b *Bot) onCallback(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery.Message == nil {
		return
	}
	b.handleCallback(ctx, upd.CallbackQuery)
}
