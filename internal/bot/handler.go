package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"licensedesk/internal/artifact"
	"licensedesk/internal/domain"
	"licensedesk/internal/usecase"
)

// Текстовые константы для кнопок (чтобы не опечататься)
const (
	BtnIssue = "🔑 Выдать лицензию"
	BtnBatch = "📦 Пакетная выдача"
	BtnList  = "📋 Последние лицензии"
)

const listLimit = 10

type Handler struct {
	bot      *tgbotapi.BotAPI
	svc      *usecase.IssuanceService
	renderer *artifact.Renderer

	adminID int64
	logger  *slog.Logger
	states  map[int64]*OperatorState
	mu      sync.RWMutex
}

// OperatorState - где оператор находится в диалоге выдачи
type OperatorState struct {
	Step     string // awaiting_name, awaiting_phone, awaiting_batch_size
	TempName string
}

func NewHandler(
	bot *tgbotapi.BotAPI,
	svc *usecase.IssuanceService,
	renderer *artifact.Renderer,
	adminID int64,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		bot:      bot,
		svc:      svc,
		renderer: renderer,
		adminID:  adminID,
		logger:   logger.With(slog.String("component", "bot")),
		states:   make(map[int64]*OperatorState),
	}
}

func (h *Handler) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := h.bot.GetUpdatesChan(u)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				go h.handleMessage(ctx, update.Message)
			}
		case <-ctx.Done():
			h.bot.StopReceivingUpdates()
			return
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	// Выдача лицензий - операторская функция, посторонним бот не отвечает
	if msg.From.ID != h.adminID {
		h.logger.Warn("message from non-operator ignored", slog.Int64("from", msg.From.ID))
		return
	}

	if msg.IsCommand() {
		h.clearState(msg.Chat.ID)
		switch msg.Command() {
		case "start":
			h.cmdStart(msg.Chat.ID)
		case "issue":
			// Быстрая анонимная выдача без формы
			h.issueAnonymous(ctx, msg.Chat.ID)
		case "batch":
			h.issueBatch(ctx, msg.Chat.ID, strings.TrimSpace(msg.CommandArguments()))
		case "list":
			h.cmdList(ctx, msg.Chat.ID)
		}
		return
	}

	// Кнопки меню
	switch msg.Text {
	case BtnIssue:
		h.setState(msg.Chat.ID, &OperatorState{Step: "awaiting_name"})
		h.reply(msg.Chat.ID, "Имя владельца лицензии?")
		return
	case BtnBatch:
		h.setState(msg.Chat.ID, &OperatorState{Step: "awaiting_batch_size"})
		h.reply(msg.Chat.ID, "Сколько ключей выдать?")
		return
	case BtnList:
		h.cmdList(ctx, msg.Chat.ID)
		return
	}

	// Шаги диалога
	state := h.getState(msg.Chat.ID)
	if state == nil {
		h.cmdStart(msg.Chat.ID)
		return
	}

	switch state.Step {
	case "awaiting_name":
		state.TempName = strings.TrimSpace(msg.Text)
		state.Step = "awaiting_phone"
		h.reply(msg.Chat.ID, "Телефон владельца?")

	case "awaiting_phone":
		holder := &domain.Holder{Name: state.TempName, Phone: strings.TrimSpace(msg.Text)}
		h.clearState(msg.Chat.ID)
		h.issueFor(ctx, msg.Chat.ID, holder)

	case "awaiting_batch_size":
		h.clearState(msg.Chat.ID)
		h.issueBatch(ctx, msg.Chat.ID, strings.TrimSpace(msg.Text))
	}
}

func (h *Handler) cmdStart(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Панель выдачи лицензий. Выберите действие:")
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnIssue),
			tgbotapi.NewKeyboardButton(BtnBatch),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnList),
		),
	)
	h.send(msg)
}

func (h *Handler) issueAnonymous(ctx context.Context, chatID int64) {
	h.issueFor(ctx, chatID, nil)
}

func (h *Handler) issueFor(ctx context.Context, chatID int64, holder *domain.Holder) {
	rec, err := h.svc.IssueOne(ctx, holder)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	art, err := h.renderer.Render(rec)
	if err != nil {
		// Лицензия уже в базе, без QR оператор не остается - отдаем текстом
		h.logger.Error("artifact render failed", slog.String("err", err.Error()))
		h.reply(chatID, fmt.Sprintf("✅ Лицензия №%d выдана: %s\n(QR не сгенерировался, повторите /list)", rec.ID, rec.Key))
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  rec.Key + ".png",
		Bytes: art.PNG,
	})
	photo.Caption = art.Text
	h.send(photo)
}

func (h *Handler) issueBatch(ctx context.Context, chatID int64, arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		h.reply(chatID, "Нужно число, например: /batch 10")
		return
	}

	records, err := h.svc.IssueBatch(ctx, n)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Выдано ключей: %d\n\n", len(records))
	for _, rec := range records {
		fmt.Fprintf(&b, "%d. %s\n", rec.ID, rec.Key)
	}
	h.reply(chatID, b.String())
}

func (h *Handler) cmdList(ctx context.Context, chatID int64) {
	records, err := h.svc.ListAll(ctx)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if len(records) == 0 {
		h.reply(chatID, "Лицензий пока нет.")
		return
	}

	total := len(records)
	if len(records) > listLimit {
		records = records[:listLimit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Всего лицензий: %d, последние %d:\n\n", total, len(records))
	for _, rec := range records {
		fmt.Fprintf(&b, "%d. %s", rec.ID, rec.Key)
		if rec.Holder != nil {
			fmt.Fprintf(&b, " — %s", rec.Holder.Name)
		}
		fmt.Fprintf(&b, " (%s)\n", rec.CreatedAt.Format("2006-01-02 15:04"))
	}
	h.reply(chatID, b.String())
}

func (h *Handler) replyError(chatID int64, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		h.reply(chatID, "⚠️ "+vErr.Error())
	case errors.Is(err, domain.ErrCollisionExhausted):
		h.reply(chatID, "⚠️ Не удалось подобрать свободный ключ, попробуйте еще раз.")
	default:
		h.logger.Error("issuance failed", slog.String("err", err.Error()))
		h.reply(chatID, "🔥 Ошибка при выдаче, лицензия не записана. Подробности в логах.")
	}
}

func (h *Handler) reply(chatID int64, text string) {
	h.send(tgbotapi.NewMessage(chatID, text))
}

func (h *Handler) send(c tgbotapi.Chattable) {
	if _, err := h.bot.Send(c); err != nil {
		h.logger.Error("telegram send failed", slog.String("err", err.Error()))
	}
}

func (h *Handler) getState(chatID int64) *OperatorState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.states[chatID]
}

func (h *Handler) setState(chatID int64, s *OperatorState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states[chatID] = s
}

func (h *Handler) clearState(chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.states, chatID)
}
