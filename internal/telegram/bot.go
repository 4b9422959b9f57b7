// Package telegram is the chat transport: it turns bot updates into intake
// submissions and approval decisions and sends their results back.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dvloznov/invoice-agent/internal/approval"
	"github.com/dvloznov/invoice-agent/internal/clients"
	"github.com/dvloznov/invoice-agent/internal/extract"
	"github.com/dvloznov/invoice-agent/internal/intake"
	"github.com/dvloznov/invoice-agent/internal/jobs"
	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// Messages sent by the bot itself.
const (
	MsgUnregistered = "❌ Sorry, I don't recognize your account.\nPlease contact your accountant to register."
	MsgWelcome      = "👋 Hello %s!\n\nSend me a photo or PDF of your invoice/receipt and I'll process it for you."
	MsgSendInvoice  = "📸 Please send a photo or PDF of the invoice."
	MsgNotApprover  = "⛔ Only the approver can decide invoices."
	MsgBusy         = "⚠️ Too many invoices in progress. Please try again in a minute."
)

// pollTimeout is the long-polling timeout in seconds.
const pollTimeout = 60

// defaultPublishTimeout bounds how long an update waits for queue space
// before the sender is told the bot is busy.
const defaultPublishTimeout = 5 * time.Second

// Submitter runs an upload through intake.
type Submitter interface {
	Submit(ctx context.Context, sub pending.Submitter, up intake.Upload, r intake.Responder) (string, error)
}

// Decider applies approver decisions.
type Decider interface {
	Approve(ctx context.Context, id string, reply approval.Reply) approval.Outcome
	Reject(ctx context.Context, id string, reply approval.Reply) approval.Outcome
}

// Bot routes Telegram updates. Uploads and decisions run as jobs on the
// publisher; without one they run inline.
type Bot struct {
	api           botAPI
	registry      clients.Registry
	intake        Submitter
	decider       Decider
	publisher     jobs.Publisher
	managerChatID int64

	publishTimeout time.Duration
}

// Deps are the collaborators of a Bot. Publisher is optional.
type Deps struct {
	API           botAPI
	Registry      clients.Registry
	Intake        Submitter
	Decider       Decider
	Publisher     jobs.Publisher
	ManagerChatID int64
}

// NewBot creates a bot from its dependencies.
func NewBot(d Deps) *Bot {
	return &Bot{
		api:           d.API,
		registry:      d.Registry,
		intake:        d.Intake,
		decider:       d.Decider,
		publisher:     d.Publisher,
		managerChatID: d.ManagerChatID,

		publishTimeout: defaultPublishTimeout,
	}
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)
	log.Info().Int64("manager_chat_id", b.managerChatID).Msg("Telegram bot polling for updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Info().Msg("Telegram bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("telegram updates channel closed")
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes a single update. It never fails: problems are
// logged and reported to the user.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx = logger.Enrich(ctx, map[string]interface{}{"update_id": update.UpdateID})

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil {
		return
	}
	log := logger.FromContext(ctx)

	client, ok := b.registry.Lookup(ctx, m.From.ID, profileName(m.From))
	if !ok {
		log.Info().Int64("telegram_id", m.From.ID).Msg("Message from unregistered user")
		b.send(ctx, m.Chat.ID, MsgUnregistered)
		return
	}
	sub := pending.Submitter{ID: m.From.ID, DisplayName: client.Name, ChatID: m.Chat.ID}

	switch {
	case m.IsCommand() && m.Command() == "start":
		b.send(ctx, m.Chat.ID, fmt.Sprintf(MsgWelcome, client.Name))
	case len(m.Photo) > 0:
		// Sizes are ordered smallest first.
		photo := m.Photo[len(m.Photo)-1]
		b.submit(ctx, sub, photo.FileID, intake.Upload{MIMEType: "image/jpeg", Size: int64(photo.FileSize)})
	case m.Document != nil:
		doc := m.Document
		if _, ok := extract.DetectKind(doc.MimeType, doc.FileName); !ok {
			b.send(ctx, m.Chat.ID, intake.MsgUnsupported)
			return
		}
		b.submit(ctx, sub, doc.FileID, intake.Upload{MIMEType: doc.MimeType, FileName: doc.FileName, Size: int64(doc.FileSize)})
	default:
		b.send(ctx, m.Chat.ID, MsgSendInvoice)
	}
}

func (b *Bot) submit(ctx context.Context, sub pending.Submitter, fileID string, up intake.Upload) {
	responder := chatResponder{api: b.api, chatID: sub.ChatID}
	b.dispatch(ctx, sub.ChatID, &jobs.Job{
		Type:        jobs.JobTypeIntake,
		SubmitterID: sub.ID,
		Run: func(ctx context.Context) (string, error) {
			url, err := b.api.GetFileDirectURL(fileID)
			if err != nil {
				_ = responder.Respond(ctx, failureMessage(up))
				return "", fmt.Errorf("resolve file url: %w", err)
			}
			up.URL = url
			id, err := b.intake.Submit(ctx, sub, up, responder)
			if err != nil {
				return "", err
			}
			return "submission " + id, nil
		},
	})
}

func failureMessage(up intake.Upload) string {
	if kind, _ := extract.DetectKind(up.MIMEType, up.FileName); kind == extract.KindPDF {
		return intake.MsgPDFFailed
	}
	return intake.MsgImageFailed
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	log := logger.FromContext(ctx)
	reply := &callbackReply{api: b.api, query: q}

	decide, id := b.parseDecision(q.Data)
	if decide == nil {
		log.Warn().Str("data", q.Data).Msg("Unknown callback")
		_ = reply.Ack(ctx, "")
		return
	}
	if q.Message == nil || q.Message.Chat == nil || q.Message.Chat.ID != b.managerChatID {
		log.Warn().Str("submission_id", id).Msg("Decision from outside the approver chat")
		_ = reply.Ack(ctx, MsgNotApprover)
		return
	}

	b.dispatch(ctx, q.Message.Chat.ID, &jobs.Job{
		Type:         jobs.JobTypeDecision,
		SubmissionID: id,
		Run: func(ctx context.Context) (string, error) {
			out := decide(ctx, id, reply)
			if out.State == approval.StateFailed {
				return string(out.State), out.Err
			}
			return string(out.State), nil
		},
	})
}

func (b *Bot) parseDecision(data string) (func(context.Context, string, approval.Reply) approval.Outcome, string) {
	switch {
	case strings.HasPrefix(data, approvePrefix):
		return b.decider.Approve, strings.TrimPrefix(data, approvePrefix)
	case strings.HasPrefix(data, rejectPrefix):
		return b.decider.Reject, strings.TrimPrefix(data, rejectPrefix)
	}
	return nil, ""
}

// dispatch hands job to the publisher, or runs it inline without one.
func (b *Bot) dispatch(ctx context.Context, chatID int64, job *jobs.Job) {
	log := logger.FromContext(ctx)

	if b.publisher == nil {
		if _, err := job.Run(ctx); err != nil {
			log.Error().Err(err).Str("job_type", string(job.Type)).Msg("Job failed")
		}
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, b.publishTimeout)
	defer cancel()
	if err := b.publisher.Publish(pubCtx, job); err != nil {
		log.Error().Err(err).Str("job_type", string(job.Type)).Msg("Failed to enqueue job")
		b.send(ctx, chatID, MsgBusy)
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func profileName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}
