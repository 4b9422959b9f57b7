package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dvloznov/invoice-agent/internal/approval"
	"github.com/dvloznov/invoice-agent/internal/intake"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// Callback data prefixes of the approval keyboard.
const (
	approvePrefix = "approve_invoice:"
	rejectPrefix  = "reject_invoice:"
)

// telegramFileHost serves bot file downloads; its URLs embed the token.
const telegramFileHost = "https://api.telegram.org/file/"

// botAPI is the subset of *tgbotapi.BotAPI used by this package.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Notifier sends approval requests to the approver chat and outcome
// notices to submitters.
type Notifier struct {
	api           botAPI
	managerChatID int64
	locale        invoice.Locale
}

// NewNotifier returns a notifier posting approval requests to managerChatID.
func NewNotifier(api botAPI, managerChatID int64, locale invoice.Locale) *Notifier {
	return &Notifier{api: api, managerChatID: managerChatID, locale: locale}
}

// RequestApproval implements intake.ApproverNotifier. The source file is
// attached with the summary as its caption; if that fails a plain text
// request is sent instead.
func (n *Notifier) RequestApproval(ctx context.Context, sub pending.Submission) error {
	caption := n.caption(sub)
	keyboard := approvalKeyboard(sub.ID)

	_, err := n.api.Send(n.attachment(sub, caption, keyboard))
	if err == nil {
		return nil
	}

	log := logger.FromContext(ctx)
	log.Warn().Err(err).Str("submission_id", sub.ID).Msg("Failed to send file to approver, trying message only")

	text := caption
	if link := shareableLink(sub.Source.URL); link != "" {
		text += fmt.Sprintf("\n\n[File Link](%s)", link)
	}
	msg := tgbotapi.NewMessage(n.managerChatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = keyboard
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send approval request: %w", err)
	}
	return nil
}

// NotifySubmitter implements approval.SubmitterNotifier.
func (n *Notifier) NotifySubmitter(ctx context.Context, sub pending.Submitter, text string) error {
	if sub.ChatID == 0 {
		return nil
	}
	_, err := n.api.Send(tgbotapi.NewMessage(sub.ChatID, text))
	return err
}

func (n *Notifier) attachment(sub pending.Submission, caption string, keyboard tgbotapi.InlineKeyboardMarkup) tgbotapi.Chattable {
	var file tgbotapi.RequestFileData = tgbotapi.FileURL(sub.Source.URL)
	if len(sub.Source.Bytes) > 0 {
		file = tgbotapi.FileBytes{Name: sub.Source.FileName, Bytes: sub.Source.Bytes}
		if sub.Source.FileName == "" {
			file = tgbotapi.FileBytes{Name: "invoice" + sub.Source.Ext(), Bytes: sub.Source.Bytes}
		}
	}

	if strings.HasPrefix(sub.Source.MIMEType, "image/") {
		photo := tgbotapi.NewPhoto(n.managerChatID, file)
		photo.Caption = caption
		photo.ParseMode = tgbotapi.ModeMarkdown
		photo.ReplyMarkup = keyboard
		return photo
	}
	doc := tgbotapi.NewDocument(n.managerChatID, file)
	doc.Caption = caption
	doc.ParseMode = tgbotapi.ModeMarkdown
	doc.ReplyMarkup = keyboard
	return doc
}

func (n *Notifier) caption(sub pending.Submission) string {
	rec := sub.Record
	esc := func(s string) string { return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s) }
	rule := "━━━━━━━━━━━━━━━━━━━━━━━━━━"

	var b strings.Builder
	b.WriteString("📄 *New Invoice Pending Approval*\n\n")
	fmt.Fprintf(&b, "👤 Client: %s\n%s\n", esc(sub.Submitter.DisplayName), rule)
	fmt.Fprintf(&b, "📅 Date: %s\n", esc(rec.Date))
	fmt.Fprintf(&b, "🏪 Supplier: %s\n", esc(rec.SupplierName))
	fmt.Fprintf(&b, "🔢 Invoice #: %s\n", esc(rec.InvoiceNumberOr("N/A")))
	fmt.Fprintf(&b, "💰 Before VAT: %s ₪\n", rec.AmountBeforeVAT.StringFixed(2))
	fmt.Fprintf(&b, "📊 VAT: %s ₪\n", rec.VATAmount.StringFixed(2))
	fmt.Fprintf(&b, "💵 Total: %s ₪\n", rec.TotalAmount.StringFixed(2))
	fmt.Fprintf(&b, "🏷️ Category: %s\n%s", esc(rec.Category.Label(n.locale)), rule)
	return b.String()
}

func approvalKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve & Log", approvePrefix+id),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", rejectPrefix+id),
		),
	)
}

// shareableLink drops Telegram download URLs, which carry the bot token.
func shareableLink(url string) string {
	if strings.HasPrefix(url, telegramFileHost) {
		return ""
	}
	return url
}

var (
	_ intake.ApproverNotifier    = (*Notifier)(nil)
	_ approval.SubmitterNotifier = (*Notifier)(nil)
)
