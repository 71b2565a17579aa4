package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"slack-ai-bridge/internal/domain"
	"slack-ai-bridge/internal/logger"
)

const defaultReplyBudget = 50

// Outcome reports how a mention was handled.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCeiling   Outcome = "ceiling"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

type EventLedger interface {
	Claim(ctx context.Context, rec domain.EventRecord) (bool, error)
	Complete(ctx context.Context, eventID, response string) error
}

type HistoryProvider interface {
	History(ctx context.Context, channelID, threadTS string) ([]domain.ConversationTurn, error)
}

type AttachmentReader interface {
	ReadFile(ctx context.Context, f domain.FileRef) (string, bool, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string) (domain.PageContent, error)
}

type LLMClient interface {
	Reply(ctx context.Context, messages []domain.PromptMessage) (string, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, channelID, threadTS, text string) error
}

// Settings tunes MentionService. Zero values select defaults.
type Settings struct {
	ReplyBudget     int
	CeilingMessage  string
	ApologyFormat   string
	MaxPageChars    int
	FileConcurrency int
}

// Deps are the collaborators of MentionService. Files and Pages are optional.
type Deps struct {
	Ledger   EventLedger
	History  HistoryProvider
	Files    AttachmentReader
	Pages    PageFetcher
	LLM      LLMClient
	Delivery Deliverer
}

// MentionService runs one mention through claim, context assembly,
// inference, delivery and completion.
type MentionService struct {
	ledger   EventLedger
	history  HistoryProvider
	llm      LLMClient
	delivery Deliverer
	enrich   *enricher

	budget        int
	ceilingText   string
	apologyFormat string
	now           func() time.Time
}

func NewMentionService(d Deps, s Settings) (*MentionService, error) {
	if d.Ledger == nil {
		return nil, errors.New("usecase: ledger must not be nil")
	}
	if d.History == nil {
		return nil, errors.New("usecase: history provider must not be nil")
	}
	if d.LLM == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if d.Delivery == nil {
		return nil, errors.New("usecase: deliverer must not be nil")
	}
	if s.ReplyBudget <= 0 {
		s.ReplyBudget = defaultReplyBudget
	}
	if s.CeilingMessage == "" {
		s.CeilingMessage = DefaultCeilingMessage
	}
	if s.ApologyFormat == "" {
		s.ApologyFormat = DefaultApologyFormat
	}
	if s.MaxPageChars <= 0 {
		s.MaxPageChars = defaultMaxPageChars
	}
	if s.FileConcurrency <= 0 {
		s.FileConcurrency = defaultFileConcurrency
	}
	return &MentionService{
		ledger:   d.Ledger,
		history:  d.History,
		llm:      d.LLM,
		delivery: d.Delivery,
		enrich: &enricher{
			files:           d.Files,
			pages:           d.Pages,
			maxPageChars:    s.MaxPageChars,
			fileConcurrency: s.FileConcurrency,
		},
		budget:        s.ReplyBudget,
		ceilingText:   s.CeilingMessage,
		apologyFormat: s.ApologyFormat,
		now:           time.Now,
	}, nil
}

// Handle processes ev at most once per event id. A returned error means the
// pipeline failed after the event was (or could not be) claimed; an apology
// has already been attempted in the thread.
func (s *MentionService) Handle(ctx context.Context, ev domain.MentionEvent) (Outcome, error) {
	ctx = logger.With(ctx,
		slog.String("event_id", ev.EventID),
		slog.String("channel_id", ev.ChannelID),
		slog.String("thread_id", ev.ThreadID),
	)
	log := logger.FromContext(ctx)

	claimed, err := s.ledger.Claim(ctx, domain.EventRecord{
		EventID:     ev.EventID,
		UserID:      ev.UserID,
		ChannelID:   ev.ChannelID,
		ThreadID:    ev.ThreadID,
		UserMessage: ev.Text,
		CreatedAt:   s.now().UnixMilli(),
	})
	if err != nil {
		return s.fail(ctx, ev, phaseClaim, err)
	}
	if !claimed {
		log.Info("duplicate event ignored")
		return OutcomeDuplicate, nil
	}

	prompt, assistantTurns := FormatConversation(s.priorTurns(ctx, ev), s.currentMessage(ctx, ev))

	var reply string
	outcome := OutcomeCompleted
	switch {
	case assistantTurns >= s.budget:
		log.Info("reply budget reached", slog.Int("assistant_turns", assistantTurns), slog.Int("budget", s.budget))
		reply = s.ceilingText
		outcome = OutcomeCeiling
	case len(prompt) == 0 || prompt[len(prompt)-1].Role != domain.RoleUser:
		log.Info("nothing to send to the model")
		if err := s.ledger.Complete(ctx, ev.EventID, ""); err != nil {
			return s.fail(ctx, ev, phaseRecord, err)
		}
		return OutcomeSkipped, nil
	default:
		reply, err = s.llm.Reply(ctx, prompt)
		if err != nil {
			return s.fail(ctx, ev, phaseGenerate, err)
		}
	}

	if err := s.delivery.Deliver(ctx, ev.ChannelID, ev.ThreadID, reply); err != nil {
		return s.fail(ctx, ev, phaseDeliver, err)
	}
	if err := s.ledger.Complete(ctx, ev.EventID, reply); err != nil {
		return s.fail(ctx, ev, phaseRecord, err)
	}
	log.Info("mention handled", slog.String("outcome", string(outcome)), slog.Int("reply_chars", len([]rune(reply))))
	return outcome, nil
}

// priorTurns fetches the thread without the triggering message. A history
// failure degrades to an empty history.
func (s *MentionService) priorTurns(ctx context.Context, ev domain.MentionEvent) []domain.ConversationTurn {
	turns, err := s.history.History(ctx, ev.ChannelID, ev.ThreadID)
	if err != nil {
		logger.FromContext(ctx).Warn("thread history unavailable, continuing without it",
			slog.String("kind", string(domain.ErrHistoryUnavailable)),
			slog.Any("error", err))
		return nil
	}
	prior := make([]domain.ConversationTurn, 0, len(turns))
	for _, t := range turns {
		if t.Timestamp == ev.MessageTS {
			continue
		}
		if t.Origin == domain.OriginHuman {
			t.Text += s.enrich.attachments(ctx, t.Files) + s.enrich.page(ctx, t.Text, false)
		}
		prior = append(prior, t)
	}
	return prior
}

func (s *MentionService) currentMessage(ctx context.Context, ev domain.MentionEvent) string {
	text := ev.Text + s.enrich.attachments(ctx, ev.Files)
	return text + s.enrich.page(ctx, ev.Text, true)
}

// fail reports err, posts a best-effort apology into the thread and returns
// err for the caller.
func (s *MentionService) fail(ctx context.Context, ev domain.MentionEvent, phase string, err error) (Outcome, error) {
	log := logger.FromContext(ctx)
	kind, _ := domain.KindOf(err)
	log.Error("mention failed", slog.String("phase", phase), slog.String("kind", string(kind)), slog.Any("error", err))

	if ev.ChannelID != "" && ev.ThreadID != "" {
		if derr := s.delivery.Deliver(ctx, ev.ChannelID, ev.ThreadID, apology(s.apologyFormat, phase, err)); derr != nil {
			log.Error("apology delivery failed", slog.Any("error", derr))
		}
	}
	return OutcomeFailed, err
}
