package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"makedeal/internal/models"
)

func sampleResult() TransitionResult {
	reason := "LOI signed"
	from := "analysis"
	return TransitionResult{
		Success:          true,
		HistoryID:        "h-1",
		PreviousStageKey: "analysis",
		NewState: models.DealStageState{
			DealID: "d1", Name: "Acme <Holdings>", CurrentStageKey: "closing",
			Status: models.DealOpen, Probability: 90, HealthScore: 62,
		},
		Record: models.TransitionRecord{
			ID: "h-1", DealID: "d1", FromStageKey: &from, ToStageKey: "closing",
			ChangedBy: "alice", ChangedAt: testNow, Reason: &reason,
		},
		Warnings: []string{"skipping 1 stage(s): Due Diligence"},
	}
}

func TestNewStageChangeNotice(t *testing.T) {
	catalog, err := NewStageCatalog(testStages(), nil, quietLogger())
	require.NoError(t, err)

	n := NewStageChangeNotice(catalog, sampleResult())
	assert.Equal(t, "Analysis", n.FromStage)
	assert.Equal(t, "Closing", n.ToStage)
	assert.Equal(t, "LOI signed", n.Reason)
	assert.Equal(t, "Acme <Holdings>", n.DealName)

	r := sampleResult()
	r.PreviousStageKey = ""
	r.NewState.Name = ""
	n = NewStageChangeNotice(catalog, r)
	assert.Equal(t, "(none)", n.FromStage)
	assert.Equal(t, "d1", n.DealName)
}

type fakeMailer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeMailer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestEmailNotifier(t *testing.T) {
	mailer := &fakeMailer{}
	n := &emailNotifier{dialer: mailer, from: "pipeline@example.com", to: []string{"deals@example.com"}}
	notice := StageChangeNotice{DealName: "Acme <Holdings>", FromStage: "Analysis", ToStage: "Closing", ChangedBy: "alice", ChangedAt: testNow}

	require.NoError(t, n.NotifyStageChange(context.Background(), notice))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"Deal Acme <Holdings> moved to Closing"}, mailer.sent[0].GetHeader("Subject"))

	html := renderNoticeHTML(notice)
	assert.Contains(t, html, "Acme &lt;Holdings&gt;")
	assert.NotContains(t, html, "Reason")

	mailer.err = errors.New("dial tcp: refused")
	assert.Error(t, n.NotifyStageChange(context.Background(), notice))

	silent := &emailNotifier{dialer: mailer}
	assert.NoError(t, silent.NotifyStageChange(context.Background(), notice))
}

type fakeBot struct {
	sent []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegramNotifier(t *testing.T) {
	bot := &fakeBot{}
	n := newTelegramNotifier(bot, 4242, quietLogger())

	err := n.NotifyStageChange(context.Background(), StageChangeNotice{
		DealName: "Acme", FromStage: "Analysis", ToStage: "Closing", ChangedBy: "alice",
		Reason: "LOI signed", Overridden: true,
	})
	require.NoError(t, err)
	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(4242), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "<b>Acme</b>")
	assert.Contains(t, msg.Text, "Reason: LOI signed")

	var nilNotifier *TelegramNotifier
	assert.NoError(t, nilNotifier.NotifyStageChange(context.Background(), StageChangeNotice{}))
}

type captureNotifier struct {
	got []StageChangeNotice
	err error
}

func (c *captureNotifier) NotifyStageChange(_ context.Context, n StageChangeNotice) error {
	c.got = append(c.got, n)
	return c.err
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	ok := &captureNotifier{}
	bad := &captureNotifier{err: errors.New("smtp")}
	multi := MultiNotifier{bad, ok}

	err := multi.NotifyStageChange(context.Background(), StageChangeNotice{DealID: "d1"})
	assert.Error(t, err)
	assert.Len(t, ok.got, 1)
	assert.Len(t, bad.got, 1)
}

type fakeStream struct {
	subject string
	data    []byte
	opts    int
}

func (f *fakeStream) Publish(_ context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.subject = subject
	f.data = payload
	f.opts = len(opts)
	return &jetstream.PubAck{Stream: "PIPELINE", Sequence: 1}, nil
}

func TestEventPublisher(t *testing.T) {
	stream := &fakeStream{}
	p := newEventPublisher(stream, "")

	require.NoError(t, p.Publish(context.Background(), sampleResult()))
	assert.Equal(t, "pipeline.transitions.closing", stream.subject)
	assert.Equal(t, 1, stream.opts)

	var ev TransitionEvent
	require.NoError(t, json.Unmarshal(stream.data, &ev))
	assert.Equal(t, EventStageChanged, ev.Event)
	assert.Equal(t, "d1", ev.DealID)
	assert.Equal(t, "analysis", ev.FromStage)
	assert.Equal(t, "closing", ev.ToStage)
	assert.Equal(t, "LOI signed", ev.Reason)
	assert.Equal(t, 90, ev.Probability)
	assert.True(t, ev.ChangedAt.Equal(testNow))
}

func TestBuiltinHooks(t *testing.T) {
	catalog, err := NewStageCatalog(testStages(), nil, quietLogger())
	require.NoError(t, err)

	capture := &captureNotifier{}
	require.NoError(t, NotificationHook(catalog, capture)(context.Background(), sampleResult()))
	require.Len(t, capture.got, 1)
	assert.Equal(t, "Closing", capture.got[0].ToStage)

	stream := &fakeStream{}
	require.NoError(t, EventHook(newEventPublisher(stream, "deals"))(context.Background(), sampleResult()))
	assert.Equal(t, "deals.closing", stream.subject)

	r := sampleResult()
	r.NewState.CurrentStageKey = "gone"
	assert.ErrorIs(t, StageTaskHook(catalog, nil)(context.Background(), r), ErrStageNotFound)
}

type captureBoard struct {
	stages []string
	event  any
}

func (b *captureBoard) Broadcast(stageKeys []string, v any) error {
	b.stages, b.event = stageKeys, v
	return nil
}

func TestBoardHook(t *testing.T) {
	board := &captureBoard{}
	require.NoError(t, BoardHook(board)(context.Background(), sampleResult()))
	assert.Equal(t, []string{"closing", "analysis"}, board.stages)
	ev, ok := board.event.(TransitionEvent)
	require.True(t, ok)
	assert.Equal(t, "d1", ev.DealID)

	first := sampleResult()
	first.PreviousStageKey = ""
	require.NoError(t, BoardHook(board)(context.Background(), first))
	assert.Equal(t, []string{"closing"}, board.stages)
}
