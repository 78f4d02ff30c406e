package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/harvester/internal/domain"
)

func TestEventRoutingKey(t *testing.T) {
	assert.Equal(t, RoutingKey("step.fetch.progress"), EventRoutingKey("fetch", domain.NotifyProgress))
	assert.Equal(t, RoutingKey("step.a_b.status"), EventRoutingKey("a.b", domain.NotifyStatus))
}

// roundTrip повторяет путь сообщения через брокер.
func roundTrip(t *testing.T, msg *Message) *Message {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var out Message
	require.NoError(t, json.Unmarshal(body, &out))
	return &out
}

func TestParsePayload_StepState(t *testing.T) {
	msg := roundTrip(t, NewMessage(MessageTypeStepState, StepStatePayload{Step: "s", State: domain.StepPaused}))

	assert.Equal(t, MessageTypeStepState, msg.Type)
	payload, err := ParsePayload[StepStatePayload](msg)
	require.NoError(t, err)
	assert.Equal(t, "s", payload.Step)
	assert.Equal(t, domain.StepPaused, payload.State)
}

func TestParsePayload_Setting(t *testing.T) {
	setting := domain.Setting{
		Env: map[string]string{"A": "1"},
		Steps: map[string]domain.Step{
			"s": {
				Name:             "s",
				TaskIters:        []domain.GeneratorSpec{domain.NewRange("i", "0", "2")},
				Job:              domain.JobSpec{Kind: domain.JobShell, Shell: &domain.ShellJobSpec{Shell: "sh"}},
				ConcurrencyLimit: 1,
			},
		},
	}
	msg := roundTrip(t, NewMessage(MessageTypeSettingLoad, SettingLoadPayload{Setting: setting}))

	payload, err := ParsePayload[SettingLoadPayload](msg)
	require.NoError(t, err)
	assert.Equal(t, "1", payload.Setting.Env["A"])
	require.Contains(t, payload.Setting.Steps, "s")
	assert.Equal(t, domain.GeneratorRange, payload.Setting.Steps["s"].TaskIters[0].Kind)
}

func TestParsePayload_InvalidIsPermanent(t *testing.T) {
	msg := &Message{Type: MessageTypeStepState, Payload: map[string]any{"step": "s", "state": "sideways"}}

	_, err := ParsePayload[StepStatePayload](msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	base := errors.New("unknown step")
	err := Permanent(base)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.ErrorIs(t, err, base)
}

type fakeEventPublisher struct {
	events []domain.Notification
	err    error
}

func (f *fakeEventPublisher) PublishEvent(ctx context.Context, n domain.Notification) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	f.events = append(f.events, n)
	return f.err
}

func TestEventNotifier(t *testing.T) {
	pub := &fakeEventPublisher{}
	n := newEventNotifier(pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// публикация идёт и после отмены контекста шага
	n.Notify(ctx, domain.EndNotification("s", uuid.New()))
	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.StatusEnd, pub.events[0].Status)

	pub.err = ErrNoChannel
	n.Notify(context.Background(), domain.StartNotification("s", uuid.New()))
	assert.Len(t, pub.events, 2)
}

func TestDecide(t *testing.T) {
	transient := errors.New("database down")

	tests := []struct {
		name        string
		err         error
		redelivered bool
		want        Disposition
	}{
		{"ok", nil, false, DispositionAck},
		{"ok redelivered", nil, true, DispositionAck},
		{"transient first", transient, false, DispositionRequeue},
		{"transient again", transient, true, DispositionDeadLetter},
		{"permanent", Permanent(transient), false, DispositionDeadLetter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.err, tt.redelivered))
		})
	}
}

func TestDefaultTopology_String(t *testing.T) {
	out := DefaultTopology().String()

	assert.Contains(t, out, "harvester.commands (direct)\n  -> harvester.commands [routing: command]\n")
	assert.Contains(t, out, "harvester.events (topic)\n  -> step.<step>.<status|progress|error>\n")
	assert.Contains(t, out, "-> harvester.dlq.commands [routing: commands]")
}
