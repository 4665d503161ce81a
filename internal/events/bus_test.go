package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeAndDecode(t *testing.T) {
	fixedNow := time.Unix(0, 123456000).UTC()
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = prevNow }()

	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")
	env, err := NewEnvelope("ward:ICU", AlertRaisedV1{AlertID: "a-1", AlertType: "capacity_critical", Department: "ICU"}, WithEventID(id))
	require.NoError(t, err)
	assert.Equal(t, id, env.EventID)
	assert.Equal(t, fixedNow.UnixMicro(), env.TimestampMicros)
	assert.Equal(t, fixedNow, env.OccurredAt())

	decoded, err := Decode(env)
	require.NoError(t, err)
	raised, ok := decoded.(AlertRaisedV1)
	require.True(t, ok)
	assert.Equal(t, "ICU", raised.Department)

	_, err = NewEnvelope("", AlertResolvedV1{})
	assert.Error(t, err)
	_, err = NewEnvelope("x", nil)
	assert.Error(t, err)

	_, err = Decode(Envelope{EventType: "mystery.v1"})
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestBusFansOutAndIsolatesSinkFailures(t *testing.T) {
	bus := NewBus(nil)
	first := NewRecorder()
	second := NewRecorder()
	bus.Subscribe("first", first)
	bus.Subscribe("broken", SinkFunc(func(context.Context, Envelope) error { return errors.New("down") }))
	bus.Subscribe("second", second)
	bus.Subscribe("nil", nil)

	err := bus.Publish(context.Background(), "workflow:w-1", AssignmentFailedV1{WorkflowID: "w-1", Kind: "NoAvailableBed"})
	require.NoError(t, err)
	assert.Equal(t, []string{TypeAssignmentFailed}, first.Types())
	assert.Equal(t, []string{TypeAssignmentFailed}, second.Types())
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	rec := NewRecorder()
	err := MultiSink{SinkFunc(func(context.Context, Envelope) error { return boom }), rec}.Deliver(context.Background(), Envelope{EventType: TypeAlertResolved})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.Envelopes(), 1)
}

func TestRedisSinkPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "beds:test")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	env, _ := NewEnvelope("ward:ICU", AlertResolvedV1{AlertID: "a-1"})
	require.NoError(t, NewRedisSink(client, "beds:test").Deliver(ctx, env))

	select {
	case msg := <-sub.Channel():
		var got Envelope
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, env.EventID, got.EventID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected published message")
	}
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSSinkSendsEnvelope(t *testing.T) {
	fake := &fakeSQS{}
	env, _ := NewEnvelope("workflow:w-1", AssignmentCommittedV1{WorkflowID: "w-1"})
	require.NoError(t, NewSQSSink(fake, "https://sqs.local/q").Deliver(context.Background(), env))

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "https://sqs.local/q", aws.ToString(fake.inputs[0].QueueUrl))
	assert.Equal(t, TypeAssignmentCommitted, aws.ToString(fake.inputs[0].MessageAttributes["event_type"].StringValue))
	assert.Contains(t, aws.ToString(fake.inputs[0].MessageBody), "w-1")
}

type fakeS3 struct {
	keys []string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.keys = append(f.keys, aws.ToString(in.Key))
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiveStoresOnlyAssignmentOutcomes(t *testing.T) {
	fake := &fakeS3{}
	archive := NewS3Archive(fake, "outcomes")
	ts := time.Date(2026, 4, 9, 10, 0, 0, 0, time.UTC)

	committed, _ := NewEnvelope("workflow:w-1", AssignmentCommittedV1{WorkflowID: "w-1"}, WithTimestamp(ts))
	alert, _ := NewEnvelope("ward:ICU", AlertRaisedV1{AlertID: "a-1"}, WithTimestamp(ts))
	require.NoError(t, archive.Deliver(context.Background(), committed))
	require.NoError(t, archive.Deliver(context.Background(), alert))

	require.Len(t, fake.keys, 1)
	assert.Equal(t, "assignments/v1/by-date/2026/04/09/"+committed.EventID.String()+".json", fake.keys[0])

	assert.False(t, NewS3Archive(fake, "").Enabled())
	assert.NoError(t, NewS3Archive(nil, "").Deliver(context.Background(), committed))
}
