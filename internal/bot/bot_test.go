package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artorias-backend/internal/store"
)

type scriptedClient struct {
	replies []string
	err     error
	calls   [][]openai.ChatCompletionMessage
}

func (c *scriptedClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.calls = append(c.calls, req.Messages)
	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}
	reply := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply}},
		},
	}, nil
}

type capturingSink struct {
	userID string
	action string
	fields map[string]string
	err    error
}

func (s *capturingSink) Save(userID, action string, fields map[string]string) error {
	s.userID = userID
	s.action = action
	s.fields = fields
	return s.err
}

func testPrompt() PromptSpec {
	var p PromptSpec
	p.System = "instrução"
	p.Acknowledgement = "entendido"
	return p
}

func newTestBot(client CompletionClient, sink RecordSink) (*Bot, *store.MemoryStore) {
	ms := store.NewMemoryStore(40, time.Hour)
	gw := NewGateway(client, "gpt-4o-mini", 0.8, 300, time.Second)
	return New(testPrompt(), gw, ms, sink), ms
}

func TestProcessSeedsTranscriptOnFirstContact(t *testing.T) {
	client := &scriptedClient{replies: []string{"Olá, Ana!"}}
	b, ms := newTestBot(client, nil)

	reply, rec, err := b.Process(context.Background(), "u1", "oi, sou a Ana")

	require.NoError(t, err)
	assert.Equal(t, "Olá, Ana!", reply)
	assert.Nil(t, rec)

	tr := ms.Get("u1")
	require.Len(t, tr.Turns, 4)
	assert.Equal(t, "instrução", tr.Turns[0].Text)
	assert.Equal(t, store.RoleUser, tr.Turns[0].Role)
	assert.Equal(t, "entendido", tr.Turns[1].Text)
	assert.Equal(t, store.RoleModel, tr.Turns[1].Role)
	assert.Equal(t, "oi, sou a Ana", tr.Turns[2].Text)
	assert.Equal(t, "Olá, Ana!", tr.Turns[3].Text)
}

func TestProcessDoesNotReplayInstructionOnLaterTurns(t *testing.T) {
	client := &scriptedClient{replies: []string{"primeira", "segunda"}}
	b, ms := newTestBot(client, nil)

	_, _, err := b.Process(context.Background(), "u1", "oi")
	require.NoError(t, err)
	_, _, err = b.Process(context.Background(), "u1", "e agora?")
	require.NoError(t, err)

	require.Len(t, client.calls, 2)
	// Second request replays stored history (instruction, ack, q, a) + new message.
	second := client.calls[1]
	require.Len(t, second, 5)
	assert.Equal(t, "instrução", second[0].Content)
	count := 0
	for _, m := range second {
		if m.Content == "instrução" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	assert.Len(t, ms.Get("u1").Turns, 6)
}

func TestProcessRecordsFinalizedReplyNotRawText(t *testing.T) {
	raw := "Obrigado, Ana!\n```json\n{\"action\":\"sdr_completed\",\"lead_info\":{\"name\":\"Ana\"}}\n```"
	client := &scriptedClient{replies: []string{raw}}
	sink := &capturingSink{}
	b, ms := newTestBot(client, sink)

	reply, rec, err := b.Process(context.Background(), "u1", "meu email é ana@acme.com")

	require.NoError(t, err)
	assert.Equal(t, "Obrigado, Ana!", reply)
	require.NotNil(t, rec)

	tr := ms.Get("u1")
	require.Len(t, tr.Turns, 4)
	assert.Equal(t, "Obrigado, Ana!", tr.Turns[3].Text)
	assert.Equal(t, ActionSDRCompleted, tr.State)

	assert.Equal(t, "u1", sink.userID)
	assert.Equal(t, ActionSDRCompleted, sink.action)
	assert.Equal(t, "Ana", sink.fields["name"])
}

func TestProcessSwallowsSinkFailure(t *testing.T) {
	raw := "```json\n{\"action\":\"support_escalated\",\"ticket_info\":{\"problem\":\"x\"}}\n```"
	client := &scriptedClient{replies: []string{raw}}
	sink := &capturingSink{err: errors.New("db down")}
	b, ms := newTestBot(client, sink)

	reply, rec, err := b.Process(context.Background(), "u1", "não consigo logar")

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotEmpty(t, reply)
	assert.Len(t, ms.Get("u1").Turns, 4)
}

func TestProcessCompletionFailureLeavesTranscriptUntouched(t *testing.T) {
	client := &scriptedClient{err: errors.New("connection refused")}
	b, ms := newTestBot(client, nil)

	_, _, err := b.Process(context.Background(), "u1", "oi")

	assert.ErrorIs(t, err, ErrCompletionFailure)
	assert.Empty(t, ms.Get("u1").Turns)
}

func TestProcessConcurrentSameUser(t *testing.T) {
	client := &scriptedClient{replies: []string{"r"}}
	b, ms := newTestBot(client, nil)

	done := make(chan struct{})
	go func() {
		_, _, _ = b.Process(context.Background(), "u1", "a")
		close(done)
	}()
	_, _, err := b.Process(context.Background(), "u1", "b")
	require.NoError(t, err)
	<-done

	// Both requests landed: seed pair + two user/model pairs.
	assert.Len(t, ms.Get("u1").Turns, 6)
}
