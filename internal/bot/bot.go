package bot

import (
	"context"
	"log"

	"artorias-backend/internal/store"
)

// RecordSink receives extracted intake records for durable storage. A failed
// save is logged and swallowed; it never fails the user-facing request.
type RecordSink interface {
	Save(userID, action string, fields map[string]string) error
}

// Bot glues the pipeline together: assemble prompt from the transcript, call
// the completion service, split the reply, record the turn pair and hand any
// extracted record to the sink.
type Bot struct {
	prompt  PromptSpec
	gateway *Gateway
	store   *store.MemoryStore
	records RecordSink // nil when persistence is disabled
}

func New(prompt PromptSpec, gateway *Gateway, st *store.MemoryStore, records RecordSink) *Bot {
	return &Bot{prompt: prompt, gateway: gateway, store: st, records: records}
}

// Process runs one exchange for the user and returns the human-facing reply.
// Requests for the same user are strictly serialized; a failed completion
// leaves the transcript untouched.
func (b *Bot) Process(ctx context.Context, userID, message string) (string, *ExtractedRecord, error) {
	unlock := b.store.LockUser(userID)
	defer unlock()

	tr := b.store.Get(userID)
	seeded := len(tr.Turns) == 0
	messages := b.prompt.Assemble(tr, message)

	raw, err := b.gateway.Complete(ctx, messages)
	if err != nil {
		return "", nil, err
	}
	reply, rec := SplitReply(raw)

	var turns []store.Turn
	if seeded {
		turns = b.prompt.SeedTurns()
	}
	turns = append(turns,
		store.Turn{Role: store.RoleUser, Text: message},
		store.Turn{Role: store.RoleModel, Text: reply},
	)
	b.store.AppendTurns(userID, turns...)

	if rec != nil && rec.Action != "" {
		b.store.SetState(userID, rec.Action)
		if b.records != nil {
			if err := b.records.Save(userID, rec.Action, rec.Fields); err != nil {
				log.Printf("[records] failed to persist %s record for %s: %v", rec.Action, userID, err)
			}
		}
	}
	return reply, rec, nil
}
