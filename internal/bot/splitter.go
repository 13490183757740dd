package bot

import (
	"encoding/json"
	"log"
	"strings"
)

// Intake flow action types emitted by the model inside the fenced block.
const (
	ActionSDRCompleted     = "sdr_completed"
	ActionSupportEscalated = "support_escalated"
)

// Canned replies (the bot speaks Portuguese).
const (
	ApologyReply = "Desculpe, estou com dificuldades técnicas no momento. Por favor, tente novamente mais tarde."

	leadFollowUp    = "Obrigado! Registrei suas informações e nosso time comercial entrará em contato em breve."
	ticketFollowUp  = "Obrigado! Seu chamado foi registrado e nosso time de suporte entrará em contato em breve."
	genericFollowUp = "Obrigado! Suas informações foram registradas com sucesso."
)

const (
	openFence  = "```json"
	closeFence = "```"
)

// ExtractedRecord is the structured payload parsed out of a fenced block.
type ExtractedRecord struct {
	Action string
	Fields map[string]string
}

// SplitReply separates the human-facing text from an embedded ```json block.
//
// No opening fence, or an opening fence with no closing fence: the raw text
// is the reply and there is no record. A well-formed block yields the
// pre-fence prefix (or a canned follow-up by action when the prefix is
// empty). A malformed block is discarded and the prefix is used so the caller
// never sees raw fence markers.
func SplitReply(raw string) (string, *ExtractedRecord) {
	start := strings.Index(raw, openFence)
	if start < 0 {
		return raw, nil
	}
	rest := raw[start+len(openFence):]
	end := strings.Index(rest, closeFence)
	if end < 0 {
		return raw, nil
	}

	payload := strings.TrimSpace(rest[:end])
	prefix := strings.TrimSpace(raw[:start])

	rec, err := parseRecord(payload)
	if err != nil {
		log.Printf("[splitter] discarding malformed fenced payload: %v", err)
		if prefix == "" {
			return genericFollowUp, nil
		}
		return prefix, nil
	}

	if prefix == "" {
		return followUpFor(rec.Action), rec
	}
	return prefix, rec
}

func followUpFor(action string) string {
	switch action {
	case ActionSDRCompleted:
		return leadFollowUp
	case ActionSupportEscalated:
		return ticketFollowUp
	default:
		return genericFollowUp
	}
}

// parseRecord decodes the fenced payload best-effort: an action plus
// whichever of lead_info / ticket_info is present. Unknown or missing keys
// pass through; no schema validation.
func parseRecord(payload string) (*ExtractedRecord, error) {
	var envelope struct {
		Action     string                     `json:"action"`
		LeadInfo   map[string]json.RawMessage `json:"lead_info"`
		TicketInfo map[string]json.RawMessage `json:"ticket_info"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return nil, err
	}

	fields := make(map[string]string)
	for _, info := range []map[string]json.RawMessage{envelope.LeadInfo, envelope.TicketInfo} {
		for k, v := range info {
			fields[k] = stringify(v)
		}
	}
	return &ExtractedRecord{Action: envelope.Action, Fields: fields}, nil
}

// stringify keeps string values verbatim; anything else (numbers, booleans)
// is carried as its JSON text.
func stringify(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
