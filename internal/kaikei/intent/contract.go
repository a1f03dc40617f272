package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// classificationSchema is the contract every classifier answer must meet.
// A send_funds answer without both entities is malformed, so the pipeline
// falls through to the pattern tier instead of staging half a transfer.
const classificationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["intent"],
  "properties": {
    "intent": {"enum": ["send_funds", "check_balance", "help", "unknown"]},
    "entities": {
      "type": "object",
      "properties": {
        "amount": {
          "anyOf": [
            {"type": "number", "exclusiveMinimum": 0},
            {"type": "string", "pattern": "^[0-9]+([.,][0-9]+)?$"}
          ]
        },
        "recipient": {"type": "string", "pattern": "^[A-Za-z0-9_]+$"}
      }
    }
  },
  "if": {"properties": {"intent": {"const": "send_funds"}}},
  "then": {
    "required": ["entities"],
    "properties": {"entities": {"required": ["amount", "recipient"]}}
  }
}`

var contract = jsonschema.MustCompileString("kaikei://classification.json", classificationSchema)

// systemPrompt is shared by every model-backed classifier.
const systemPrompt = `You classify chat messages sent to a Cardano wallet assistant.
Users write in German or English, often transcribed from speech.

Intents:
- send_funds: the user wants to send ADA to a recipient
- check_balance: the user asks how much ADA they hold
- help: the user asks what the assistant can do
- unknown: anything else

Respond ONLY with a JSON object, no markdown:
{"intent": "<intent>", "entities": {"amount": <ADA as a number>, "recipient": "<recipient>"}}

Rules:
1. entities.amount and entities.recipient are required for send_funds. Omit entities for other intents.
2. Copy the recipient exactly as written, preserving case. Never invent, shorten or complete it.
3. If the amount or the recipient of a transfer is missing or ambiguous, answer "unknown".`

type wireClassification struct {
	Intent   string         `json:"intent"`
	Entities map[string]any `json:"entities"`
}

// decodeClassification parses a model answer, tolerating a surrounding
// markdown code fence, and checks it against the contract.
func decodeClassification(content string) (Result, error) {
	raw := []byte(stripFence(content))

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v (raw content: %.200s)", ErrMalformedOutput, err, content)
	}
	if err := contract.Validate(doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	var wire wireClassification
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	in, err := ParseIntent(wire.Intent)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	res := Result{Intent: in}
	if in != SendFunds {
		return res, nil
	}

	switch v := wire.Entities["amount"].(type) {
	case float64:
		res.Entities.Amount = v
	case string:
		res.Entities.Amount, _ = strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
	}
	if s, ok := wire.Entities["recipient"].(string); ok {
		res.Entities.Recipient = s
	}
	return res, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string ("json").
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
