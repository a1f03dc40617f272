package intent

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeClassification(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Result
		wantErr bool
	}{
		{
			name:    "send with number amount",
			content: `{"intent":"send_funds","entities":{"amount":5,"recipient":"abc123xyz"}}`,
			want:    Result{Intent: SendFunds, Entities: Entities{Amount: 5, Recipient: "abc123xyz"}},
		},
		{
			name:    "send with string amount and comma",
			content: `{"intent":"send_funds","entities":{"amount":"2,5","recipient":"Bob"}}`,
			want:    Result{Intent: SendFunds, Entities: Entities{Amount: 2.5, Recipient: "Bob"}},
		},
		{
			name:    "fenced",
			content: "```json\n{\"intent\":\"check_balance\"}\n```",
			want:    Result{Intent: CheckBalance},
		},
		{
			name:    "entities ignored outside send",
			content: `{"intent":"help","entities":{"amount":3,"recipient":"x"}}`,
			want:    Result{Intent: Help},
		},
		{name: "not json", content: "I think you want to send money", wantErr: true},
		{name: "unknown intent", content: `{"intent":"buy_nft"}`, wantErr: true},
		{name: "missing intent", content: `{"entities":{}}`, wantErr: true},
		{name: "send missing recipient", content: `{"intent":"send_funds","entities":{"amount":5}}`, wantErr: true},
		{name: "send missing entities", content: `{"intent":"send_funds"}`, wantErr: true},
		{name: "zero amount", content: `{"intent":"send_funds","entities":{"amount":0,"recipient":"bob"}}`, wantErr: true},
		{name: "negative amount", content: `{"intent":"send_funds","entities":{"amount":-1,"recipient":"bob"}}`, wantErr: true},
		{name: "amount with unit", content: `{"intent":"send_funds","entities":{"amount":"5 ada","recipient":"bob"}}`, wantErr: true},
		{name: "recipient with spaces", content: `{"intent":"send_funds","entities":{"amount":1,"recipient":"bob smith"}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeClassification(tt.content)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedOutput) {
					t.Fatalf("err = %v, want ErrMalformedOutput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStripFence(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{}\n```  ", `{}`},
		{"```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFence(tt.in); got != tt.want {
			t.Errorf("stripFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
