package proto

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeOmitsEmptyOptionalFields(t *testing.T) {
	data, err := Encode(Envelope{Type: TypeTyping, From: "alice", TS: 42})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := string(data)
	if strings.Contains(got, `"to"`) || strings.Contains(got, `"text"`) {
		t.Fatalf("expected to/text omitted, got %s", got)
	}
	if got != `{"type":"typing","from":"alice","ts":42}` {
		t.Fatalf("unexpected encoding: %s", got)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Envelope
		wantErr bool
	}{
		{
			name:    "pm",
			payload: `{"type":"pm","from":"alice","to":"bob","text":"hi","ts":1700000000}`,
			want:    Envelope{Type: TypePM, From: "alice", To: "bob", Text: "hi", TS: 1700000000},
		},
		{
			name:    "unknown type is not malformed",
			payload: `{"type":"wave","from":"alice"}`,
			want:    Envelope{Type: "wave", From: "alice"},
		},
		{
			name:    "extra fields ignored",
			payload: ` {"type":"msg","text":"x","room":"general"}`,
			want:    Envelope{Type: TypeMsg, Text: "x"},
		},
		{name: "garbage", payload: "hello", wantErr: true},
		{name: "array", payload: `[1,2]`, wantErr: true},
		{name: "truncated", payload: `{"type":"msg"`, wantErr: true},
		{name: "missing type", payload: `{"from":"alice"}`, wantErr: true},
		{name: "wrong field type", payload: `{"type":"msg","ts":"yesterday"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedMessage) {
					t.Fatalf("expected ErrMalformedMessage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTypeKnown(t *testing.T) {
	for _, typ := range []Type{TypeJoin, TypeMsg, TypePM, TypeSys, TypeTyping, TypeStopTyping, TypeUsernameConfirmed} {
		if !typ.Known() {
			t.Errorf("%q should be known", typ)
		}
	}
	if Type("leave").Known() {
		t.Error("leave should not be known")
	}
}

func TestNoticesRoundTrip(t *testing.T) {
	names, ok := ParseUsersOnline(UsersOnlineText([]string{"Alice", "Bob Smith", "c-3"}))
	if !ok || len(names) != 3 || names[1] != "Bob Smith" {
		t.Fatalf("users online parse: %v %v", names, ok)
	}
	if got := UsersOnlineText([]string{"Alice", "Alice1"}); got != "Users online: Alice, Alice1" {
		t.Fatalf("unexpected list text %q", got)
	}
	if name, ok := ParseJoined(JoinedText("Alice1")); !ok || name != "Alice1" {
		t.Fatalf("joined parse: %q %v", name, ok)
	}
	if name, ok := ParseLeft(LeftText("Bob")); !ok || name != "Bob" {
		t.Fatalf("left parse: %q %v", name, ok)
	}
	if got := FirstUserText("Alice"); got != "Welcome Alice! You are the first user online." || !IsFirstUser(got) {
		t.Fatalf("unexpected first user text %q", got)
	}
	if _, ok := ParseJoined("Alice left the chat"); ok {
		t.Fatal("left notice parsed as join")
	}
}

func TestConfirmationTextDiffersOnRename(t *testing.T) {
	same := ConfirmationText("Alice", "Alice")
	renamed := ConfirmationText("Alice", "Alice1")
	if same == renamed {
		t.Fatal("confirmation texts should differ")
	}
	if !strings.Contains(renamed, "Alice1") {
		t.Fatalf("renamed text should name the assigned nickname: %q", renamed)
	}
}
