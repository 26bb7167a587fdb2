package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ephemeral/relay/event"
	"github.com/ephemeral/relay/internal/eventtest"
)

var testDecoder = NewDecoder(nil)

func eventJSON(t *testing.T, evt *event.Event) string {
	t.Helper()
	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func TestDecodeEvent(t *testing.T) {
	evt := eventtest.New('a', 1, 1700000000, "hi", event.Tag{"e", "x"})
	req, err := testDecoder.Decode([]byte(`["EVENT",` + eventJSON(t, evt) + `]`))
	if err != nil {
		t.Fatal(err)
	}

	er, ok := req.(*EventRequest)
	if !ok {
		t.Fatalf("got %T, want *EventRequest", req)
	}
	if er.Event.ID != evt.ID || er.Event.Content != "hi" || er.Event.Tags[0][1] != "x" {
		t.Fatalf("decoded event = %+v", er.Event)
	}
	if er.Verb() != VerbEvent {
		t.Fatalf("verb = %s", er.Verb())
	}
}

func TestDecodeEventErrors(t *testing.T) {
	good := eventtest.New('a', 1, 100, "")

	t.Run("invalid event with id", func(t *testing.T) {
		bad := good.Clone()
		bad.Sig = "nothex"
		_, err := testDecoder.Decode([]byte(`["EVENT",` + eventJSON(t, bad) + `]`))

		var evtErr *EventError
		if !errors.As(err, &evtErr) {
			t.Fatalf("expected *EventError, got %v", err)
		}
		if evtErr.ID != good.ID {
			t.Fatalf("id = %q, want %q", evtErr.ID, good.ID)
		}
		if !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("expected ErrInvalidEvent, got %v", err)
		}
	})

	t.Run("invalid event without id", func(t *testing.T) {
		_, err := testDecoder.Decode([]byte(`["EVENT",{"content":"x"}]`))
		var evtErr *EventError
		if !errors.As(err, &evtErr) {
			t.Fatalf("expected *EventError, got %v", err)
		}
		if evtErr.ID != "" {
			t.Fatalf("id = %q, want empty", evtErr.ID)
		}
	})

	t.Run("created_at overflows int64", func(t *testing.T) {
		raw := strings.Replace(eventJSON(t, good), `"created_at":100`, `"created_at":1e30`, 1)
		_, err := testDecoder.Decode([]byte(`["EVENT",` + raw + `]`))

		var evtErr *EventError
		if !errors.As(err, &evtErr) {
			t.Fatalf("expected *EventError, got %v", err)
		}
		if evtErr.ID != good.ID {
			t.Fatalf("id = %q, want %q", evtErr.ID, good.ID)
		}
		if !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("expected ErrInvalidEvent, got %v", err)
		}
	})

	t.Run("extra element", func(t *testing.T) {
		_, err := testDecoder.Decode([]byte(`["EVENT",` + eventJSON(t, good) + `,1]`))
		if !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("expected ErrInvalidEvent, got %v", err)
		}
	})

	t.Run("event not an object", func(t *testing.T) {
		_, err := testDecoder.Decode([]byte(`["EVENT","nope"]`))
		if !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("expected ErrInvalidEvent, got %v", err)
		}
	})
}

func TestDecodeReq(t *testing.T) {
	req, err := testDecoder.Decode([]byte(`["REQ","sub1",{"kinds":[1],"#e":["x"]},{"authors":["ab"],"limit":10}]`))
	if err != nil {
		t.Fatal(err)
	}

	rr, ok := req.(*ReqRequest)
	if !ok {
		t.Fatalf("got %T, want *ReqRequest", req)
	}
	if rr.SubID != "sub1" {
		t.Fatalf("sub id = %q", rr.SubID)
	}
	if len(rr.Filters) != 2 {
		t.Fatalf("filters = %d, want 2", len(rr.Filters))
	}
	if rr.Filters[0].Tags["e"][0] != "x" || *rr.Filters[1].Limit != 10 {
		t.Fatalf("filters = %v", rr.Filters)
	}
}

func TestDecodeReqWithoutFilters(t *testing.T) {
	req, err := testDecoder.Decode([]byte(`["REQ","sub1"]`))
	if err != nil {
		t.Fatal(err)
	}
	rr := req.(*ReqRequest)
	if rr.Filters == nil || len(rr.Filters) != 0 {
		t.Fatalf("filters = %v, want empty set", rr.Filters)
	}
}

func TestDecodeReqNullFieldIsAbsent(t *testing.T) {
	req, err := testDecoder.Decode([]byte(`["REQ","sub1",{"kinds":null,"limit":null}]`))
	if err != nil {
		t.Fatal(err)
	}
	f := req.(*ReqRequest).Filters[0]
	if f.Kinds != nil || f.Limit != nil {
		t.Fatalf("null fields decoded as present: %v", f)
	}
}

func TestDecodeClose(t *testing.T) {
	req, err := testDecoder.Decode([]byte(`["CLOSE","sub1"]`))
	if err != nil {
		t.Fatal(err)
	}
	cr, ok := req.(*CloseRequest)
	if !ok || cr.SubID != "sub1" {
		t.Fatalf("got %#v", req)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `not json`, ErrUndecodable},
		{"empty", ``, ErrUndecodable},
		{"trailing data", `["CLOSE","a"] []`, ErrUndecodable},
		{"object", `{"verb":"REQ"}`, ErrInvalidFrame},
		{"empty array", `[]`, ErrInvalidFrame},
		{"verb not a string", `[1,"a"]`, ErrInvalidFrame},
		{"unknown verb", `["AUTH","x"]`, ErrUnknownVerb},
		{"outbound verb", `["OK","x",true,""]`, ErrUnknownVerb},
		{"lowercase verb", `["req","a"]`, ErrUnknownVerb},
		{"req without sub id", `["REQ"]`, ErrInvalidFrame},
		{"req empty sub id", `["REQ","",{}]`, ErrInvalidFrame},
		{"req long sub id", `["REQ","` + strings.Repeat("x", 65) + `",{}]`, ErrInvalidFrame},
		{"req sub id not a string", `["REQ",7,{}]`, ErrInvalidFrame},
		{"req filter not an object", `["REQ","a",[]]`, ErrInvalidFrame},
		{"req negative limit", `["REQ","a",{"limit":-1}]`, ErrInvalidFrame},
		{"req bad kinds", `["REQ","a",{"kinds":["1"]}]`, ErrInvalidFrame},
		{"req non-hex id prefix", `["REQ","a",{"ids":["xyz"]}]`, ErrInvalidFrame},
		{"close extra", `["CLOSE","a","b"]`, ErrInvalidFrame},
		{"close missing id", `["CLOSE"]`, ErrInvalidFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := testDecoder.Decode([]byte(tt.raw))
			if req != nil {
				t.Fatalf("expected no request, got %#v", req)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode(%s) error = %v, want %v", tt.raw, err, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	evt := eventtest.New('a', 1, 100, "x")

	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"ok accepted", OK{EventID: "abc", Accepted: true}, `["OK","abc",true,""]`},
		{"ok rejected", OK{EventID: "abc", Message: PrefixInvalid + "bad"}, `["OK","abc",false,"invalid: bad"]`},
		{"eose", EOSE{SubID: "s"}, `["EOSE","s"]`},
		{"notice", Notice{Message: "unable to parse message"}, `["NOTICE","","unable to parse message"]`},
		{"event", EventMessage{SubID: "s", Event: evt}, `["EVENT","s",` + eventJSON(t, evt) + `]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(tt.msg)
			if err != nil {
				t.Fatal(err)
			}
			if string(raw) != tt.want {
				t.Fatalf("Encode = %s, want %s", raw, tt.want)
			}
		})
	}
}

func TestParseVerb(t *testing.T) {
	for _, v := range []Verb{VerbEvent, VerbReq, VerbClose} {
		got, err := ParseVerb(string(v))
		if err != nil || got != v {
			t.Fatalf("ParseVerb(%s) = %s, %v", v, got, err)
		}
	}
	for _, v := range []Verb{VerbOK, VerbEOSE, VerbNotice} {
		if _, err := ParseVerb(string(v)); !errors.Is(err, ErrUnknownVerb) {
			t.Fatalf("ParseVerb(%s) should fail, got %v", v, err)
		}
	}
}

func TestValidator(t *testing.T) {
	v := MustValidator()

	if err := v.validate(schemaFilter, map[string]any{"kinds": []any{json.Number("1")}}); err != nil {
		t.Fatalf("valid filter rejected: %v", err)
	}
	if err := v.validate(schemaFilter, map[string]any{"since": "x"}); err == nil {
		t.Fatal("invalid filter accepted")
	}
	if err := v.validate(schemaEventDoc, map[string]any{"id": "x"}); err == nil {
		t.Fatal("invalid event accepted")
	}
}

func TestSummarizeTruncates(t *testing.T) {
	long := errors.New("first line\n- " + strings.Repeat("y", 500))
	got := summarize(long)
	if len(got) != 200 || strings.HasPrefix(got, "-") {
		t.Fatalf("summarize = %q (%d chars)", got, len(got))
	}
}
