package id

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewConnID(t *testing.T) {
	a := NewConnID()
	b := NewConnID()

	if !strings.HasPrefix(a.String(), string(PrefixConn)+"_") {
		t.Fatalf("String() = %q", a.String())
	}
	if a.String() == b.String() {
		t.Fatal("ids should be unique")
	}
}

func TestNewPanicsOnInvalidPrefix(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for an invalid prefix")
		}
	}()
	New(Prefix("Not Valid"))
}

func TestZeroID(t *testing.T) {
	var zero ID
	if zero.String() != "" {
		t.Fatalf("zero String() = %q", zero.String())
	}
	raw, err := zero.MarshalText()
	if err != nil || len(raw) != 0 {
		t.Fatalf("zero MarshalText = %q, %v", raw, err)
	}
}

func TestLogsAsString(t *testing.T) {
	connID := NewConnID()

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("received connection", "conn_id", connID)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["conn_id"] != connID.String() {
		t.Fatalf("conn_id = %v, want %q", line["conn_id"], connID.String())
	}

	buf.Reset()
	slog.New(slog.NewTextHandler(&buf, nil)).Info("received connection", "conn_id", connID)
	if !strings.Contains(buf.String(), "conn_id="+connID.String()) {
		t.Fatalf("text log = %q", buf.String())
	}
}
