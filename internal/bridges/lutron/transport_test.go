package lutron

import (
	"errors"
	"strings"
	"testing"
)

func TestJSONFramer(t *testing.T) {
	tests := []struct {
		name         string
		chunks       []string
		wantRecords  []string
		wantErr      bool
		wantBuffered bool
	}{
		{
			name:        "single record",
			chunks:      []string{`{"a":1}` + "\r\n"},
			wantRecords: []string{`{"a":1}`},
		},
		{
			name:        "split across reads",
			chunks:      []string{`{"Header":{"Url":"/dev`, `ice"}}`},
			wantRecords: []string{`{"Header":{"Url":"/device"}}`},
		},
		{
			name:        "several in one read",
			chunks:      []string{`{"a":1}` + "\n" + `{"b":2}{"c":3}`},
			wantRecords: []string{`{"a":1}`, `{"b":2}`, `{"c":3}`},
		},
		{
			name:         "trailing partial held",
			chunks:       []string{`{"a":1}` + "\n" + `{"b":`},
			wantRecords:  []string{`{"a":1}`},
			wantBuffered: true,
		},
		{
			name:    "garbage is a protocol error",
			chunks:  []string{`}{not json`},
			wantErr: true,
		},
		{
			name:        "good record before garbage survives",
			chunks:      []string{`{"a":1}]`},
			wantRecords: []string{`{"a":1}`},
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f jsonFramer
			var got []string
			var gotErr error
			for _, c := range tt.chunks {
				recs, err := f.Feed([]byte(c))
				for _, r := range recs {
					got = append(got, string(r))
				}
				if err != nil {
					gotErr = err
				}
			}
			if (gotErr != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", gotErr, tt.wantErr)
			}
			if gotErr != nil && !errors.Is(gotErr, ErrProtocol) {
				t.Errorf("error = %v, want ErrProtocol", gotErr)
			}
			if strings.Join(got, "|") != strings.Join(tt.wantRecords, "|") {
				t.Errorf("records = %v, want %v", got, tt.wantRecords)
			}
			if (f.Buffered() > 0) != tt.wantBuffered {
				t.Errorf("Buffered() = %d, wantBuffered %v", f.Buffered(), tt.wantBuffered)
			}
		})
	}
}

func TestJSONFramer_RecoversAfterError(t *testing.T) {
	var f jsonFramer
	if _, err := f.Feed([]byte(`]]`)); err == nil {
		t.Fatal("expected protocol error")
	}
	recs, err := f.Feed([]byte(`{"ok":true}`))
	if err != nil || len(recs) != 1 {
		t.Errorf("Feed() = %d records, %v", len(recs), err)
	}
}

func kinds(items []lipItem) []lipItemKind {
	out := make([]lipItemKind, 0, len(items))
	for _, it := range items {
		out = append(out, it.kind)
	}
	return out
}

func TestLIPScanner(t *testing.T) {
	var s lipScanner

	// login prompt without newline is answered immediately
	items := s.Feed("\r\nlogin: ")
	if got := kinds(items); len(got) != 1 || got[0] != lipItemLogin {
		t.Fatalf("login items = %v", items)
	}

	items = s.Feed("password: ")
	if got := kinds(items); len(got) != 1 || got[0] != lipItemPassword {
		t.Fatalf("password items = %v", items)
	}

	// first prompt establishes the session
	items = s.Feed("\r\nGNET> ")
	if got := kinds(items); len(got) != 1 || got[0] != lipItemSession {
		t.Fatalf("session items = %v", items)
	}

	// a later bare prompt is a keepalive, never a line
	items = s.Feed("GNET> ")
	if got := kinds(items); len(got) != 1 || got[0] != lipItemKeepalive {
		t.Fatalf("keepalive items = %v", items)
	}

	// a burst with an embedded prompt keeps line order
	items = s.Feed("~OUTPUT,5,1,50.00\r\nGNET> ~DEVICE,9,2,3\r\n~DEVICE,9,2,4\r\n")
	want := []lipItem{
		{kind: lipItemKeepalive},
		{kind: lipItemLine, text: "~OUTPUT,5,1,50.00"},
		{kind: lipItemLine, text: "~DEVICE,9,2,3"},
		{kind: lipItemLine, text: "~DEVICE,9,2,4"},
	}
	if len(items) != len(want) {
		t.Fatalf("burst items = %+v, want %+v", items, want)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("item %d = %+v, want %+v", i, items[i], want[i])
		}
	}
}

func TestLIPScanner_PartialLine(t *testing.T) {
	var s lipScanner
	s.Feed("QNET> ")

	items := s.Feed("~OUTPUT,7,1,")
	if len(items) != 0 {
		t.Fatalf("partial produced items %+v", items)
	}
	items = s.Feed("20.00\r\n")
	if len(items) != 1 || items[0].text != "~OUTPUT,7,1,20.00" {
		t.Errorf("joined items = %+v", items)
	}
}

func TestLIPScanner_QNETPrompt(t *testing.T) {
	var s lipScanner
	items := s.Feed("QNET> ")
	if got := kinds(items); len(got) != 1 || got[0] != lipItemSession {
		t.Errorf("items = %v, want session", items)
	}
}
