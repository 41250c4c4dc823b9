package at_test

import (
	"errors"
	"strings"
	"testing"

	"i4.energy/across/mbmril/at"
)

func TestTokenizerFieldsRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		fields []string
	}{
		{
			name:   "Bare fields",
			line:   "0,1,2",
			fields: []string{"0", "1", "2"},
		},
		{
			name:   "Quoted operator",
			line:   `0,0,"Telia",2`,
			fields: []string{"0", "0", "Telia", "2"},
		},
		{
			name:   "Escaped quote inside quoted field",
			line:   `"a\"b",x`,
			fields: []string{`a"b`, "x"},
		},
		{
			name:   "Escaped backslash",
			line:   `"c:\\dir",1`,
			fields: []string{`c:\dir`, "1"},
		},
		{
			name:   "Empty field in the middle",
			line:   "1,,3",
			fields: []string{"1", "", "3"},
		},
		{
			name:   "Empty last field",
			line:   "1,2,",
			fields: []string{"1", "2", ""},
		},
		{
			name:   "Empty quoted field",
			line:   `"",5`,
			fields: []string{"", "5"},
		},
		{
			name:   "Mixed with empty first field",
			line:   `,"q,uoted",bare`,
			fields: []string{"", "q,uoted", "bare"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := at.NewTokenizer("X: " + tt.line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for i, want := range tt.fields {
				if !tok.HasMore() {
					t.Fatalf("HasMore() = false before field %d", i)
				}
				got, err := tok.NextString()
				if err != nil {
					t.Fatalf("field %d: unexpected error: %v", i, err)
				}
				if got != want {
					t.Errorf("field %d: expected %q, got %q", i, want, got)
				}
			}

			if tok.HasMore() {
				t.Errorf("HasMore() = true after %d fields", len(tt.fields))
			}
			if _, err := tok.NextString(); !errors.Is(err, at.ErrNoToken) {
				t.Errorf("expected ErrNoToken, got: %v", err)
			}
		})
	}
}

func TestTokenizerQuotedCursor(t *testing.T) {
	tok, err := at.NewTokenizer(`+X: "\"a\\\"b\"" ignored,7`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := tok.NextString()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `"a\"b"` {
		t.Errorf("expected %q, got %q", `"a\"b"`, got)
	}

	// The cursor skips anything between the closing quote and the comma.
	n, err := tok.NextInt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7, got %d", n)
	}
}

func TestTokenizerEscapedQuoteValue(t *testing.T) {
	tok, err := at.NewTokenizer(`+X: "a\"b"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := tok.NextString()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `a"b` {
		t.Errorf("expected %q, got %q", `a"b`, got)
	}
	if tok.HasMore() {
		t.Error("expected cursor at end of line")
	}
}

func TestNewTokenizerNoPrefix(t *testing.T) {
	if _, err := at.NewTokenizer("123456789012345"); !errors.Is(err, at.ErrNoPrefix) {
		t.Errorf("expected ErrNoPrefix, got: %v", err)
	}
}

func TestTokenizerTypedFields(t *testing.T) {
	t.Run("Signal quality", func(t *testing.T) {
		tok, _ := at.NewTokenizer("+CSQ: 15,99")
		rssi, err := tok.NextInt()
		if err != nil || rssi != 15 {
			t.Errorf("expected 15, got %d (%v)", rssi, err)
		}
		ber, err := tok.NextInt()
		if err != nil || ber != 99 {
			t.Errorf("expected 99, got %d (%v)", ber, err)
		}
	})

	t.Run("Negative integer", func(t *testing.T) {
		tok, _ := at.NewTokenizer("+X: -3")
		v, err := tok.NextInt()
		if err != nil || v != -3 {
			t.Errorf("expected -3, got %d (%v)", v, err)
		}
	})

	t.Run("Registration with hex location", func(t *testing.T) {
		tok, _ := at.NewTokenizer(`+CREG: 2,1,"00C3","0000F6B1"`)
		for range 2 {
			if _, err := tok.NextInt(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		lac, err := tok.NextHexInt()
		if err != nil || lac != 0xC3 {
			t.Errorf("expected 0xC3, got %#x (%v)", lac, err)
		}
		cid, err := tok.NextHexInt()
		if err != nil || cid != 0xF6B1 {
			t.Errorf("expected 0xF6B1, got %#x (%v)", cid, err)
		}
	})

	t.Run("Boolean", func(t *testing.T) {
		tok, _ := at.NewTokenizer("+X: 1,0,2")
		if v, err := tok.NextBool(); err != nil || !v {
			t.Errorf("expected true, got %v (%v)", v, err)
		}
		if v, err := tok.NextBool(); err != nil || v {
			t.Errorf("expected false, got %v (%v)", v, err)
		}
		if _, err := tok.NextBool(); !errors.Is(err, at.ErrBadBool) {
			t.Errorf("expected ErrBadBool, got: %v", err)
		}
	})

	t.Run("Non numeric integer", func(t *testing.T) {
		tok, _ := at.NewTokenizer("+CPIN: READY")
		if _, err := tok.NextInt(); !errors.Is(err, at.ErrBadInt) {
			t.Errorf("expected ErrBadInt, got: %v", err)
		}
	})

	t.Run("Out of range integer", func(t *testing.T) {
		tok, _ := at.NewTokenizer("+X: 99999999999999999999,-99999999999999999999,9223372036854775807")
		if _, err := tok.NextInt(); !errors.Is(err, at.ErrBadInt) {
			t.Errorf("expected ErrBadInt, got: %v", err)
		}
		if _, err := tok.NextInt(); !errors.Is(err, at.ErrBadInt) {
			t.Errorf("expected ErrBadInt for the negative overflow, got: %v", err)
		}
		if v, err := tok.NextInt(); err != nil || int64(v) != 9223372036854775807 {
			t.Errorf("expected the largest value to parse, got %d (%v)", v, err)
		}
	})

	t.Run("Out of range hex", func(t *testing.T) {
		tok, _ := at.NewTokenizer(`+X: "1FFFFFFFFFFFFFFFF"`)
		if _, err := tok.NextHexInt(); !errors.Is(err, at.ErrBadInt) {
			t.Errorf("expected ErrBadInt, got: %v", err)
		}
	})

	t.Run("Negative hex rejected", func(t *testing.T) {
		tok, _ := at.NewTokenizer("+X: -1")
		if _, err := tok.NextHexInt(); !errors.Is(err, at.ErrBadInt) {
			t.Errorf("expected ErrBadInt, got: %v", err)
		}
	})

	t.Run("Unterminated quote", func(t *testing.T) {
		tok, _ := at.NewTokenizer(`+X: "open`)
		if _, err := tok.NextString(); !errors.Is(err, at.ErrUnterminatedQuote) {
			t.Errorf("expected ErrUnterminatedQuote, got: %v", err)
		}
		if tok.HasMore() {
			t.Error("expected tokenizer to be exhausted")
		}
	})
}

func TestCharCount(t *testing.T) {
	tests := []struct {
		line string
		want int
	}{
		{"+CREG: 1", 0},
		{"+CREG: 2,1", 1},
		{`+CREG: 2,1,"00C3","0000F6B1"`, 3},
		{`+CREG: 1,"00C3","0000F6B1"`, 2},
	}
	for _, tt := range tests {
		if got := at.CharCount(tt.line, ','); got != tt.want {
			t.Errorf("CharCount(%q) = %d, expected %d", tt.line, got, tt.want)
		}
	}
}

func TestTokenizerRoundTripJoined(t *testing.T) {
	fields := []string{"bare", `with "quotes"`, "", "0x1F", `back\slash`, ""}

	parts := make([]string, len(fields))
	for i, f := range fields {
		if strings.ContainsAny(f, `"\`) {
			r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
			parts[i] = `"` + r.Replace(f) + `"`
			continue
		}
		parts[i] = f
	}

	tok, err := at.NewTokenizer("X: " + strings.Join(parts, ","))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, want := range fields {
		if !tok.HasMore() {
			t.Fatalf("HasMore() = false before field %d", i)
		}
		got, err := tok.NextString()
		if err != nil {
			t.Fatalf("field %d: %v", i, err)
		}
		if got != want {
			t.Errorf("field %d: expected %q, got %q", i, want, got)
		}
	}
	if tok.HasMore() {
		t.Error("HasMore() = true after last field")
	}
}
