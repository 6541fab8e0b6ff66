package sqltoken

import "testing"

// TestScanBasic tests token classification across the supported lexemes.
func TestScanBasic(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Token
	}{
		{
			name: "comparison",
			in:   `fid >= 10`,
			want: []Token{
				{Kind: Ident, Text: "fid"},
				{Kind: Symbol, Text: ">="},
				{Kind: Number, Text: "10"},
			},
		},
		{
			name: "quoted identifier",
			in:   `"Zone Code" = 'A'`,
			want: []Token{
				{Kind: Ident, Text: "Zone Code", Quoted: true},
				{Kind: Symbol, Text: "="},
				{Kind: String, Text: "A"},
			},
		},
		{
			name: "string escape",
			in:   `'it''s'`,
			want: []Token{
				{Kind: String, Text: "it's"},
			},
		},
		{
			name: "doubled identifier quote",
			in:   `"we""ird"`,
			want: []Token{
				{Kind: Ident, Text: `we"ird`, Quoted: true},
			},
		},
		{
			name: "dollar identifier",
			in:   `$geometry`,
			want: []Token{
				{Kind: Ident, Text: "$geometry"},
			},
		},
		{
			name: "in list",
			in:   `fid IN (1,2, 3)`,
			want: []Token{
				{Kind: Ident, Text: "fid"},
				{Kind: Ident, Text: "IN"},
				{Kind: Symbol, Text: "("},
				{Kind: Number, Text: "1"},
				{Kind: Symbol, Text: ","},
				{Kind: Number, Text: "2"},
				{Kind: Symbol, Text: ","},
				{Kind: Number, Text: "3"},
				{Kind: Symbol, Text: ")"},
			},
		},
		{
			name: "two char operators",
			in:   `a <> b != c <= d`,
			want: []Token{
				{Kind: Ident, Text: "a"},
				{Kind: Symbol, Text: "<>"},
				{Kind: Ident, Text: "b"},
				{Kind: Symbol, Text: "!="},
				{Kind: Ident, Text: "c"},
				{Kind: Symbol, Text: "<="},
				{Kind: Ident, Text: "d"},
			},
		},
		{
			name: "decimal",
			in:   `x < 3.14`,
			want: []Token{
				{Kind: Ident, Text: "x"},
				{Kind: Symbol, Text: "<"},
				{Kind: Number, Text: "3.14"},
			},
		},
		{
			name: "empty",
			in:   "   \t\n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Scan(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Scan(%q) returned %d tokens, want %d: %v", tt.in, len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestScanListInStringLiteral verifies numbers inside string literals stay
// string content, so list detection cannot misfire on them.
func TestScanListInStringLiteral(t *testing.T) {
	got := Scan(`note = 'ids (1, 2, 3)'`)
	if len(got) != 3 {
		t.Fatalf("Expected 3 tokens, got %d: %v", len(got), got)
	}
	if got[2].Kind != String || got[2].Text != "ids (1, 2, 3)" {
		t.Errorf("Expected string literal token, got %+v", got[2])
	}
}

// TestEqualFold tests keyword matching is case-insensitive and only matches
// identifier tokens.
func TestEqualFold(t *testing.T) {
	if !(Token{Kind: Ident, Text: "in"}).EqualFold("IN") {
		t.Error("Expected bare 'in' to match IN")
	}
	if (Token{Kind: String, Text: "IN"}).EqualFold("IN") {
		t.Error("Expected string literal not to match IN")
	}
}
