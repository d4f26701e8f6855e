package display

import (
	"testing"
	"unicode/utf8"
)

func TestASCIIText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Rostov", "Rostov"},
		{"Таганрог", "Taganrog"},
		{"Щёлково", "Shchelkovo"},
		{"Йошкар-Ола", "Yoshkar-Ola"},
		{"Zürich", "Zurich"},
		{"São Paulo", "Sao Paulo"},
		{"東京", "__"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := asciiText(tt.in); got != tt.want {
				t.Fatalf("asciiText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	got := truncate("Таганрог-на-море", 9)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8 %q", got)
	}
	if got != "Таганрог-" {
		t.Fatalf("truncate = %q", got)
	}
	if truncate("short", 9) != "short" {
		t.Fatal("short string changed")
	}
}
