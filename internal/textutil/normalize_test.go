package textutil

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Olá", "ola"},
		{"  AMANHÃ  de   manhã ", "amanha de manha"},
		{"Não, obrigado", "nao, obrigado"},
		{"Preço da DRENAGEM linfática?", "preco da drenagem linfatica?"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDigits(t *testing.T) {
	if got := Digits("+55 (11) 99999-0000"); got != "5511999990000" {
		t.Fatalf("unexpected digits %q", got)
	}
}

func TestContainsAny(t *testing.T) {
	if !ContainsAny("quero marcar um horario", "Horário") {
		t.Fatal("expected accent-insensitive match")
	}
	if ContainsAny("bom dia", "", "tarde") {
		t.Fatal("unexpected match")
	}
}

func TestE164(t *testing.T) {
	cases := map[string]string{
		"":                    "",
		"   ":                 "",
		"abc":                 "",
		"+55 (11) 98888-7777": "+5511988887777",
		"5511988887777":       "+5511988887777",
	}
	for in, want := range cases {
		if got := E164(in); got != want {
			t.Fatalf("E164(%q)=%q want %q", in, got, want)
		}
	}
}
