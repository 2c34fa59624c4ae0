package language

import "testing"

func TestDetectDiacritics(t *testing.T) {
	cases := []string{
		"mañana",
		"¿qué pasa?",
		"The word café is here",
		"¡Ya!",
		"PINGÜINO",
		"ESTÁ BIEN",
		"Ñ",
	}
	for _, in := range cases {
		if got := Detect(in); got != Spanish {
			t.Fatalf("Detect(%q) = %s, want es", in, got)
		}
	}
}

func TestDetectDecomposedAccent(t *testing.T) {
	// "está" with a combining acute accent, as some ASR vendors emit it.
	in := "esta\u0301 bien"
	if got := Detect(in); got != Spanish {
		t.Fatalf("expected es for decomposed accent, got %s", got)
	}
}

func TestDetectLexicon(t *testing.T) {
	cases := []string{
		"Hola doctor",
		"mi hijo tiene fiebre",
		"BUENAS tardes",
		"gracias",
		"por favor ayudeme",
		"tiene dolor",
		"yo no se",
	}
	for _, in := range cases {
		if got := Detect(in); got != Spanish {
			t.Fatalf("Detect(%q) = %s, want es", in, got)
		}
	}
}

func TestDetectWholeWordOnly(t *testing.T) {
	cases := []string{
		"your appointment is tomorrow",
		"the holanda shipment",
		"graciaston street",
		"I think so",
	}
	for _, in := range cases {
		if got := Detect(in); got != English {
			t.Fatalf("Detect(%q) = %s, want en", in, got)
		}
	}
}

func TestDetectEnglish(t *testing.T) {
	cases := []string{
		"",
		"Hello, how are you feeling today?",
		"My son has a headache",
		"Please take this medicine twice a day",
	}
	for _, in := range cases {
		if got := Detect(in); got != English {
			t.Fatalf("Detect(%q) = %s, want en", in, got)
		}
	}
}

func TestDetectDeterministic(t *testing.T) {
	in := "Hola, mi hijo tiene dolor de cabeza"
	first := Detect(in)
	for i := 0; i < 10; i++ {
		if got := Detect(in); got != first {
			t.Fatalf("non-deterministic result %s vs %s", got, first)
		}
	}
}

func TestExtraLexiconTerms(t *testing.T) {
	c := NewDefaultClassifier("fiebre")
	if got := c.Detect("tiene fiebre"); got != Spanish {
		t.Fatalf("expected es with extra term, got %s", got)
	}
	if got := Detect("fiebre"); got != English {
		t.Fatalf("default classifier should not know extra term, got %s", got)
	}
}

func TestComplement(t *testing.T) {
	if Spanish.Complement() != English {
		t.Fatalf("es should translate to en")
	}
	if English.Complement() != Spanish {
		t.Fatalf("en should translate to es")
	}
	if Tag("fr").Complement() != Spanish {
		t.Fatalf("unknown tags translate to es")
	}
	if English.DisplayName() != "English" || Spanish.DisplayName() != "Spanish" {
		t.Fatalf("unexpected display names")
	}
}

func TestParseTag(t *testing.T) {
	if tag, ok := ParseTag(" ES-mx "); !ok || tag != Spanish {
		t.Fatalf("expected es, got %q %v", tag, ok)
	}
	if tag, ok := ParseTag("english"); !ok || tag != English {
		t.Fatalf("expected en, got %q %v", tag, ok)
	}
	if _, ok := ParseTag("id"); ok {
		t.Fatalf("expected unknown tag")
	}
}
