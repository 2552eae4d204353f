package highlight

import "testing"

func abc() Set {
	return Set{
		{Name: "A", Color: "#aaaaaa"},
		{Name: "B", Color: "#bbbbbb"},
		{Name: "C", Color: "#cccccc"},
	}
}

func TestUpsert_ExistingAnyCase(t *testing.T) {
	s := Set{{Name: "General", Color: "#000000"}, {Name: "random", Color: "#111111"}}

	got, ok := s.Upsert("  GENERAL ", "#ff0000")
	if !ok {
		t.Fatal("Upsert reported no change")
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "General" || got[0].Color != "#ff0000" {
		t.Errorf("entry 0 = %+v, want General/#ff0000", got[0])
	}
	if s[0].Color != "#000000" {
		t.Error("Upsert mutated the receiver")
	}
}

func TestUpsert_Appends(t *testing.T) {
	got, ok := abc().Upsert(" off-topic ", "#123456")
	if !ok || len(got) != 4 {
		t.Fatalf("Upsert = (%d entries, %v), want (4, true)", len(got), ok)
	}
	if got[3] != (Highlight{Name: "off-topic", Color: "#123456"}) {
		t.Errorf("appended = %+v", got[3])
	}
}

func TestUpsert_BlankName(t *testing.T) {
	s := abc()
	got, ok := s.Upsert("   ", "#123456")
	if ok {
		t.Fatal("blank name accepted")
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
}

func TestRemove_Middle(t *testing.T) {
	got, ok := abc().Remove(1)
	if !ok {
		t.Fatal("Remove(1) reported no change")
	}
	if len(got) != 2 || got[0].Name != "A" || got[1].Name != "C" {
		t.Fatalf("Remove(1) = %+v, want [A C]", got)
	}
}

func TestRemove_OutOfRange(t *testing.T) {
	for _, i := range []int{-1, 3, 42} {
		got, ok := abc().Remove(i)
		if ok {
			t.Errorf("Remove(%d) reported a change", i)
		}
		if len(got) != 3 {
			t.Errorf("Remove(%d): len = %d, want 3", i, len(got))
		}
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	m := Set{{Name: "General", Color: "#ff0000"}}.Lookup()
	for _, name := range []string{"general", "GENERAL", "General"} {
		if m[key(name)] != "#ff0000" {
			t.Errorf("lookup %q = %q", name, m[key(name)])
		}
	}
}

func TestNormalize(t *testing.T) {
	s := Set{
		{Name: " general ", Color: "#1"},
		{Name: "", Color: "#2"},
		{Name: "GENERAL", Color: "#3"},
		{Name: "random", Color: "#4"},
	}
	got := s.Normalize()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].Name != "general" || got[0].Color != "#1" {
		t.Errorf("entry 0 = %+v", got[0])
	}
}

func TestNormalizeColor(t *testing.T) {
	cases := map[string]string{
		"#FF0000": "#ff0000",
		"ff0000":  "#ff0000",
		"#abc":    "#aabbcc",
		" 112233": "#112233",
	}
	for in, want := range cases {
		got, err := NormalizeColor(in)
		if err != nil {
			t.Errorf("NormalizeColor(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("NormalizeColor(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "red", "#12345"} {
		if _, err := NormalizeColor(bad); err == nil {
			t.Errorf("NormalizeColor(%q): expected error", bad)
		}
	}
}

func TestIsLight(t *testing.T) {
	if !IsLight("#ffffcc") {
		t.Error("#ffffcc should be light")
	}
	if IsLight("#101020") {
		t.Error("#101020 should be dark")
	}
}
