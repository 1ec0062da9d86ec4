package flowtable

import "testing"

func TestAddIsIdempotent(t *testing.T) {
	ft := New()
	if err := ft.Add(1, 2, 3, 5); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := ft.Add(1, 2, 3, 5); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	entries := ft.EntriesOn(1)
	if len(entries) != 1 {
		t.Fatalf("EntriesOn(1) = %v, want 1 entry", entries)
	}
	if entries[0].OutPort != 5 {
		t.Errorf("entry.OutPort = %d, want 5", entries[0].OutPort)
	}
}

func TestAddReplacesExistingEntry(t *testing.T) {
	ft := New()
	_ = ft.Add(1, 2, 3, 5)
	_ = ft.Add(1, 2, 3, 7)

	entries := ft.EntriesOn(1)
	if len(entries) != 1 || entries[0].OutPort != 7 {
		t.Errorf("EntriesOn(1) = %v, want single entry with out_port 7", entries)
	}
}

func TestAddRejectsInvalidPort(t *testing.T) {
	ft := New()
	if err := ft.Add(1, 2, 3, 0); err == nil {
		t.Error("Add with out_port 0 should return an error")
	}
}

func TestRemoveWildcards(t *testing.T) {
	ft := New()
	_ = ft.Add(1, 2, 3, 5)
	_ = ft.Add(1, 2, 4, 6)
	_ = ft.Add(1, 9, 4, 6)
	_ = ft.Add(2, 2, 3, 5)

	two := 2
	removed := ft.Remove(1, &two, nil, nil)
	if len(removed) != 2 {
		t.Fatalf("Remove(dpid=1,src=2) removed %d entries, want 2", len(removed))
	}
	if len(ft.EntriesOn(1)) != 1 {
		t.Errorf("EntriesOn(1) after removal = %v, want 1 remaining entry", ft.EntriesOn(1))
	}
	if len(ft.EntriesOn(2)) != 1 {
		t.Errorf("EntriesOn(2) should be untouched, got %v", ft.EntriesOn(2))
	}
}

func TestRemoveAllOnSwitch(t *testing.T) {
	ft := New()
	_ = ft.Add(1, 2, 3, 5)
	_ = ft.Add(1, 4, 5, 6)

	removed := ft.Remove(1, nil, nil, nil)
	if len(removed) != 2 {
		t.Fatalf("Remove(dpid=1) removed %d entries, want 2", len(removed))
	}
	if got := ft.EntriesOn(1); len(got) != 0 {
		t.Errorf("EntriesOn(1) after full removal = %v, want empty", got)
	}
}

func TestEntriesVia(t *testing.T) {
	ft := New()
	_ = ft.Add(1, 2, 3, 5)
	_ = ft.Add(1, 4, 6, 5)
	_ = ft.Add(1, 7, 8, 9)

	via5 := ft.EntriesVia(1, 5)
	if len(via5) != 2 {
		t.Fatalf("EntriesVia(1,5) = %v, want 2 entries", via5)
	}
}

func TestOutPort(t *testing.T) {
	ft := New()
	_ = ft.Add(1, 2, 3, 5)

	if port, ok := ft.OutPort(1, 2, 3); !ok || port != 5 {
		t.Errorf("OutPort(1,2,3) = (%d,%v), want (5,true)", port, ok)
	}
	if _, ok := ft.OutPort(1, 2, 99); ok {
		t.Error("OutPort for unknown pair should report ok=false")
	}
}
