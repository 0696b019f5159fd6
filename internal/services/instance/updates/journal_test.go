package updates

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestJournalMissingAndBlankFilesAreEmpty(t *testing.T) {
	ctx := context.Background()
	journal, fs := newJournal()

	applied, err := journal.Load(ctx)
	if err != nil || len(applied) != 0 {
		t.Fatalf("expected empty journal for missing file, got %v err=%v", applied, err)
	}
	if err := fs.WriteAllText(ctx, journal.Path(), "  \n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	applied, err = journal.Load(ctx)
	if err != nil || len(applied) != 0 {
		t.Fatalf("expected empty journal for blank file, got %v err=%v", applied, err)
	}
}

func TestJournalRoundTripExcludesAppliedVersions(t *testing.T) {
	ctx := context.Background()
	journal, _ := newJournal()
	r := &recorder{}
	m, err := NewManager(journal, []Update{r.update("1.0.0", nil), r.update("1.1.0", nil), r.update("1.2.0", nil)})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if err := journal.Save(ctx, versions("1.1.0", "1.0.0")); err != nil {
		t.Fatalf("save: %v", err)
	}
	reloaded := &Journal{fs: journal.fs, path: journal.Path()}
	m.journal = reloaded

	if got := pendingVersions(t, m); !reflect.DeepEqual(got, []string{"1.2.0"}) {
		t.Fatalf("expected only v3 pending, got %v", got)
	}
}

func TestJournalWritesSortedJSONArray(t *testing.T) {
	ctx := context.Background()
	journal, fs := newJournal()
	if err := journal.Append(ctx, versions("1.10.0")[0]); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := journal.Append(ctx, versions("1.9.0")[0]); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := journal.Append(ctx, versions("1.9.0")[0]); err != nil {
		t.Fatalf("append duplicate: %v", err)
	}
	text, err := fs.ReadAllText(ctx, journal.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	compact := strings.Join(strings.Fields(text), "")
	if compact != `["1.9.0","1.10.0"]` {
		t.Fatalf("unexpected journal content %q", text)
	}
}

func TestJournalRejectsCorruptContent(t *testing.T) {
	ctx := context.Background()
	journal, fs := newJournal()
	for _, content := range []string{"{", `["not-a-version"]`} {
		if err := fs.WriteAllText(ctx, journal.Path(), content); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := journal.Load(ctx); err == nil {
			t.Fatalf("expected error for %q", content)
		}
	}
}
