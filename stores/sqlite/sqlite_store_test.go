package sqlite_test

import (
	"testing"

	"github.com/mickamy/go-event-sourcing/internal/storetest"
	"github.com/mickamy/go-event-sourcing/recorder"
	"github.com/mickamy/go-event-sourcing/stores/sqlite"
)

func TestStore_Compliance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) recorder.Recorder {
		t.Helper()
		// Each subtest gets its own named in-memory database so that
		// parallel subtests never see each other's rows.
		store, err := sqlite.Open("file:" + t.Name() + "?mode=memory&cache=shared")
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}
