package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchInboxImportsExistingAndNewFiles(t *testing.T) {
	inbox := tempFS(t)
	svc := newTestService(t)
	im := NewImporter(svc, discardLogger())

	require.NoError(t, inbox.Write("early.md", []byte("---\nreference: Gen 1:1\n---\nIn the beginning\n")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- WatchInbox(ctx, inbox, im, discardLogger()) }()

	count := func() int {
		list, err := svc.List(context.Background())
		if err != nil {
			return -1
		}
		return len(list)
	}
	require.Eventually(t, func() bool { return count() == 1 }, 5*time.Second, 50*time.Millisecond, "existing inbox file not imported")

	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(inbox.Root(), "late.md"), []byte("---\nreference: Rev 22:21\n---\nAmen\n"), 0o644)

	require.Eventually(t, func() bool { return count() == 2 }, 5*time.Second, 50*time.Millisecond, "new inbox file not imported")
	require.Eventually(t, func() bool {
		files, _ := inbox.List()
		return len(files) == 0
	}, 2*time.Second, 50*time.Millisecond, "imported files should be consumed")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "watcher did not stop")
	}
}
