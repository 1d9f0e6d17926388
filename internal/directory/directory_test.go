package directory

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/voiceinvoice/internal/testutil"
)

var quietLogger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const seedYAML = `
clients:
  - name: Jane Doe
    email: jane@example.com
    rate_type: day
    default_rate: 400
  - name: Acme Corp
    email: ap@acme.test
    address: 9 Industrial Way
  - name: ""
    email: nobody@example.com
  - name: Cash Customer
`

func TestImport_CreatesAndSkips(t *testing.T) {
	db := testutil.TestStore(t)
	existing := testutil.SeedClient(t, db, "Jane D.", "JANE@example.com")
	im := NewImporter(db, quietLogger)

	res, err := im.Import(context.Background(), []byte(seedYAML))
	require.NoError(t, err)

	assert.Len(t, res.Created, 2)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Invalid)

	clients, err := db.ListClients(context.Background())
	require.NoError(t, err)
	names := []string{}
	for _, c := range clients {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Acme Corp", "Cash Customer", "Jane D."}, names)

	got, err := db.GetClient(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane D.", got.Name, "existing clients are never modified")
}

func TestImport_IsIdempotent(t *testing.T) {
	db := testutil.TestStore(t)
	im := NewImporter(db, quietLogger)

	_, err := im.Import(context.Background(), []byte(seedYAML))
	require.NoError(t, err)
	res, err := im.Import(context.Background(), []byte(seedYAML))
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, 3, res.Skipped)
}

func TestImport_BadYAML(t *testing.T) {
	im := NewImporter(testutil.TestStore(t), quietLogger)
	_, err := im.Import(context.Background(), []byte("clients: [unterminated"))
	assert.Error(t, err)
}

func TestWatch_ReimportsOnChange(t *testing.T) {
	db := testutil.TestStore(t)
	im := NewImporter(db, quietLogger)
	path := filepath.Join(t.TempDir(), "clients.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clients: []\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var created []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = im.Watch(ctx, path, func(r Result) {
			mu.Lock()
			defer mu.Unlock()
			for _, c := range r.Created {
				created = append(created, c.Name)
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(created) == 3
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}
