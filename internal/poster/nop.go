package poster

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pennywhistle/tally-ho/internal/service"
)

// NopPoster satisfies LedgerPoster without an accounting system. Every post
// succeeds with a synthetic reference; used for dry runs and local work.
type NopPoster struct{}

// NewNopPoster creates a dry-run poster.
func NewNopPoster() *NopPoster {
	return &NopPoster{}
}

// FindOrCreatePayee echoes the name back as the entity id.
func (n *NopPoster) FindOrCreatePayee(_ context.Context, name string) (string, error) {
	return name, nil
}

// Post logs the posting and returns a synthetic reference.
func (n *NopPoster) Post(_ context.Context, p service.Posting) (string, error) {
	ref := "dry-" + uuid.NewString()
	slog.Info("Dry-run posting",
		"payee", p.PayeeEntity,
		"amount", p.Amount,
		"category", p.CategoryAccount,
		"reference", ref)
	return ref, nil
}

// Attach is a no-op.
func (n *NopPoster) Attach(_ context.Context, _, _ string) error {
	return nil
}
