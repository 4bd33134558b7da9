package port

import (
	"context"

	"github.com/vertextoedge/czds-fetch/internal/domain"
)

// TokenSource supplies bearer tokens for authenticated CZDS calls
type TokenSource interface {
	// Token returns a valid bearer token, authenticating if none is held
	Token(ctx context.Context) (string, error)

	// Invalidate drops token if it is still the held one, forcing the next
	// Token call to authenticate again
	Invalidate(token string)
}

// ZoneClient defines the CZDS operations the batch runner depends on
type ZoneClient interface {
	// EnsureAuthenticated guarantees a token is held after return
	EnsureAuthenticated(ctx context.Context) error

	// ListAvailableLinks returns the download URLs the account is entitled to
	ListAvailableLinks(ctx context.Context) ([]domain.ZoneLink, error)

	// FetchZone downloads the zone file of an explicitly requested TLD
	FetchZone(ctx context.Context, tld string) (*domain.DownloadedFile, error)

	// FetchURL downloads the zone file behind a discovered download URL
	FetchURL(ctx context.Context, downloadURL string) (*domain.DownloadedFile, error)
}
