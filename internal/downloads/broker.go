// Package downloads implements the download token broker: the single path
// from an entitled user to a loader binary.
//
// Issue re-checks entitlement, reuses a still-live token when one exists, and
// otherwise mints a fresh single-use token with a short TTL. Redeem consumes
// the token exactly once and hands back either a signed URL (cloud backends)
// or a streaming handle (local backend). All denials carry a machine-readable
// reason so the API layer can map them to responses without string matching.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/Daziusm/anonbuci-sub001/internal/auth"
	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
	"github.com/Daziusm/anonbuci-sub001/internal/entitlement"
	"github.com/Daziusm/anonbuci-sub001/internal/storage"
	"github.com/Daziusm/anonbuci-sub001/internal/telemetry"
)

var (
	// ErrProductNotFound is returned by Issue when the named product does not exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrLoaderUnavailable is returned by Issue when the product has no active loader binary.
	ErrLoaderUnavailable = errors.New("no loader available for product")
)

// NotEntitledError is returned by Issue when the entitlement check denies
// access. Reason carries the machine-readable denial cause.
type NotEntitledError struct {
	Reason entitlement.Reason
}

func (e *NotEntitledError) Error() string {
	return fmt.Sprintf("not entitled: %s", e.Reason)
}

// ProductReader loads product state. Satisfied by *cache.ProductCache and
// *repositories.ProductRepository.
type ProductReader interface {
	GetByName(ctx context.Context, name string) (*models.Product, error)
}

// SubscriptionReader loads a user's subscription for a product.
type SubscriptionReader interface {
	GetForUserProduct(ctx context.Context, userID, productID string) (*models.Subscription, error)
}

// LoaderReader loads loader rows by product name.
type LoaderReader interface {
	GetByProductName(ctx context.Context, productName string) (*models.Loader, error)
}

// TokenStore persists and consumes download tokens. Create returns the token
// that holds the live slot for the pair, which is the caller's token unless a
// concurrent issue won the race.
type TokenStore interface {
	Create(ctx context.Context, token *models.DownloadToken) (*models.DownloadToken, error)
	FindLive(ctx context.Context, userID, loaderID string) (*models.DownloadToken, error)
	Consume(ctx context.Context, tokenValue string) (*models.DownloadToken, *models.Loader, error)
}

// HWIDBinder records a hardware identifier against a user account.
type HWIDBinder interface {
	BindHWID(ctx context.Context, userID, hwid string) error
}

// Broker issues and redeems download tokens.
type Broker struct {
	products ProductReader
	subs     SubscriptionReader
	loaders  LoaderReader
	tokens   TokenStore
	users    HWIDBinder
	store    storage.Storage
	tokenTTL time.Duration
}

// NewBroker creates a download token broker. tokenTTL is the issue-to-expiry
// window for minted tokens. users may be nil to skip hardware binding.
func NewBroker(products ProductReader, subs SubscriptionReader, loaders LoaderReader, tokens TokenStore, users HWIDBinder, store storage.Storage, tokenTTL time.Duration) *Broker {
	return &Broker{
		products: products,
		subs:     subs,
		loaders:  loaders,
		tokens:   tokens,
		users:    users,
		store:    store,
		tokenTTL: tokenTTL,
	}
}

// ClientInfo carries the request attributes a token is bound to.
type ClientInfo struct {
	IP    string
	Agent string
	HWID  string // optional hardware identifier header
}

// Issue performs the full entitlement check for user and product and, if it
// passes, returns a live download token. An unexpired unused token for the
// same user and loader is returned as-is rather than minting another; issuing
// is idempotent within the token window.
func (b *Broker) Issue(ctx context.Context, user *models.User, productName string, client ClientInfo) (*models.DownloadToken, error) {
	product, err := b.products.GetByName(ctx, productName)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	sub, err := b.subs.GetForUserProduct(ctx, user.ID, product.ID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	now := time.Now().UTC()
	decision := entitlement.Resolve(user, product, sub, now)
	telemetry.EntitlementDecisionsTotal.WithLabelValues(
		string(decision.Reason), strconv.FormatBool(decision.Allowed)).Inc()
	if !decision.Allowed {
		slog.Info("download token denied",
			"user_id", user.ID,
			"product", productName,
			"reason", decision.Reason)
		return nil, &NotEntitledError{Reason: decision.Reason}
	}

	loader, err := b.loaders.GetByProductName(ctx, productName)
	if err != nil {
		return nil, fmt.Errorf("load loader: %w", err)
	}
	if loader == nil || !loader.IsActive {
		return nil, ErrLoaderUnavailable
	}

	// Bind the hardware identifier on first sight; a mismatch after binding
	// is logged for anomaly review but does not block the download.
	if b.users != nil && client.HWID != "" {
		switch {
		case user.HWID == nil:
			if err := b.users.BindHWID(ctx, user.ID, client.HWID); err != nil {
				return nil, fmt.Errorf("bind hwid: %w", err)
			}
		case *user.HWID != client.HWID:
			slog.Warn("hardware identifier mismatch on token issue",
				"user_id", user.ID,
				"product", productName)
		}
	}

	// Reuse a live token instead of minting a second credential for the
	// same window.
	existing, err := b.tokens.FindLive(ctx, user.ID, loader.ID)
	if err != nil {
		return nil, fmt.Errorf("find live token: %w", err)
	}
	if existing != nil {
		telemetry.DownloadTokensIssuedTotal.WithLabelValues(productName, "true").Inc()
		return existing, nil
	}

	value, err := auth.NewDownloadToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	token := &models.DownloadToken{
		Token:       value,
		UserID:      user.ID,
		LoaderID:    loader.ID,
		ProductName: productName,
		ClientIP:    client.IP,
		ClientAgent: client.Agent,
		ExpiresAt:   now.Add(b.tokenTTL),
	}
	stored, err := b.tokens.Create(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	// The store linearizes issuance per (user, loader): if a concurrent
	// request minted first, Create hands back that token instead of ours.
	reused := stored.Token != value
	telemetry.DownloadTokensIssuedTotal.WithLabelValues(productName, strconv.FormatBool(reused)).Inc()
	if !reused {
		slog.Info("download token issued",
			"user_id", user.ID,
			"product", productName,
			"expires_at", stored.ExpiresAt)
	}

	return stored, nil
}

// Delivery is the result of redeeming a token: either a direct URL to the
// binary (cloud backends) or a streaming body the caller must close (local
// backend). Exactly one of URL and Body is set.
type Delivery struct {
	Loader *models.Loader
	URL    string
	Body   io.ReadCloser
}

// Redeem consumes the token and returns the delivery handle for its loader.
// The token is burned even if storage retrieval subsequently fails; a token
// observed by the storage layer is never reusable. The issue-time client
// binding is advisory: a redeeming client that differs from the issuing one
// is logged for anomaly review, not rejected, since NAT and proxy hops can
// move a legitimate client's address within the token window.
func (b *Broker) Redeem(ctx context.Context, tokenValue string, client ClientInfo) (*Delivery, error) {
	token, loader, err := b.tokens.Consume(ctx, tokenValue)
	if err != nil {
		return nil, err
	}

	if (client.IP != "" && client.IP != token.ClientIP) ||
		(client.Agent != "" && client.Agent != token.ClientAgent) {
		slog.Warn("download client changed between issue and redeem",
			"user_id", token.UserID,
			"product", loader.ProductName,
			"issued_ip", token.ClientIP,
			"redeemed_ip", client.IP,
			"issued_agent", token.ClientAgent,
			"redeemed_agent", client.Agent)
	}

	telemetry.LoaderDownloadsTotal.WithLabelValues(loader.ProductName).Inc()
	slog.Info("download token redeemed",
		"user_id", token.UserID,
		"product", loader.ProductName,
		"loader_id", loader.ID)

	url, err := b.store.GetURL(ctx, loader.StoragePath, b.tokenTTL)
	if err == nil {
		return &Delivery{Loader: loader, URL: url}, nil
	}
	if !errors.Is(err, storage.ErrURLNotSupported) {
		return nil, fmt.Errorf("storage url: %w", err)
	}

	body, err := b.store.Download(ctx, loader.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("storage download: %w", err)
	}
	return &Delivery{Loader: loader, Body: body}, nil
}
