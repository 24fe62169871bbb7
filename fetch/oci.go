package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opencontainers/go-digest"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/errcode"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/source"
)

const ociScheme = "oci://"

// OCIFactory fetches image blobs stored in OCI registries, addressed as
// oci://registry/repository@sha256:<hex>. Content is verified against the
// digest before it is returned.
type OCIFactory struct {
	plainHTTP  bool
	userAgent  string
	credential auth.CredentialFunc
	logger     *slog.Logger

	client *auth.Client
}

// OCIOption configures an OCIFactory.
type OCIOption func(*OCIFactory)

// WithOCIPlainHTTP talks to registries without TLS.
func WithOCIPlainHTTP(enabled bool) OCIOption {
	return func(f *OCIFactory) {
		f.plainHTTP = enabled
	}
}

// WithOCIStaticCredentials sets a username and password for one registry.
func WithOCIStaticCredentials(registry, username, password string) OCIOption {
	return func(f *OCIFactory) {
		f.credential = auth.StaticCredential(registry, auth.Credential{
			Username: username,
			Password: password,
		})
	}
}

// WithOCIDockerConfig reads credentials from the Docker config file and its
// credential helpers. It is a no-op when the config cannot be loaded.
func WithOCIDockerConfig() OCIOption {
	return func(f *OCIFactory) {
		store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
		if err != nil {
			return
		}
		f.credential = credentials.Credential(store)
	}
}

// WithOCIUserAgent sets the User-Agent header.
func WithOCIUserAgent(ua string) OCIOption {
	return func(f *OCIFactory) {
		f.userAgent = ua
	}
}

// WithOCILogger sets the logger for blob fetches.
func WithOCILogger(logger *slog.Logger) OCIOption {
	return func(f *OCIFactory) {
		f.logger = logger
	}
}

// NewOCIFactory returns a factory for oci:// URIs.
func NewOCIFactory(opts ...OCIOption) *OCIFactory {
	f := &OCIFactory{userAgent: "sketch/1.0"}
	for _, opt := range opts {
		opt(f)
	}
	credential := f.credential
	if credential == nil {
		credential = func(context.Context, string) (auth.Credential, error) {
			return auth.EmptyCredential, nil
		}
	}
	f.client = &auth.Client{
		Client:     retry.DefaultClient,
		Cache:      auth.NewCache(),
		Credential: credential,
		Header: http.Header{
			"User-Agent": []string{f.userAgent},
		},
	}
	return f
}

func (f *OCIFactory) log() *slog.Logger {
	if f.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.logger
}

func (f *OCIFactory) Create(req *request.Request) (Fetcher, bool, error) {
	raw := req.URI()
	if !strings.HasPrefix(raw, ociScheme) {
		return nil, false, nil
	}
	ref, err := registry.ParseReference(strings.TrimPrefix(raw, ociScheme))
	if err != nil {
		return nil, true, &request.UriInvalidError{URI: raw, Reason: err.Error()}
	}
	dgst, err := ref.Digest()
	if err != nil {
		return nil, true, &request.UriInvalidError{URI: raw, Reason: "blob reference must be a digest"}
	}
	return &ociFetcher{factory: f, uri: raw, ref: ref, digest: dgst}, true, nil
}

type ociFetcher struct {
	factory *OCIFactory
	uri     string
	ref     registry.Reference
	digest  digest.Digest
}

func (o *ociFetcher) Network() bool { return true }

func (o *ociFetcher) Fetch(ctx context.Context) (*Result, error) {
	f := o.factory
	repo, err := remote.NewRepository(o.ref.Registry + "/" + o.ref.Repository)
	if err != nil {
		return nil, &request.UriInvalidError{URI: o.uri, Reason: err.Error()}
	}
	repo.PlainHTTP = f.plainHTTP
	repo.Client = f.client

	desc, rc, err := repo.Blobs().FetchReference(ctx, o.digest.String())
	if err != nil {
		return nil, o.mapError(err)
	}
	defer rc.Close()

	// ReadAll verifies size and digest against the descriptor.
	data, err := content.ReadAll(rc, desc)
	if err != nil {
		return nil, &Error{URI: o.uri, Err: err}
	}

	mimeType := SniffMimeType(data)
	if strings.HasPrefix(desc.MediaType, "image/") {
		mimeType = desc.MediaType
	}
	f.log().Debug("oci blob fetched", "uri", o.uri, "bytes", len(data), "mime", mimeType)
	return &Result{Source: source.NewBytes(data, source.Network), MimeType: mimeType}, nil
}

func (o *ociFetcher) mapError(err error) error {
	if errors.Is(err, errdef.ErrNotFound) {
		return &Error{URI: o.uri, Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
	}
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) {
		if errResp.StatusCode == http.StatusNotFound {
			return &Error{URI: o.uri, Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
		}
		return &Error{URI: o.uri, StatusCode: errResp.StatusCode, Err: fmt.Errorf("%w: %v", ErrHTTPStatus, err)}
	}
	return &Error{URI: o.uri, Err: err}
}
