package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"go.uber.org/zap"
)

// Azurite emulator account, see UseDevelopmentStorage
const (
	devAccount  = "devstoreaccount1"
	devKey      = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
	devEndpoint = "http://127.0.0.1:10000/" + devAccount
)

// ConnectionSettings are the parts of an Azure storage connection string
// the blob store uses
type ConnectionSettings struct {
	Account  string
	Key      string
	Endpoint string
}

// ParseConnectionString reads "Key=Value;..." connection strings,
// including the UseDevelopmentStorage shortcut for Azurite
func ParseConnectionString(s string) (ConnectionSettings, error) {
	if strings.TrimSpace(s) == "" {
		return ConnectionSettings{}, fmt.Errorf("connection string is required")
	}
	kv := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && k != "" {
			kv[strings.ToLower(k)] = v
		}
	}

	cs := ConnectionSettings{
		Account:  kv["accountname"],
		Key:      kv["accountkey"],
		Endpoint: kv["blobendpoint"],
	}
	if strings.EqualFold(kv["usedevelopmentstorage"], "true") {
		cs.Account, cs.Key = devAccount, devKey
		if cs.Endpoint == "" {
			cs.Endpoint = devEndpoint
		}
	}
	if cs.Account == "" || cs.Key == "" {
		return ConnectionSettings{}, fmt.Errorf("account name and key are required in the connection string")
	}
	if cs.Endpoint == "" {
		scheme := kv["defaultendpointsprotocol"]
		if scheme == "" {
			scheme = "https"
		}
		suffix := kv["endpointsuffix"]
		if suffix == "" {
			suffix = "core.windows.net"
		}
		cs.Endpoint = fmt.Sprintf("%s://%s.blob.%s", scheme, cs.Account, suffix)
	}
	cs.Endpoint = strings.TrimRight(cs.Endpoint, "/")
	return cs, nil
}

// AzureBlobStore keeps blobs in one Azure Blob Storage container. The
// container is created on the first Put.
type AzureBlobStore struct {
	container *container.Client
	name      string
	endpoint  string
	logger    *zap.Logger

	createOnce sync.Once
	createErr  error
}

// NewAzureBlobStore connects with the shared key of a connection string.
// Plain http endpoints are allowed for Azurite.
func NewAzureBlobStore(connectionString, containerName string, logger *zap.Logger) (*AzureBlobStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if containerName == "" {
		return nil, fmt.Errorf("container name is required")
	}
	cs, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	cred, err := azblob.NewSharedKeyCredential(cs.Account, cs.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid shared key: %w", err)
	}
	opts := &azblob.ClientOptions{}
	if strings.HasPrefix(strings.ToLower(cs.Endpoint), "http://") {
		opts.ClientOptions = azcore.ClientOptions{InsecureAllowCredentialWithHTTP: true}
	}
	svc, err := azblob.NewClientWithSharedKeyCredential(cs.Endpoint, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("create blob client for %s: %w", cs.Endpoint, err)
	}

	return &AzureBlobStore{
		container: svc.ServiceClient().NewContainerClient(containerName),
		name:      containerName,
		endpoint:  cs.Endpoint,
		logger:    logger.With(zap.String("container", containerName)),
	}, nil
}

// Put uploads b and returns the blob URL
func (s *AzureBlobStore) Put(ctx context.Context, b Blob) (string, error) {
	if b.Path == "" {
		return "", fmt.Errorf("blob path is required")
	}
	s.createOnce.Do(func() {
		_, err := s.container.Create(ctx, nil)
		if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			s.createErr = fmt.Errorf("create container %s: %w", s.name, err)
		}
	})
	if s.createErr != nil {
		return "", s.createErr
	}

	meta := make(map[string]*string, len(b.Metadata))
	for k, v := range b.Metadata {
		meta[k] = to.Ptr(v)
	}
	var headers *blob.HTTPHeaders
	if b.ContentType != "" {
		headers = &blob.HTTPHeaders{BlobContentType: to.Ptr(b.ContentType)}
	}

	bc := s.container.NewBlockBlobClient(b.Path)
	if _, err := bc.UploadBuffer(ctx, b.Data, &azblob.UploadBufferOptions{Metadata: meta, HTTPHeaders: headers}); err != nil {
		s.logger.Error("Blob upload failed", zap.String("path", b.Path), zap.Int("bytes", len(b.Data)), zap.Error(err))
		return "", fmt.Errorf("upload %s: %w", b.Path, err)
	}
	s.logger.Debug("Uploaded blob", zap.String("path", b.Path), zap.Int("bytes", len(b.Data)))
	return bc.URL(), nil
}

func (s *AzureBlobStore) Get(ctx context.Context, ref string) ([]byte, error) {
	path, err := s.PathOf(ref)
	if err != nil {
		return nil, err
	}
	resp, err := s.container.NewBlobClient(path).DownloadStream(ctx, nil)
	if err != nil {
		return nil, s.wrap(path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (s *AzureBlobStore) Exists(ctx context.Context, ref string) (bool, error) {
	path, err := s.PathOf(ref)
	if err != nil {
		return false, err
	}
	_, err = s.container.NewBlobClient(path).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if err = s.wrap(path, err); errors.Is(err, ErrBlobNotFound) {
		return false, nil
	}
	return false, err
}

func (s *AzureBlobStore) wrap(path string, err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return fmt.Errorf("%s: %w", path, ErrBlobNotFound)
	}
	return fmt.Errorf("%s: %w", path, err)
}

// PathOf turns a blob URL, a "/<container>/<path>" reference or a plain
// path into the path inside the container
func (s *AzureBlobStore) PathOf(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("blob reference is required")
	}

	withContainer := false
	switch {
	case len(ref) >= len(s.endpoint) && strings.EqualFold(ref[:len(s.endpoint)], s.endpoint):
		ref, withContainer = ref[len(s.endpoint):], true
	case strings.Contains(ref, "://"):
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("invalid blob URL %q: %w", ref, err)
		}
		ref, withContainer = u.EscapedPath(), true
	case strings.HasPrefix(ref, "/"):
		withContainer = true
	}

	ref, _, _ = strings.Cut(ref, "?")
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	ref = strings.TrimPrefix(ref, "/")
	if withContainer {
		ref = strings.TrimPrefix(ref, s.name+"/")
	}
	if ref == "" {
		return "", fmt.Errorf("blob path is empty")
	}
	return ref, nil
}
