package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// StorageProvider is a sink that receives exported edits.
type StorageProvider interface {
	Upload(ctx context.Context, input UploadInput) (UploadOutput, error)
	Delete(ctx context.Context, input DeleteInput) error
	GetURL(ctx context.Context, input GetURLInput) (string, error)
	Exists(ctx context.Context, input GetURLInput) (bool, error)
	Name() string
}

type UploadInput struct {
	File        io.Reader
	Filename    string
	Folder      string
	ContentType string
	Size        int64
}

type UploadOutput struct {
	URL      string
	Filename string
	Size     int64
}

type DeleteInput struct {
	Filename string
	Folder   string
}

type GetURLInput struct {
	Filename string
	Folder   string
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Type     string         `json:"type"`
	Settings map[string]any `json:"settings"`
}

// objectPath joins folder and filename with forward slashes. The filename is
// reduced to its base name so callers cannot escape the folder.
func objectPath(folder, filename string) string {
	name := path.Base(filepath.ToSlash(filename))
	folder = strings.Trim(filepath.ToSlash(folder), "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// LocalStorageProvider writes exports under a directory and serves them from baseURL.
type LocalStorageProvider struct {
	basePath string
	baseURL  string
}

func NewLocalStorageProvider(basePath, baseURL string) (*LocalStorageProvider, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}
	return &LocalStorageProvider{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

func (p *LocalStorageProvider) Name() string { return "local" }

func (p *LocalStorageProvider) fullPath(folder, filename string) string {
	return filepath.Join(p.basePath, filepath.FromSlash(objectPath(folder, filename)))
}

func (p *LocalStorageProvider) Upload(ctx context.Context, input UploadInput) (UploadOutput, error) {
	if err := ctx.Err(); err != nil {
		return UploadOutput{}, err
	}

	fullPath := p.fullPath(input.Folder, input.Filename)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return UploadOutput{}, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return UploadOutput{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	size, err := io.Copy(file, input.File)
	if err != nil {
		return UploadOutput{}, fmt.Errorf("failed to copy file: %w", err)
	}

	url, _ := p.GetURL(ctx, GetURLInput{Filename: input.Filename, Folder: input.Folder})
	return UploadOutput{
		URL:      url,
		Filename: path.Base(filepath.ToSlash(input.Filename)),
		Size:     size,
	}, nil
}

func (p *LocalStorageProvider) Delete(ctx context.Context, input DeleteInput) error {
	err := os.Remove(p.fullPath(input.Folder, input.Filename))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (p *LocalStorageProvider) GetURL(ctx context.Context, input GetURLInput) (string, error) {
	return p.baseURL + "/" + objectPath(input.Folder, input.Filename), nil
}

func (p *LocalStorageProvider) Exists(ctx context.Context, input GetURLInput) (bool, error) {
	_, err := os.Stat(p.fullPath(input.Folder, input.Filename))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ProviderFactory builds providers from configuration and keeps named instances.
type ProviderFactory struct {
	providers map[string]StorageProvider
}

func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{
		providers: make(map[string]StorageProvider),
	}
}

func (f *ProviderFactory) Register(name string, provider StorageProvider) {
	f.providers[name] = provider
}

func (f *ProviderFactory) Get(name string) (StorageProvider, error) {
	provider, exists := f.providers[name]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return provider, nil
}

// CreateFromConfig builds a provider and registers it under its type.
func (f *ProviderFactory) CreateFromConfig(config ProviderConfig) (StorageProvider, error) {
	var (
		provider StorageProvider
		err      error
	)

	switch config.Type {
	case "local":
		basePath := settingString(config.Settings, "base_path", "")
		if basePath == "" {
			return nil, fmt.Errorf("local provider requires base_path")
		}
		provider, err = NewLocalStorageProvider(basePath, settingString(config.Settings, "base_url", "/exports"))

	case "oss":
		provider, err = NewOSSProvider(OSSConfig{
			Endpoint:        settingString(config.Settings, "endpoint", ""),
			AccessKeyID:     settingString(config.Settings, "access_key_id", ""),
			AccessKeySecret: settingString(config.Settings, "access_key_secret", ""),
			Bucket:          settingString(config.Settings, "bucket", ""),
			Domain:          settingString(config.Settings, "domain", ""),
		})

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.Register(config.Type, provider)
	return provider, nil
}

// settingString reads a string setting. Viper lowercases keys, so lookups are
// case-insensitive.
func settingString(settings map[string]any, key, fallback string) string {
	for k, v := range settings {
		if !strings.EqualFold(k, key) {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
