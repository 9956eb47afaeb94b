package reply

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog holds every user-facing message. Entries with %s take one argument except
// upload_failed, which takes the backend name and the file name.
type Catalog struct {
	EnrolledUser  string `yaml:"enrolled_user"`
	EnrolledGroup string `yaml:"enrolled_group"`
	Denied        string `yaml:"denied"`
	PersistFailed string `yaml:"persist_failed"`

	ListUsers      string `yaml:"list_users"`
	ListGroups     string `yaml:"list_groups"`
	ListEmpty      string `yaml:"list_empty"`
	Added          string `yaml:"added"`
	AlreadyListed  string `yaml:"already_listed"`
	Removed        string `yaml:"removed"`
	NotListed      string `yaml:"not_listed"`
	Cleared        string `yaml:"cleared"`
	AdminProtected string `yaml:"admin_protected"`
	InvalidTarget  string `yaml:"invalid_target"`

	BatchHeader   string `yaml:"batch_header"`
	CategoryImage string `yaml:"category_image"`
	CategoryVideo string `yaml:"category_video"`
	CategoryAudio string `yaml:"category_audio"`
	CategoryFile  string `yaml:"category_file"`

	Processing     string `yaml:"processing"`
	DownloadFailed string `yaml:"download_failed"`
	UploadFailed   string `yaml:"upload_failed"`
	UnknownChat    string `yaml:"unknown_chat"`
	StorageLabel   string `yaml:"storage_label"`
}

// DefaultCatalog returns the built-in messages.
func DefaultCatalog() *Catalog {
	var c Catalog
	if err := yaml.Unmarshal(defaultCatalog, &c); err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return &c
}

// LoadCatalog overlays the YAML file at path on the defaults. An empty path returns the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message catalog: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse message catalog: %w", err)
	}
	return c, nil
}

// Format fills a one-argument template.
func Format(template, arg string) string {
	if !strings.Contains(template, "%s") {
		return template
	}
	return fmt.Sprintf(template, arg)
}

// UploadFailure fills UploadFailed with the backend name and file name.
func (c *Catalog) UploadFailure(backend, name string) string {
	if strings.Count(c.UploadFailed, "%s") != 2 {
		return Format(c.UploadFailed, name)
	}
	return fmt.Sprintf(c.UploadFailed, backend, name)
}
