package s3storage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Credentials authenticate against the object store. Bucket is optional and,
// when set, is used if Options.Bucket is empty.
type Credentials struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
}

// LoadCredentials reads a YAML secret file. The file may hold the keys at the
// top level, or one section per environment:
//
//	production:
//	  access_key_id: ...
//	  secret_access_key: ...
//
// in which case the section named env is used.
func LoadCredentials(path, env string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if env != "" {
		var sections map[string]Credentials
		if err := yaml.Unmarshal(data, &sections); err == nil {
			if c, ok := sections[env]; ok {
				return &c, nil
			}
		}
	}
	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &c, nil
}

func resolveCredentials(opts Options) (*Credentials, error) {
	if opts.Credentials != nil {
		return opts.Credentials, nil
	}
	if opts.CredentialsFile != "" {
		return LoadCredentials(opts.CredentialsFile, opts.Environment)
	}
	return &Credentials{}, nil
}
