package config

import (
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
)

const secretURIPrefix = "op://"

// lookPath and runSecretTool are indirected for tests.
var (
	lookPath      = exec.LookPath
	runSecretTool = func(uri string) (string, error) {
		out, err := exec.Command("op", "read", uri).Output()
		return strings.TrimSpace(string(out)), err
	}
)

// resolveSecrets replaces op:// URIs in secret-bearing fields. When the
// secret tool is not installed the URIs are left in place and logged; when
// the tool is present but a referenced secret cannot be read, loading fails.
func resolveSecrets(cfg *Config) error {
	fields := []*string{
		&cfg.Elasticsearch.Username,
		&cfg.Elasticsearch.Password,
	}
	for name, src := range cfg.ThreatIntelligence.Sources {
		if strings.HasPrefix(src.APIKey, secretURIPrefix) {
			resolved, err := resolveOne(src.APIKey)
			if err != nil {
				return err
			}
			src.APIKey = resolved
			cfg.ThreatIntelligence.Sources[name] = src
		}
	}
	for i := range cfg.TCPTransport.APIKeys {
		fields = append(fields, &cfg.TCPTransport.APIKeys[i].Key)
	}

	for _, f := range fields {
		if strings.HasPrefix(*f, secretURIPrefix) {
			resolved, err := resolveOne(*f)
			if err != nil {
				return err
			}
			*f = resolved
		}
	}
	return nil
}

func resolveOne(uri string) (string, error) {
	if _, err := lookPath("op"); err != nil {
		log.Warn().Str("uri", uri).Msg("Secret tool unavailable, leaving secret reference unresolved")
		return uri, nil
	}
	value, err := runSecretTool(uri)
	if err != nil {
		return "", dserrors.Configf("resolve secret %s: %v", uri, err)
	}
	return value, nil
}
