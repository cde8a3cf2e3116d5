package config

import "maps"

// HostConfig holds settings for requests to a single host.
type HostConfig struct {
	// Headers are extra HTTP headers sent to this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// BearerToken is sent as "Authorization: Bearer <token>" to this host.
	BearerToken string `yaml:"bearerToken,omitempty"`

	// UserAgent overrides the default User-Agent. Only honored in defaults.
	UserAgent string `yaml:"userAgent,omitempty"`
}

// SigningConfig configures HTTP signatures for servers that require
// authorized fetch.
type SigningConfig struct {
	// KeyID is the public key id, usually "<actor url>#main-key".
	KeyID string `yaml:"keyId,omitempty"`

	// PrivateKeyFile is a PEM file with the matching RSA private key.
	PrivateKeyFile string `yaml:"privateKeyFile,omitempty"`

	// Mode is "when-needed" (default) or "always".
	Mode string `yaml:"mode,omitempty"`
}

// File represents the structure of the .threadcap configuration file.
type File struct {
	// Hosts maps a hostname (e.g. "mastodon.social") to its settings.
	Hosts map[string]HostConfig `yaml:"hosts,omitempty"`

	// Defaults apply to every host unless overridden.
	Defaults HostConfig `yaml:"defaults,omitempty"`

	// Signing configures HTTP signatures.
	Signing SigningConfig `yaml:"signing,omitempty"`
}

// GetHostConfig returns the configuration for a host merged over the defaults.
func (f *File) GetHostConfig(host string) HostConfig {
	result := HostConfig{
		BearerToken: f.Defaults.BearerToken,
		UserAgent:   f.Defaults.UserAgent,
	}
	if len(f.Defaults.Headers) > 0 {
		result.Headers = maps.Clone(f.Defaults.Headers)
	}

	if hostConfig, ok := f.Hosts[host]; ok {
		if hostConfig.BearerToken != "" {
			result.BearerToken = hostConfig.BearerToken
		}
		if len(hostConfig.Headers) > 0 {
			if result.Headers == nil {
				result.Headers = make(map[string]string)
			}
			maps.Copy(result.Headers, hostConfig.Headers)
		}
	}
	return result
}

// HostHeaders returns the extra headers to send per configured host, in the
// form expected by fetch.WithHostHeaders. A host bearer token becomes an
// Authorization header. Hosts without an entry get DefaultHeaders only.
func (f *File) HostHeaders() map[string]map[string]string {
	out := make(map[string]map[string]string, len(f.Hosts))
	for host := range f.Hosts {
		merged := f.GetHostConfig(host)
		headers := make(map[string]string, len(merged.Headers)+1)
		maps.Copy(headers, merged.Headers)
		if token := f.Hosts[host].BearerToken; token != "" {
			headers["Authorization"] = "Bearer " + token
		}
		if len(headers) > 0 {
			out[host] = headers
		}
	}
	return out
}

// DefaultHeaders returns the headers sent to every host.
func (f *File) DefaultHeaders() map[string]string {
	return maps.Clone(f.Defaults.Headers)
}
