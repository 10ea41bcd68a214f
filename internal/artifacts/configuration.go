package artifacts

import "strings"

const (
	configurationEndpointKeyConstant          = "endpoint"
	configurationAccessKeyKeyConstant         = "access_key"
	configurationSecretKeyKeyConstant         = "secret_key"
	configurationBucketKeyConstant            = "bucket"
	configurationRegionKeyConstant            = "region"
	configurationUseSSLKeyConstant            = "use_ssl"
	configurationPrefixKeyConstant            = "prefix"
	configurationSigningKeyFileKeyConstant    = "signing_key_file"
	configurationSigningPassphraseKeyConstant = "signing_key_passphrase"
	defaultBucketConstant                     = "gitcollect"
	defaultRegionConstant                     = "us-east-1"
	defaultPrefixConstant                     = "changelogs"
)

// Configuration describes how changelog artifacts are signed and archived. Archival is enabled by an endpoint,
// signing by a key file.
type Configuration struct {
	Endpoint             string `mapstructure:"endpoint"`
	AccessKey            string `mapstructure:"access_key"`
	SecretKey            string `mapstructure:"secret_key"`
	Bucket               string `mapstructure:"bucket"`
	Region               string `mapstructure:"region"`
	UseSSL               bool   `mapstructure:"use_ssl"`
	Prefix               string `mapstructure:"prefix"`
	SigningKeyFile       string `mapstructure:"signing_key_file"`
	SigningKeyPassphrase string `mapstructure:"signing_key_passphrase"`
}

// DefaultConfiguration disables archival and signing.
func DefaultConfiguration() Configuration {
	return Configuration{
		Bucket: defaultBucketConstant,
		Region: defaultRegionConstant,
		UseSSL: true,
		Prefix: defaultPrefixConstant,
	}
}

// DefaultConfigurationValues produces Viper defaults for artifact handling under rootKey.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultConfiguration()
	return map[string]any{
		rootKey + "." + configurationEndpointKeyConstant:          defaults.Endpoint,
		rootKey + "." + configurationAccessKeyKeyConstant:         defaults.AccessKey,
		rootKey + "." + configurationSecretKeyKeyConstant:         defaults.SecretKey,
		rootKey + "." + configurationBucketKeyConstant:            defaults.Bucket,
		rootKey + "." + configurationRegionKeyConstant:            defaults.Region,
		rootKey + "." + configurationUseSSLKeyConstant:            defaults.UseSSL,
		rootKey + "." + configurationPrefixKeyConstant:            defaults.Prefix,
		rootKey + "." + configurationSigningKeyFileKeyConstant:    defaults.SigningKeyFile,
		rootKey + "." + configurationSigningPassphraseKeyConstant: defaults.SigningKeyPassphrase,
	}
}

// ArchiveEnabled reports whether an object storage endpoint is configured.
func (configuration Configuration) ArchiveEnabled() bool {
	return len(strings.TrimSpace(configuration.Endpoint)) > 0
}

// SigningEnabled reports whether a signing key is configured.
func (configuration Configuration) SigningEnabled() bool {
	return len(strings.TrimSpace(configuration.SigningKeyFile)) > 0
}

func (configuration Configuration) sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration
	sanitized.Endpoint = strings.TrimSpace(configuration.Endpoint)
	sanitized.Bucket = strings.TrimSpace(configuration.Bucket)
	if len(sanitized.Bucket) == 0 {
		sanitized.Bucket = defaults.Bucket
	}
	sanitized.Region = strings.TrimSpace(configuration.Region)
	if len(sanitized.Region) == 0 {
		sanitized.Region = defaults.Region
	}
	sanitized.Prefix = strings.Trim(strings.TrimSpace(configuration.Prefix), "/")
	sanitized.SigningKeyFile = strings.TrimSpace(configuration.SigningKeyFile)
	return sanitized
}
