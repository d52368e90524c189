package settings

import "strings"

// AppConfig locates a deployment of the comic on the publishing server.
type AppConfig struct {
	BaseURL  string `yaml:"base_url"`
	BundleID string `yaml:"bundle_id"`
	Version  string `yaml:"version"`
}

// DefaultAppConfig returns the production deployment.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		BaseURL:  "https://www.tangibility.nl/icart/",
		BundleID: "nl.deharmonie.zeurkalender26",
		Version:  "1.0",
	}
}

func (a AppConfig) root() string {
	base := a.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + a.BundleID + "/" + a.Version + "/"
}

// SettingsURL is {base}{bundleID}/{version}/settings.json.
func (a AppConfig) SettingsURL() string {
	return a.root() + "settings.json"
}

// ImagesURL is {base}{bundleID}/{version}/images/.
func (a AppConfig) ImagesURL() string {
	return a.root() + "images/"
}
