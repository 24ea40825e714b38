// Package apps maintains the shared known-applications catalog: the vendor
// publishes a JSON list of launchable apps, refreshed daily by one
// coordinator per process and read, never mutated, by TV entities.
package apps

import "strings"

// Config is one launch configuration of an app. Larger apps ship several
// configs for different device generations.
type Config struct {
	AppID     string `json:"APP_ID" yaml:"APP_ID"`
	NameSpace int    `json:"NAME_SPACE" yaml:"NAME_SPACE"`
	Message   string `json:"MESSAGE" yaml:"MESSAGE"`
}

// App is one catalog entry.
type App struct {
	Name   string   `json:"name" yaml:"name"`
	Config []Config `json:"config" yaml:"config"`
}

// FindApp returns the catalog entry matching name case-insensitively, or nil.
func FindApp(catalog []App, name string) *App {
	for i := range catalog {
		if strings.EqualFold(catalog[i].Name, name) {
			return &catalog[i]
		}
	}
	return nil
}

// FindAppName resolves a running (appID, nameSpace) pair back to a catalog
// name. Devices report the pair, not the name. Returns "" when unknown.
func FindAppName(catalog []App, appID string, nameSpace int) string {
	for i := range catalog {
		for _, cfg := range catalog[i].Config {
			if cfg.AppID == appID && cfg.NameSpace == nameSpace {
				return catalog[i].Name
			}
		}
	}
	return ""
}
