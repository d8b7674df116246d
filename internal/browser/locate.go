package browser

import (
	"os"
	"path/filepath"
	"runtime"
)

// defaultStorePaths returns candidate cookie store locations for a browser
// on the current platform, most specific first.
func defaultStorePaths(browser Browser) []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		support := filepath.Join(home, "Library", "Application Support")
		switch browser {
		case Chrome:
			return []string{filepath.Join(support, "Google", "Chrome", "Default", "Cookies")}
		case Chromium:
			return []string{filepath.Join(support, "Chromium", "Default", "Cookies")}
		case Brave:
			return []string{filepath.Join(support, "BraveSoftware", "Brave-Browser", "Default", "Cookies")}
		case Edge:
			return []string{filepath.Join(support, "Microsoft Edge", "Default", "Cookies")}
		case Firefox:
			return firefoxProfiles(filepath.Join(support, "Firefox", "Profiles"))
		}
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		roaming := os.Getenv("APPDATA")
		switch browser {
		case Chrome:
			return []string{filepath.Join(local, "Google", "Chrome", "User Data", "Default", "Network", "Cookies")}
		case Chromium:
			return []string{filepath.Join(local, "Chromium", "User Data", "Default", "Network", "Cookies")}
		case Brave:
			return []string{filepath.Join(local, "BraveSoftware", "Brave-Browser", "User Data", "Default", "Network", "Cookies")}
		case Edge:
			return []string{filepath.Join(local, "Microsoft", "Edge", "User Data", "Default", "Network", "Cookies")}
		case Firefox:
			return firefoxProfiles(filepath.Join(roaming, "Mozilla", "Firefox", "Profiles"))
		}
	default:
		config := filepath.Join(home, ".config")
		switch browser {
		case Chrome:
			return []string{filepath.Join(config, "google-chrome", "Default", "Cookies")}
		case Chromium:
			return []string{filepath.Join(config, "chromium", "Default", "Cookies")}
		case Brave:
			return []string{filepath.Join(config, "BraveSoftware", "Brave-Browser", "Default", "Cookies")}
		case Edge:
			return []string{filepath.Join(config, "microsoft-edge", "Default", "Cookies")}
		case Firefox:
			return firefoxProfiles(filepath.Join(home, ".mozilla", "firefox"))
		}
	}
	return nil
}

// firefoxProfiles lists cookies.sqlite under every profile directory.
func firefoxProfiles(profilesDir string) []string {
	entries, err := os.ReadDir(profilesDir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(profilesDir, entry.Name(), "cookies.sqlite"))
	}
	return paths
}
