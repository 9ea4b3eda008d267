package detect

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

var (
	// ErrInvalidTOML indicates an allowlist file that is not valid TOML.
	ErrInvalidTOML = errors.New("invalid TOML in allowlist file")

	// ErrInvalidRegex indicates an allowlist pattern that does not compile.
	ErrInvalidRegex = errors.New("invalid regex pattern in allowlist")
)

// Allowlist contains path and content regex patterns excluded from
// credential detection.
type Allowlist struct {
	Paths   []string // file path regex patterns to ignore
	Regexes []string // content regex patterns to ignore
}

// LoadAllowlists loads and merges the project and user allowlists using
// union logic. Missing files are silently ignored; invalid TOML or regex
// patterns are errors.
//
// projectPath: directory containing .gitleaks.toml (empty to skip)
// userPath: full path to a user allowlist.toml (empty to skip)
func LoadAllowlists(projectPath, userPath string) (*Allowlist, error) {
	merged := &Allowlist{
		Paths:   []string{},
		Regexes: []string{},
	}

	if projectPath != "" {
		projectFile := filepath.Join(projectPath, ".gitleaks.toml")
		project, err := loadAllowlistTOML(projectFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else {
			merged.Paths = append(merged.Paths, project.Paths...)
			merged.Regexes = append(merged.Regexes, project.Regexes...)
		}
	}

	if userPath != "" {
		user, err := loadAllowlistTOML(userPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else {
			merged.Paths = append(merged.Paths, user.Paths...)
			merged.Regexes = append(merged.Regexes, user.Regexes...)
		}
	}

	return merged, nil
}

// loadAllowlistTOML loads and validates a single allowlist file.
func loadAllowlistTOML(path string) (*Allowlist, error) {
	var config struct {
		Allowlist struct {
			Paths   []string
			Regexes []string
		}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range config.Allowlist.Paths {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: invalid path pattern '%s' in %s: %v",
				ErrInvalidRegex, pattern, path, err)
		}
	}
	for _, pattern := range config.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: invalid content pattern '%s' in %s: %v",
				ErrInvalidRegex, pattern, path, err)
		}
	}

	return &Allowlist{
		Paths:   config.Allowlist.Paths,
		Regexes: config.Allowlist.Regexes,
	}, nil
}
