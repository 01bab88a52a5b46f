package tests

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ExternalDependenciesSuite loads provider credentials before any live test runs.
// SETTINGS_FILE wins; otherwise the repo's .env and then $HOME/.env are tried.
type ExternalDependenciesSuite struct {
	suite.Suite
	settingsFile string
}

func (s *ExternalDependenciesSuite) SetupSuite() {
	explicit := strings.TrimSpace(os.Getenv("SETTINGS_FILE"))
	if explicit != "" {
		_, err := os.Stat(explicit)
		require.NoError(s.T(), err)
		s.load(explicit)
		return
	}

	candidates := []string{filepath.Join("..", ".env")}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".env"))
	}

	for _, candidate := range candidates {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		require.NoError(s.T(), err)
		s.load(candidate)
		return
	}
}

func (s *ExternalDependenciesSuite) load(path string) {
	s.settingsFile = path
	require.NoError(s.T(), godotenv.Overload(path))
}

func (s *ExternalDependenciesSuite) SettingsFile() string {
	return s.settingsFile
}
